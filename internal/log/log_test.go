package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupLevels(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWriter(&buf, false, false)
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info record must be filtered at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn record missing: %q", buf.String())
	}

	buf.Reset()
	SetupWriter(&buf, true, false)
	slog.Debug("dbg")
	if !strings.Contains(buf.String(), "dbg") {
		t.Fatalf("debug record missing: %q", buf.String())
	}
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, false, true)
	WithRun("abc").Info("step")
	if !strings.Contains(buf.String(), "run=abc") {
		t.Fatalf("run attribute missing: %q", buf.String())
	}
}
