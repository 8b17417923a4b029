package runctx

import (
	"os"
	"strings"
	"testing"
)

func TestRunCtxLifecycle(t *testing.T) {
	rc, err := New(t.TempDir(), "r1", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !strings.Contains(rc.Dir, "cdcboot_run_r1_") {
		t.Fatalf("unexpected dir name %s", rc.Dir)
	}
	if err := rc.WriteArtifact("dbt_run.log", []byte("ok")); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if err := rc.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	// directory should be gone
	if _, err := os.Stat(rc.Dir); !os.IsNotExist(err) {
		t.Fatalf("dir still exists")
	}
}

func TestRunCtxKeep(t *testing.T) {
	rc, err := New(t.TempDir(), "r2", true)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := rc.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(rc.Dir); err != nil {
		t.Fatalf("kept dir removed: %v", err)
	}
}
