package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMkdirP(t *testing.T) {
	tmp := t.TempDir()
	nested := tmp + "/a/b/c"
	if err := MkdirP(nested); err != nil {
		t.Fatalf("MkdirP failed: %v", err)
	}
	if err := MkdirP(nested); err != nil {
		t.Fatalf("MkdirP on existing dir: %v", err)
	}
	if err := MkdirP(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestReplaceFileOverwrites(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "sub", "profiles.yml")

	if err := ReplaceFile(p, []byte("first: 1\nextra: true\n"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := ReplaceFile(p, []byte("second: 2\n"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "second: 2\n" {
		t.Fatalf("content not replaced: %q", data)
	}
	entries, _ := os.ReadDir(filepath.Dir(p))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %d entries", len(entries))
	}
	if !Exists(p) {
		t.Fatalf("Exists returned false")
	}
}
