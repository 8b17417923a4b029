package runctx

import (
	"fmt"
	"os"
	"path/filepath"
)

// RunCtx manages a per-run artifact directory (tool output of one scheduled pass).
type RunCtx struct {
	ID         string
	Dir        string
	keepOnExit bool
}

// New creates a directory named after id under base. An empty base means the system temp dir.
func New(base, id string, keep bool) (*RunCtx, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(base, "cdcboot_run_"+id+"_")
	if err != nil {
		return nil, err
	}
	return &RunCtx{ID: id, Dir: dir, keepOnExit: keep}, nil
}

// Cleanup removes the directory unless keep was requested.
func (r *RunCtx) Cleanup() error {
	if r.keepOnExit {
		return nil
	}
	return os.RemoveAll(r.Dir)
}

// Path joins run dir with subpath.
func (r *RunCtx) Path(elem ...string) string {
	parts := append([]string{r.Dir}, elem...)
	return filepath.Join(parts...)
}

// WriteArtifact stores data under name inside the run dir.
func (r *RunCtx) WriteArtifact(name string, data []byte) error {
	return os.WriteFile(r.Path(name), data, 0o644)
}

func (r *RunCtx) String() string { return fmt.Sprintf("RunCtx(%s)", r.Dir) }
