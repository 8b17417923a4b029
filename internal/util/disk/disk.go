package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// Space holds free and total bytes of a filesystem.
type Space struct {
	Free  uint64
	Total uint64
}

// FreeBytes returns available (for unprivileged user) and total bytes on the filesystem
// holding path. A missing path is resolved through its nearest existing parent.
func FreeBytes(ctx context.Context, path string) (Space, error) {
	p := existingParent(path)
	u, err := disk.UsageWithContext(ctx, p)
	if err != nil {
		return Space{}, fmt.Errorf("disk usage %s: %w", p, err)
	}
	return Space{Free: u.Free, Total: u.Total}, nil
}

// EnsureSpace checks that path has at least required bytes free.
func EnsureSpace(ctx context.Context, path string, required uint64) (Space, error) {
	sp, err := FreeBytes(ctx, path)
	if err != nil {
		return sp, err
	}
	if sp.Free < required {
		return sp, fmt.Errorf("insufficient space on %s: free %.2f MB, need %.2f MB", path, MB(sp.Free), MB(required))
	}
	return sp, nil
}

// MB converts bytes to mebibytes.
func MB(b uint64) float64 {
	return float64(b) / (1024 * 1024)
}

func existingParent(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
