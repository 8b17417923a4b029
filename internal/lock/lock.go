package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// ErrHeld means another process kept the lock for the whole wait budget.
var ErrHeld = errors.New("lock is held by another process")

// FileLock serializes provisioning runs that target the same control plane. It is an
// advisory flock(2) lock on a file under the system temp directory.
type FileLock struct {
	fl  *flock.Flock
	key string
}

// New returns the lock for a control-plane URL. Case and trailing slashes do not
// matter, so "http://host/api/v1/" and "HTTP://host/api/v1" share one lock.
func New(controlPlaneURL string) *FileLock {
	key := normalize(controlPlaneURL)
	sum := sha256.Sum256([]byte(key))
	name := filepath.Join(os.TempDir(), fmt.Sprintf("cdcboot_%s.lock", hex.EncodeToString(sum[:8])))
	return &FileLock{fl: flock.New(name), key: key}
}

func normalize(u string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(u)), "/")
}

// Path of the lock file.
func (l *FileLock) Path() string { return l.fl.Path() }

// TryLock attempts non-blocking lock.
func (l *FileLock) TryLock() (bool, error) {
	return l.fl.TryLock()
}

// Acquire takes the lock, retrying every retry until wait elapses. A non-positive wait
// makes a single attempt. It returns ErrHeld when the lock stayed busy and ctx's error
// when ctx ended first.
func (l *FileLock) Acquire(ctx context.Context, wait, retry time.Duration) error {
	if wait <= 0 {
		ok, err := l.fl.TryLock()
		if err != nil {
			return fmt.Errorf("lock %s: %w", l.Path(), err)
		}
		if !ok {
			return fmt.Errorf("%s (%s): %w", l.key, l.Path(), ErrHeld)
		}
		return nil
	}
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ok, err := l.fl.TryLockContext(wctx, retry)
	switch {
	case ok:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s (%s) after %s: %w", l.key, l.Path(), wait, ErrHeld)
	default:
		return fmt.Errorf("lock %s: %w", l.Path(), err)
	}
}

// Unlock releases the lock and removes the file.
func (l *FileLock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	// Another process may have removed it already.
	_ = os.Remove(l.Path())
	return nil
}
