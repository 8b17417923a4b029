package signalctx

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestWithSignalsParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel, _ := WithSignals(parent)
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("child context not cancelled with parent")
	}
}

func TestWithSignalsSIGTERM(t *testing.T) {
	ctx, cancel, sigCh := WithSignals(context.Background())
	defer cancel()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("context not cancelled on SIGTERM")
	}
	if s := <-sigCh; s != syscall.SIGTERM {
		t.Fatalf("unexpected signal %v", s)
	}
}
