package process

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestKillChildrenOnCancel(t *testing.T) {
	if _, err := exec.LookPath("pgrep"); err != nil {
		t.Skip("pgrep not available")
	}
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := KillChildrenOnCancel(ctx, 100*time.Millisecond)
	cancel()

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("child survived cancellation")
	}
	<-done
}
