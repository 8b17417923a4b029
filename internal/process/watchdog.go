package process

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// KillChildrenOnCancel starts a goroutine that, once ctx is done, sends SIGTERM to every
// child of the current process and SIGKILL to the survivors after grace. The returned
// channel is closed when the goroutine finishes.
func KillChildrenOnCancel(ctx context.Context, grace time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		pids := childPIDs(os.Getpid())
		if len(pids) == 0 {
			return
		}
		slog.Warn("watchdog: context canceled, terminating children", "count", len(pids))
		for _, pid := range pids {
			if err := unix.Kill(pid, unix.SIGTERM); err != nil {
				slog.Debug("watchdog: SIGTERM failed", "pid", pid, "err", err)
			}
		}
		time.Sleep(grace)
		for _, pid := range childPIDs(os.Getpid()) {
			if err := unix.Kill(pid, unix.SIGKILL); err != nil {
				slog.Debug("watchdog: SIGKILL failed", "pid", pid, "err", err)
			}
		}
	}()
	return done
}

func childPIDs(parent int) []int {
	out, err := exec.Command("pgrep", "-P", strconv.Itoa(parent)).Output()
	if err != nil {
		// pgrep exits 1 when nothing matches
		return nil
	}
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		if pid, err := strconv.Atoi(line); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids
}
