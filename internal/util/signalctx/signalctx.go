package signalctx

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithSignals returns a child context cancelled on SIGINT or SIGTERM.
// The returned channel receives the signal that caused the cancellation, so callers
// can report "interrupted" distinctly from other context errors.
func WithSignals(parent context.Context) (ctx context.Context, cancel context.CancelFunc, sigCh <-chan os.Signal) {
	ctx, cancel = context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	got := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(c)
		select {
		case <-parent.Done():
			cancel()
		case <-ctx.Done():
			// already canceled
		case s := <-c:
			got <- s
			cancel()
		}
	}()

	return ctx, cancel, got
}
