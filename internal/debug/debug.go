// Package debug holds the hook integration tests use to freeze a run at a named step.
package debug

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// StopEnv lists comma-separated labels at which StopIf pauses.
const StopEnv = "CDCBOOT_STOP_AT"

// Marker receives the "stop point" line. Tests wait for it before sending signals.
var Marker io.Writer = os.Stderr

// Armed reports whether label is listed in CDCBOOT_STOP_AT.
func Armed(label string) bool {
	if label == "" {
		return false
	}
	for _, l := range strings.Split(os.Getenv(StopEnv), ",") {
		if strings.TrimSpace(l) == label {
			return true
		}
	}
	return false
}

// StopIf blocks until ctx is done when label is armed and returns ctx's error. It
// returns nil at once otherwise.
func StopIf(ctx context.Context, label string) error {
	if !Armed(label) {
		return nil
	}
	fmt.Fprintf(Marker, "stop point: %s\n", label)
	<-ctx.Done()
	return ctx.Err()
}
