// Package poll waits for asynchronous remote jobs on a fixed interval with a bounded
// attempt budget. Cancelling the context stops observing; the remote job is untouched.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vbp1/cdcboot/internal/metrics"
)

// Status of a remote job.
type Status int

const (
	Unknown Status = iota
	Pending
	Running
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool { return s == Succeeded || s == Failed }

// ParseStatus maps a remote status string; anything unrecognised is Unknown, which is
// treated like a running job.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return Pending
	case "running":
		return Running
	case "succeeded":
		return Succeeded
	case "failed":
		return Failed
	default:
		return Unknown
	}
}

var (
	// ErrJobFailed means the job reported Failed.
	ErrJobFailed = errors.New("job reported failure")
	// ErrTimeout means the attempt budget ran out before a terminal status.
	ErrTimeout = errors.New("gave up waiting")
)

// Config bounds a wait loop.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// Observer is told about every observation; err is the fetch error, if any.
type Observer func(attempt int, st Status, err error)

// Poller runs wait loops.
type Poller struct {
	Config
	Observe Observer
}

// Outcome summarises a finished wait.
type Outcome struct {
	Attempts int
	Last     Status
}

// Wait polls fetch(id) until a terminal status, the attempt budget or ctx ends the loop.
// A fetch error counts as an attempt with Unknown status. Sleeping happens only between
// attempts, never after the last one.
func Wait[ID any](ctx context.Context, p Poller, id ID, fetch func(context.Context, ID) (Status, error)) (Outcome, error) {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = 1
	}
	var out Outcome
	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		st, err := fetch(ctx, id)
		out.Attempts = attempt
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			slog.Warn("poll: status fetch failed", "id", id, "attempt", attempt, "err", err)
			st = Unknown
			lastErr = err
		}
		out.Last = st
		metrics.RecordPollAttempt(st.String())
		if p.Observe != nil {
			p.Observe(attempt, st, err)
		}

		switch st {
		case Succeeded:
			return out, nil
		case Failed:
			return out, fmt.Errorf("job %v: %w", id, ErrJobFailed)
		case Pending, Running:
			slog.Info("poll: job in progress", "id", id, "status", st, "attempt", attempt, "max", limit)
		case Unknown:
			if err == nil {
				slog.Warn("poll: unrecognised job status", "id", id, "attempt", attempt)
			}
		}

		if attempt == limit {
			break
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(p.Interval):
		}
	}
	if lastErr != nil {
		return out, fmt.Errorf("job %v after %d attempts (last status %s, last error %v): %w", id, out.Attempts, out.Last, lastErr, ErrTimeout)
	}
	return out, fmt.Errorf("job %v after %d attempts (last status %s): %w", id, out.Attempts, out.Last, ErrTimeout)
}

// Until polls check until it returns nil. It is Wait for readiness checks: a nil error is
// success, an error keeps waiting.
func Until(ctx context.Context, p Poller, name string, check func(context.Context) error) (Outcome, error) {
	var lastErr error
	out, err := Wait(ctx, p, name, func(ctx context.Context, _ string) (Status, error) {
		if err := check(ctx); err != nil {
			lastErr = err
			return Pending, nil
		}
		return Succeeded, nil
	})
	if errors.Is(err, ErrTimeout) && lastErr != nil {
		return out, fmt.Errorf("%w: %v", err, lastErr)
	}
	return out, err
}
