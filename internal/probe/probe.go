// Package probe runs side-effect-free checks against the deployment. Probe failures never
// surface as errors: they are folded into the tri-state Result.
package probe

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vbp1/cdcboot/internal/metrics"
)

// Kind identifies what a probe looks at.
type Kind int

const (
	KindProcess Kind = iota
	KindDatabase
	KindServiceEndpoint
)

func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "Process"
	case KindDatabase:
		return "Database"
	case KindServiceEndpoint:
		return "ServiceEndpoint"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Status is the tri-state outcome of a probe.
type Status int

const (
	Unreachable Status = iota
	ReachableEmpty
	ReachableWithData
)

func (s Status) String() string {
	switch s {
	case ReachableWithData:
		return "reachable_with_data"
	case ReachableEmpty:
		return "reachable_empty"
	default:
		return "unreachable"
	}
}

// Result is an immutable snapshot of one probe evaluation.
type Result struct {
	Kind      Kind
	Name      string
	Reachable bool
	// RecordCount is set only by database probes that reached the server.
	RecordCount *int64
	// Detail carries the swallowed failure, for diagnostics only.
	Detail string
}

// Status folds the result into the tri-state view.
func (r Result) Status() Status {
	switch {
	case !r.Reachable:
		return Unreachable
	case r.RecordCount != nil && *r.RecordCount > 0:
		return ReachableWithData
	default:
		return ReachableEmpty
	}
}

// Count returns RecordCount or 0.
func (r Result) Count() int64 {
	if r.RecordCount == nil {
		return 0
	}
	return *r.RecordCount
}

func (r Result) String() string {
	if r.RecordCount != nil {
		return fmt.Sprintf("%s(%s): %s count=%d", r.Kind, r.Name, r.Status(), *r.RecordCount)
	}
	return fmt.Sprintf("%s(%s): %s", r.Kind, r.Name, r.Status())
}

// Prober evaluates one check.
type Prober interface {
	Probe(ctx context.Context) Result
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) Result

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) Result { return f(ctx) }

// DefaultTimeout bounds a probe step when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// identified probers can name themselves in a result they did not produce.
type identified interface {
	identity() (Kind, string)
}

// Bounded caps a prober at Timeout. When the deadline passes first, Probe returns an
// unreachable result without waiting for the wrapped prober, which keeps running until
// it notices its cancelled context.
type Bounded struct {
	Prober
	Timeout time.Duration
}

// Probe implements Prober.
func (b Bounded) Probe(ctx context.Context) Result {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- b.Prober.Probe(ctx) }()
	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		res := Result{Detail: fmt.Sprintf("probe gave up after %s: %v", timeout, ctx.Err())}
		if id, ok := b.Prober.(identified); ok {
			res.Kind, res.Name = id.identity()
		}
		return res
	}
}

// Gather evaluates probers concurrently and returns results in the order given.
func Gather(ctx context.Context, probers ...Prober) []Result {
	results := make([]Result, len(probers))
	var g errgroup.Group
	for i, p := range probers {
		i, p := i, p
		g.Go(func() error {
			results[i] = p.Probe(ctx)
			return nil
		})
	}
	_ = g.Wait()
	for _, r := range results {
		metrics.RecordProbe(r.Kind.String(), r.Status().String())
	}
	return results
}

func count(n int64) *int64 { return &n }
