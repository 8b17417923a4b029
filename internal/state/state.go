// Package state classifies a point-in-time probe snapshot into a pipeline state.
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vbp1/cdcboot/internal/metrics"
	"github.com/vbp1/cdcboot/internal/probe"
)

// PipelineState is the closed set of deployment states.
type PipelineState int

const (
	SetupRequired PipelineState = iota
	Development
	ReplicationReady
	ProductionReplicated
)

var names = map[PipelineState]string{
	SetupRequired:        "SetupRequired",
	Development:          "Development",
	ReplicationReady:     "ReplicationReady",
	ProductionReplicated: "ProductionReplicated",
}

func (s PipelineState) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("PipelineState(%d)", int(s))
}

// Known reports whether s is one of the four defined states.
func (s PipelineState) Known() bool {
	_, ok := names[s]
	return ok
}

// MarshalJSON renders the state name.
func (s PipelineState) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Parse maps a state name back to its value.
func Parse(name string) (PipelineState, error) {
	for s, n := range names {
		if n == name {
			return s, nil
		}
	}
	return SetupRequired, fmt.Errorf("unknown pipeline state %q", name)
}

// Signals are the probe results the decision table looks at.
type Signals struct {
	Target             probe.Result
	Source             probe.Result
	ReplicationProcess probe.Result
}

// Classify applies the decision table, first match wins:
//  1. target reachable with rows          -> ProductionReplicated
//  2. source reachable, replication up    -> ReplicationReady
//  3. source reachable                    -> Development
//  4. otherwise                           -> SetupRequired
func Classify(sig Signals) PipelineState {
	switch {
	case sig.Target.Reachable && sig.Target.Count() > 0:
		return ProductionReplicated
	case sig.Source.Reachable && sig.ReplicationProcess.Reachable:
		return ReplicationReady
	case sig.Source.Reachable:
		return Development
	default:
		return SetupRequired
	}
}

// Probes are the probers feeding Signals plus any extra informational probes.
type Probes struct {
	Target             probe.Prober
	Source             probe.Prober
	ReplicationProcess probe.Prober
	Extra              []probe.Prober
}

// Snapshot is one detection cycle.
type Snapshot struct {
	Signals Signals
	Extra   []probe.Result
	State   PipelineState
}

// Detect evaluates all probes concurrently and classifies the result. Nothing is cached
// between calls.
func Detect(ctx context.Context, p Probes) Snapshot {
	all := append([]probe.Prober{p.Target, p.Source, p.ReplicationProcess}, p.Extra...)
	res := probe.Gather(ctx, all...)
	sig := Signals{Target: res[0], Source: res[1], ReplicationProcess: res[2]}
	st := Classify(sig)
	metrics.RecordState(st.String())
	return Snapshot{Signals: sig, Extra: res[3:], State: st}
}
