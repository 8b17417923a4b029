package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vbp1/cdcboot/internal/probe"
	"github.com/vbp1/cdcboot/internal/state"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type probeReport struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Count  *int64 `json:"count,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type snapshotReport struct {
	State  state.PipelineState `json:"state"`
	Probes []probeReport       `json:"probes"`
}

func newSnapshotReport(s state.Snapshot) snapshotReport {
	all := append([]probe.Result{s.Signals.Target, s.Signals.Source, s.Signals.ReplicationProcess}, s.Extra...)
	rep := snapshotReport{State: s.State, Probes: make([]probeReport, 0, len(all))}
	for _, r := range all {
		rep.Probes = append(rep.Probes, probeReport{
			Kind:   r.Kind.String(),
			Name:   r.Name,
			Status: r.Status().String(),
			Count:  r.RecordCount,
			Detail: r.Detail,
		})
	}
	return rep
}

func printSnapshot(w io.Writer, s state.Snapshot, verbose bool) {
	rep := newSnapshotReport(s)
	for _, p := range rep.Probes {
		line := fmt.Sprintf("  %-16s %-22s %s", p.Kind, p.Name, p.Status)
		if p.Count != nil {
			line += fmt.Sprintf(" count=%d", *p.Count)
		}
		if verbose && p.Detail != "" {
			line += " (" + p.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "state: %s\n", s.State)
}
