package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vbp1/cdcboot/internal/config"
	"github.com/vbp1/cdcboot/internal/probe"
	"github.com/vbp1/cdcboot/internal/ssh"
	"github.com/vbp1/cdcboot/internal/state"
)

// NewDetectCommand prints the probe results and the classified pipeline state.
func NewDetectCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Probe the environment and classify the pipeline state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := detect(cmd.Context(), opts.Cfg)
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), newSnapshotReport(snap))
			}
			printSnapshot(cmd.OutOrStdout(), snap, opts.Verbose)
			return nil
		},
	}
}

func detect(ctx context.Context, cfg *config.Config) state.Snapshot {
	probes, closeFn := buildProbes(ctx, cfg)
	defer closeFn()
	snap := state.Detect(ctx, probes)
	slog.Info("pipeline state detected", "state", snap.State)
	return snap
}

// buildProbes wires the probers from cfg. Lister setup failures turn into failing
// process probes, never into errors.
func buildProbes(ctx context.Context, cfg *config.Config) (state.Probes, func()) {
	lister, closeFn := newLister(ctx, cfg.Probe)
	bound := func(p probe.Prober) probe.Prober { return probe.Bounded{Prober: p, Timeout: cfg.Probe.Timeout} }
	db := func(name string, d config.Database) probe.Prober {
		return bound(probe.Database{Name: name, DB: d, Schema: cfg.Replication.Schema, Table: cfg.Probe.CountTable})
	}
	proc := func(name string) probe.Prober {
		return bound(probe.Process{Name: name, Lister: lister, Timeout: cfg.Probe.Timeout})
	}
	return state.Probes{
		Target:             db("target", cfg.Target),
		Source:             db("source", cfg.Source),
		ReplicationProcess: proc(cfg.Probe.ReplicationProc),
		Extra: []probe.Prober{
			proc(cfg.Probe.SourceProcess),
			proc(cfg.Probe.TargetProcess),
			bound(probe.HTTP{Name: "control-plane", URL: healthURL(cfg.ControlPlane.URL), Timeout: cfg.Probe.HTTPTimeout}),
		},
	}, closeFn
}

// healthURL matches the path the control-plane client uses for GET /health.
func healthURL(base string) string {
	return strings.TrimRight(base, "/") + "/health"
}

type failingLister struct{ err error }

func (f failingLister) Names(context.Context, string) ([]string, error) { return nil, f.err }

func newLister(ctx context.Context, p config.Probe) (probe.Lister, func()) {
	switch p.Lister {
	case "local":
		return probe.Local{}, func() {}
	case "ssh":
		client, err := ssh.Dial(ctx, ssh.Config{User: p.SSHUser, Host: p.SSHHost, KeyPath: p.SSHKey, Insecure: p.InsecureSSH})
		if err != nil {
			slog.Warn("ssh lister unavailable, process probes will report unreachable", "host", p.SSHHost, "err", err)
			return failingLister{err: err}, func() {}
		}
		return probe.RemoteDocker{Remote: client}, func() { _ = client.Close() }
	default:
		return probe.Docker{}, func() {}
	}
}

// serviceProbes parses "Name=URL" entries into HTTP probes.
func serviceProbes(p config.Probe) ([]probe.Prober, error) {
	var out []probe.Prober
	for _, s := range p.OptionalServices {
		name, url, ok := strings.Cut(s, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid service %q: want Name=URL", s)
		}
		out = append(out, probe.HTTP{Name: name, URL: url, Timeout: p.HTTPTimeout})
	}
	return out, nil
}
