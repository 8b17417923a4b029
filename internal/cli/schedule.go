package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vbp1/cdcboot/internal/metrics"
	"github.com/vbp1/cdcboot/internal/process"
	"github.com/vbp1/cdcboot/internal/schedule"
	"github.com/vbp1/cdcboot/internal/transform"
)

// NewScheduleCommand runs the transformation pipeline periodically.
func NewScheduleCommand(opts *RootOptions) *cobra.Command {
	var (
		interval     time.Duration
		runOnce      bool
		metricsAddr  string
		artifactsDir string
		keep         bool
		steps        []string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run deps, seed, run and test on a fixed interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r := transform.New(opts.Cfg.Transform, nil)
			version, err := r.Version(ctx)
			if err != nil {
				return err
			}
			slog.Info("transformation tool found", "version", version)

			s := &schedule.Scheduler{
				Runner:       r,
				Interval:     interval,
				Steps:        steps,
				ArtifactsDir: artifactsDir,
				Keep:         keep,
			}
			report := func(p schedule.Pass) {
				if p.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "pass %s failed at %s after %s: %v\n", p.ID, p.Failed, p.Duration.Round(time.Millisecond), p.Err)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pass %s succeeded in %s\n", p.ID, p.Duration.Round(time.Millisecond))
			}

			if runOnce {
				p := s.RunOnce(ctx)
				report(p)
				if p.Err != nil {
					return fmt.Errorf("pipeline step %s: %w", p.Failed, p.Err)
				}
				return nil
			}

			wctx, stopWatchdog := context.WithCancel(ctx)
			watchdog := process.KillChildrenOnCancel(wctx, 5*time.Second)
			g, gctx := errgroup.WithContext(ctx)
			if metricsAddr != "" {
				g.Go(func() error { return metrics.Serve(gctx, metricsAddr) })
			}
			g.Go(func() error { return s.Start(gctx, report) })
			err = g.Wait()
			stopWatchdog()
			<-watchdog
			if err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.DurationVar(&interval, "interval", 5*time.Minute, "Time between pipeline passes")
	f.BoolVar(&runOnce, "run-once", false, "Run a single pass and exit")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9108)")
	f.StringVar(&artifactsDir, "artifacts-dir", "", "Directory for per-pass tool output (default: temp dir)")
	f.BoolVar(&keep, "keep-artifacts", false, "Keep per-pass output directories")
	f.StringSliceVar(&steps, "steps", schedule.DefaultSteps, "Pipeline steps run on every pass")
	return cmd
}
