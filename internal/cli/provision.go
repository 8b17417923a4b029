package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vbp1/cdcboot/internal/controlplane"
	"github.com/vbp1/cdcboot/internal/lock"
	"github.com/vbp1/cdcboot/internal/log"
	"github.com/vbp1/cdcboot/internal/poll"
	"github.com/vbp1/cdcboot/internal/provision"
)

type provisionResult struct {
	Run string `json:"run"`
	provision.Resources
}

// NewProvisionCommand creates source, destination and connection on the control plane and
// waits for the first sync.
func NewProvisionCommand(opts *RootOptions) *cobra.Command {
	cp := &opts.Cfg.ControlPlane
	rep := &opts.Cfg.Replication
	var lockWait time.Duration
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision the CDC connection on the control plane and run the first sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lk := lock.New(cp.URL)
			if err := lk.Acquire(cmd.Context(), lockWait, time.Second); err != nil {
				return fmt.Errorf("another provisioning run may be in progress: %w", err)
			}
			defer func() { _ = lk.Unlock() }()

			runID := uuid.NewString()
			logger := log.WithRun(runID)
			observe, finish := poll.NewProgress(opts.Progress, opts.Verbose, "sync", cp.SyncAttempts, cmd.ErrOrStderr())

			wf := &provision.Workflow{
				API: controlplane.New(controlplane.Config{
					BaseURL:           cp.URL,
					Timeout:           cp.RequestTimeout,
					RequestsPerSecond: cp.RequestsPerSecond,
				}),
				Replication: *rep,
				Health:      poll.Poller{Config: poll.Config{Interval: cp.HealthInterval, MaxAttempts: cp.HealthAttempts}},
				Sync:        poll.Poller{Config: poll.Config{Interval: cp.SyncInterval, MaxAttempts: cp.SyncAttempts}, Observe: observe},
				Log:         logger,
			}
			res, err := wf.Run(cmd.Context())
			finish()
			if err != nil {
				if res.SourceID != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "note: resources created before the failure are left in place: %s\n", describe(res))
				}
				return fmt.Errorf("provisioning failed: %w", err)
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), provisionResult{Run: runID, Resources: res})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provisioned (run %s): %s\n", runID, describe(res))
			fmt.Fprintf(cmd.OutOrStdout(), "streams: %s\n", strings.Join(res.Streams, ", "))
			return nil
		},
	}

	f := cmd.Flags()
	f.DurationVar(&lockWait, "lock-wait", 0, "Wait this long for a concurrent provisioning run to finish (0 = fail at once)")
	f.DurationVar(&cp.RequestTimeout, "request-timeout", cp.RequestTimeout, "Timeout of a single control-plane request")
	f.Float64Var(&cp.RequestsPerSecond, "rps", cp.RequestsPerSecond, "Throttle control-plane requests (0 = unlimited)")
	f.IntVar(&cp.HealthAttempts, "health-attempts", cp.HealthAttempts, "Health checks before giving up")
	f.DurationVar(&cp.HealthInterval, "health-interval", cp.HealthInterval, "Delay between health checks")
	f.IntVar(&cp.SyncAttempts, "sync-attempts", cp.SyncAttempts, "Job status polls before giving up")
	f.DurationVar(&cp.SyncInterval, "sync-interval", cp.SyncInterval, "Delay between job status polls")
	f.StringVar(&rep.Publication, "publication", rep.Publication, "Publication used by the CDC source")
	f.StringVar(&rep.Slot, "slot", rep.Slot, "Replication slot used by the CDC source")
	f.StringSliceVar(&rep.Tables, "tables", rep.Tables, "Tables to replicate")
	f.StringVar(&rep.Source.Host, "replication-source-host", rep.Source.Host, "Source database host as the control plane sees it")
	f.IntVar(&rep.Source.Port, "replication-source-port", rep.Source.Port, "Source database port as the control plane sees it")
	f.StringVar(&rep.Destination.Host, "replication-target-host", rep.Destination.Host, "Target database host as the control plane sees it")
	f.IntVar(&rep.Destination.Port, "replication-target-port", rep.Destination.Port, "Target database port as the control plane sees it")
	return cmd
}

func describe(r provision.Resources) string {
	parts := []string{"workspace=" + r.WorkspaceID}
	if r.SourceID != "" {
		parts = append(parts, "source="+r.SourceID)
	}
	if r.DestinationID != "" {
		parts = append(parts, "destination="+r.DestinationID)
	}
	if r.ConnectionID != "" {
		parts = append(parts, "connection="+r.ConnectionID)
	}
	if r.JobID != 0 {
		parts = append(parts, fmt.Sprintf("job=%d", r.JobID))
	}
	return strings.Join(parts, " ")
}
