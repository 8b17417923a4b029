package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vbp1/cdcboot/internal/envcheck"
)

// expectedTables are looked up by check; at least two must exist.
var expectedTables = []string{"clientes", "pedidos", "produtos", "itens_pedido", "campanhas_marketing", "leads"}

// NewCheckCommand verifies the source database and, with --full, the optional services.
func NewCheckCommand(opts *RootOptions) *cobra.Command {
	var (
		full       bool
		attempts   int
		delay      time.Duration
		reportPath string
		verify     bool
		minFreeMB  uint64
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the environment before starting the pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.Cfg
			services, err := serviceProbes(cfg.Probe)
			if err != nil {
				return err
			}
			c := &envcheck.Checker{
				DB:          cfg.Source,
				Attempts:    attempts,
				Delay:       delay,
				Schema:      cfg.Replication.Schema,
				Tables:      expectedTables,
				MinTables:   2,
				Counted:     []string{"clientes", "pedidos"},
				Full:        full,
				Services:    services,
				Publication: cfg.Replication.Publication,
				Slot:        cfg.Replication.Slot,
				DiskPaths:   []string{filepath.Dir(cfg.Profile.Path), filepath.Dir(reportPath)},
				MinFree:     minFreeMB << 20,
				Out:         cmd.OutOrStdout(),
			}
			if verify {
				c.Verify = func(ctx context.Context) error {
					if !verifyProfile(ctx, cfg.Transform, nil) {
						return fmt.Errorf("%s debug failed", cfg.Transform.Bin)
					}
					return nil
				}
			}

			sum, err := c.Run(cmd.Context())
			if err != nil {
				if werr := c.WriteReport(reportPath, err); werr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "could not write error report: %v\n", werr)
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "error report written to %s\n", reportPath)
				}
				return fmt.Errorf("environment check: %w", err)
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), sum)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "environment ready")
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&full, "full", false, "Also probe optional services and the replication slot")
	f.IntVar(&attempts, "attempts", 30, "Connection attempts before the database counts as down")
	f.DurationVar(&delay, "delay", 2*time.Second, "Delay between connection attempts")
	f.StringVar(&reportPath, "report", envcheck.ReportFile, "Where to write the JSON error report")
	f.Uint64Var(&minFreeMB, "min-free-mb", 100, "Warn when less than this many MB are free next to the profile and report")
	f.BoolVar(&verify, "verify-profile", false, "Also run the transformation tool's debug command")
	f.StringSliceVar(&opts.Cfg.Probe.OptionalServices, "service", opts.Cfg.Probe.OptionalServices, "Optional service as Name=URL (repeatable)")
	return cmd
}
