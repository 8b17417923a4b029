package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vbp1/cdcboot/internal/config"
	"github.com/vbp1/cdcboot/internal/profile"
	"github.com/vbp1/cdcboot/internal/state"
	"github.com/vbp1/cdcboot/internal/transform"
)

type configureResult struct {
	State    state.PipelineState       `json:"state"`
	Fallback bool                      `json:"fallback"`
	Path     string                    `json:"path"`
	Profile  profile.ConnectionProfile `json:"-"`
	Database string                    `json:"database"`
	Host     string                    `json:"host"`
	Port     int                       `json:"port"`
	Verified *bool                     `json:"verified,omitempty"`
}

// NewConfigureCommand detects the state and writes the transformation profile.
func NewConfigureCommand(opts *RootOptions) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Detect the pipeline state and write the transformation profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := configure(cmd.Context(), opts.Cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if verify {
				ok := verifyProfile(cmd.Context(), opts.Cfg.Transform, nil)
				res.Verified = &ok
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state: %s\nprofile: %s -> %s@%s:%d\n", res.State, res.Path, res.Database, res.Host, res.Port)
			if res.Verified != nil && !*res.Verified {
				fmt.Fprintln(cmd.OutOrStdout(), "warning: profile written but verification failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Run the transformation tool's debug command after writing")
	return cmd
}

// configure runs detect, synthesize and write. A fallback state only warns.
func configure(ctx context.Context, cfg *config.Config, warn io.Writer) (configureResult, error) {
	snap := detect(ctx, cfg)
	p, fallback := profile.Synthesize(snap.State, cfg.Source, cfg.Target, cfg.Profile)
	if fallback {
		slog.Warn("no usable pipeline detected, profile falls back to the source database", "state", snap.State)
		fmt.Fprintf(warn, "warning: state %s, falling back to the source database %s\n", snap.State, p.Database)
	}
	store := profile.Store{Path: cfg.Profile.Path}
	if err := store.Write(profile.NewDocument(cfg.Profile.Name, cfg.Profile.Target, p)); err != nil {
		return configureResult{}, err
	}
	slog.Info("profile written", "path", store.Path, "state", snap.State, "database", p.Database)
	return configureResult{
		State:    snap.State,
		Fallback: fallback,
		Path:     store.Path,
		Profile:  p,
		Database: p.Database,
		Host:     p.Host,
		Port:     p.Port,
	}, nil
}

// verifyProfile runs "<tool> debug --quiet"; failure is a warning.
func verifyProfile(ctx context.Context, cfg config.Transform, out io.Writer) bool {
	r := transform.New(cfg, out)
	if _, err := r.Step(ctx, "debug", "--quiet"); err != nil {
		slog.Warn("profile verification failed", "err", err)
		return false
	}
	return true
}
