package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vbp1/cdcboot/internal/profile"
	"github.com/vbp1/cdcboot/internal/transform"
)

// NewTransformCommand runs one transformation tool command, writing the profile first when
// it is missing.
func NewTransformCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       fmt.Sprintf("transform <%s>", strings.Join(transform.Commands(), "|")),
		Short:     "Run the transformation tool",
		Args:      cobra.ExactArgs(1),
		ValidArgs: transform.Commands(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !(profile.Store{Path: opts.Cfg.Profile.Path}).Exists() {
				fmt.Fprintf(cmd.ErrOrStderr(), "profile %s not found, configuring first\n", opts.Cfg.Profile.Path)
				if _, err := configure(ctx, opts.Cfg, cmd.ErrOrStderr()); err != nil {
					return fmt.Errorf("configure: %w", err)
				}
			}
			r := transform.New(opts.Cfg.Transform, cmd.OutOrStdout())
			if err := r.Run(ctx, args[0]); err != nil {
				return fmt.Errorf("transform %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "transform %s completed\n", args[0])
			return nil
		},
	}
}
