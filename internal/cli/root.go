package cli

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/vbp1/cdcboot/internal/config"
	"github.com/vbp1/cdcboot/internal/log"
	"github.com/vbp1/cdcboot/internal/poll"
	"github.com/vbp1/cdcboot/internal/util/signalctx"
)

// Output formats.
var validFormats = []string{"text", "json"}

var validProgress = []string{poll.ModeAuto, poll.ModeBar, poll.ModePlain, poll.ModeNone}

// RootOptions holds global flags and the configuration every subcommand reads.
type RootOptions struct {
	Debug    bool
	Verbose  bool
	Format   string
	Progress string

	Cfg *config.Config
}

// NewRootCommand builds the cdcboot command tree. Flag defaults come from the environment.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Cfg: config.Default()}

	cmd := &cobra.Command{
		Use:   "cdcboot",
		Short: "Bootstrap a Postgres CDC pipeline and its transformation profile",
		Long: `cdcboot detects how far a CDC pipeline has been set up, writes the matching
transformation profile, provisions the replication control plane and runs the
transformation tool on demand or on a schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			if !slices.Contains(validProgress, opts.Progress) {
				return fmt.Errorf("invalid progress mode %q: must be one of %v", opts.Progress, validProgress)
			}
			log.SetupWriter(cmd.ErrOrStderr(), opts.Debug, opts.Verbose)
			return opts.Cfg.Validate()
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose output")
	pf.StringVar(&opts.Format, "format", "text", "Output format: text|json")
	pf.StringVar(&opts.Progress, "progress", poll.ModeAuto, "Progress display mode: auto|bar|plain|none")
	bindDatabaseFlags(cmd, "source", &opts.Cfg.Source)
	bindDatabaseFlags(cmd, "target", &opts.Cfg.Target)
	bindProbeFlags(cmd, &opts.Cfg.Probe)
	bindProfileFlags(cmd, &opts.Cfg.Profile)
	bindTransformFlags(cmd, &opts.Cfg.Transform)
	pf.StringVar(&opts.Cfg.ControlPlane.URL, "api-url", opts.Cfg.ControlPlane.URL, "Control-plane API base URL")

	cmd.AddCommand(NewDetectCommand(opts))
	cmd.AddCommand(NewConfigureCommand(opts))
	cmd.AddCommand(NewProvisionCommand(opts))
	cmd.AddCommand(NewTransformCommand(opts))
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	return cmd
}

// Execute runs the command tree with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	// Flag defaults are read from the environment, so the dotenv file goes first.
	if err := config.LoadEnvFile(os.Getenv(config.EnvFileVar)); err != nil {
		return err
	}
	ctx, cancel, sigCh := signalctx.WithSignals(context.Background())
	defer cancel()

	err := NewRootCommand().ExecuteContext(ctx)
	select {
	case s := <-sigCh:
		if err != nil {
			return fmt.Errorf("interrupted by %s: %w", s, err)
		}
		return fmt.Errorf("interrupted by %s", s)
	default:
	}
	return err
}

func bindDatabaseFlags(cmd *cobra.Command, prefix string, db *config.Database) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&db.Host, prefix+"-host", db.Host, "Host of the "+prefix+" database as seen from this machine")
	pf.IntVar(&db.Port, prefix+"-port", db.Port, "Port of the "+prefix+" database")
	pf.StringVar(&db.Name, prefix+"-db", db.Name, "Name of the "+prefix+" database")
	pf.StringVar(&db.User, prefix+"-user", db.User, "User of the "+prefix+" database")
	pf.StringVar(&db.Password, prefix+"-password", db.Password, "Password of the "+prefix+" database")
	pf.DurationVar(&db.ConnectTimeout, prefix+"-connect-timeout", db.ConnectTimeout, "Connect timeout for the "+prefix+" database")
}

func bindProbeFlags(cmd *cobra.Command, p *config.Probe) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&p.Lister, "lister", p.Lister, "How to look for running services: docker|local|ssh")
	pf.StringVar(&p.ReplicationProc, "replication-process", p.ReplicationProc, "Name of the replication tool's web component")
	pf.StringVar(&p.CountTable, "count-table", p.CountTable, "Table counted to decide whether a database has data")
	pf.DurationVar(&p.HTTPTimeout, "http-timeout", p.HTTPTimeout, "Timeout of HTTP service probes")
	pf.DurationVar(&p.Timeout, "probe-timeout", p.Timeout, "Upper bound for any single detection probe")
	pf.StringVar(&p.SSHHost, "ssh-host", p.SSHHost, "Docker host reached over SSH (lister=ssh)")
	pf.StringVar(&p.SSHUser, "ssh-user", p.SSHUser, "SSH user (lister=ssh)")
	pf.StringVar(&p.SSHKey, "ssh-key", p.SSHKey, "SSH private key file")
	pf.BoolVar(&p.InsecureSSH, "insecure-ssh", p.InsecureSSH, "Disable strict host-key checking (NOT recommended)")
}

func bindProfileFlags(cmd *cobra.Command, p *config.Profile) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&p.Path, "profile-path", p.Path, "Profile file written by configure")
	pf.StringVar(&p.Name, "profile-name", p.Name, "Profile name")
	pf.StringVar(&p.Target, "profile-target", p.Target, "Profile output target")
}

func bindTransformFlags(cmd *cobra.Command, t *config.Transform) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&t.Bin, "dbt-bin", t.Bin, "Transformation tool binary")
	pf.StringVar(&t.ProjectDir, "project-dir", t.ProjectDir, "Transformation project directory")
	pf.StringVar(&t.ProfilesDir, "profiles-dir", t.ProfilesDir, "Directory passed to the tool as --profiles-dir")
	pf.DurationVar(&t.Timeout, "dbt-timeout", t.Timeout, "Timeout of a single tool invocation")
}
