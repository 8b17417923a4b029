// Package transform runs the transformation tool (dbt) inside its project directory.
package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vbp1/cdcboot/internal/config"
	"github.com/vbp1/cdcboot/internal/metrics"
	"github.com/vbp1/cdcboot/internal/process"
	"github.com/vbp1/cdcboot/internal/util/fs"
)

var (
	// ErrUnknownCommand is returned for a command outside Commands().
	ErrUnknownCommand = errors.New("unknown transform command")
	// ErrCommandFailed means the tool ran and exited non-zero.
	ErrCommandFailed = errors.New("transform command failed")
	// ErrToolMissing means the tool binary could not be started.
	ErrToolMissing = errors.New("transform tool not available")
	// ErrProjectNotFound means the configured project directory does not exist.
	ErrProjectNotFound = errors.New("transform project directory not found")
)

// Full runs the models and then the tests.
const Full = "full"

var plans = map[string][]string{
	"debug": {"debug"},
	"run":   {"run"},
	"test":  {"test"},
	"deps":  {"deps"},
	"seed":  {"seed"},
	Full:    {"run", "test"},
}

// Commands lists the accepted command names.
func Commands() []string { return []string{"debug", "run", "test", Full, "deps", "seed"} }

// Runner invokes the tool. Exec defaults to process.RunLogged; Out receives the tool output
// when set.
type Runner struct {
	Cfg  config.Transform
	Exec process.Runner
	Out  io.Writer
}

// New returns a Runner for cfg.
func New(cfg config.Transform, out io.Writer) *Runner {
	return &Runner{Cfg: cfg, Exec: process.RunLogged, Out: out}
}

// Version checks the tool is installed and returns its version banner.
func (r *Runner) Version(ctx context.Context) (string, error) {
	res := r.exec(ctx, "", "--version")
	if !res.Started() {
		return "", fmt.Errorf("%w: %s: %v", ErrToolMissing, r.Cfg.Bin, res.Err)
	}
	if !res.OK() {
		return "", fmt.Errorf("%s --version: exit %d: %w", r.Cfg.Bin, res.ExitCode, ErrCommandFailed)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// Run executes a named command; full stops after a failed run.
func (r *Runner) Run(ctx context.Context, command string) error {
	plan, ok := plans[command]
	if !ok {
		return fmt.Errorf("%w %q (want one of %s)", ErrUnknownCommand, command, strings.Join(Commands(), ", "))
	}
	for _, sub := range plan {
		if _, err := r.Step(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

// Step runs one tool subcommand in the project directory and returns its result. The
// error names the subcommand when it could not start or exited non-zero.
func (r *Runner) Step(ctx context.Context, sub string, extra ...string) (process.Result, error) {
	if r.Cfg.ProjectDir != "" && !fs.Exists(r.Cfg.ProjectDir) {
		return process.Result{}, fmt.Errorf("%w: %s", ErrProjectNotFound, r.Cfg.ProjectDir)
	}
	args := append([]string{sub}, extra...)
	if r.Cfg.ProfilesDir != "" {
		ctx = process.WithEnv(ctx, map[string]string{"DBT_PROFILES_DIR": r.Cfg.ProfilesDir})
		if sub != "deps" {
			args = append(args, "--profiles-dir", r.Cfg.ProfilesDir)
		}
	}

	if r.Cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Cfg.Timeout)
		defer cancel()
	}

	slog.Info("transform", "cmd", r.Cfg.Bin+" "+sub, "dir", r.Cfg.ProjectDir)
	res := r.exec(ctx, r.Cfg.ProjectDir, args...)
	metrics.RecordTransform(sub, res.OK(), res.Duration)
	r.show(res)

	switch {
	case res.OK():
		slog.Info("transform done", "cmd", sub, "dur", res.Duration)
		return res, nil
	case !res.Started() && ctx.Err() != nil:
		return res, fmt.Errorf("%s %s: %w", r.Cfg.Bin, sub, ctx.Err())
	case !res.Started():
		return res, fmt.Errorf("%s %s: %w: %v", r.Cfg.Bin, sub, ErrToolMissing, res.Err)
	default:
		slog.Debug("transform output tail", "cmd", sub, "tail", res.Tail(5))
		return res, fmt.Errorf("%s %s: exit %d: %w", r.Cfg.Bin, sub, res.ExitCode, ErrCommandFailed)
	}
}

func (r *Runner) exec(ctx context.Context, dir string, args ...string) process.Result {
	run := r.Exec
	if run == nil {
		run = process.RunLogged
	}
	return run(ctx, dir, r.Cfg.Bin, args...)
}

func (r *Runner) show(res process.Result) {
	if out := res.Output(); r.Out != nil && len(out) > 0 {
		_, _ = r.Out.Write(out)
	}
}
