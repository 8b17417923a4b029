// Package schedule runs the transformation pipeline on a fixed interval.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/vbp1/cdcboot/internal/process"
	"github.com/vbp1/cdcboot/internal/runctx"
)

// DefaultSteps is the pipeline run on every pass.
var DefaultSteps = []string{"deps", "seed", "run", "test"}

// Stepper runs one tool subcommand; *transform.Runner satisfies it.
type Stepper interface {
	Step(ctx context.Context, sub string, extra ...string) (process.Result, error)
}

// Scheduler runs Steps every Interval. A pass halts at its first failing step and passes
// never overlap.
type Scheduler struct {
	Runner   Stepper
	Interval time.Duration
	Steps    []string
	// ArtifactsDir holds one directory per pass with the tool output of each step.
	ArtifactsDir string
	Keep         bool
	Log          *slog.Logger
}

// Pass is the outcome of one pipeline pass.
type Pass struct {
	ID       string
	Dir      string
	Done     []string
	Failed   string
	Duration time.Duration
	Err      error
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Scheduler) steps() []string {
	if len(s.Steps) == 0 {
		return DefaultSteps
	}
	return s.Steps
}

// RunOnce executes a single pass.
func (s *Scheduler) RunOnce(ctx context.Context) Pass {
	p := Pass{ID: uuid.NewString()}
	log := s.logger().With("run", p.ID)
	start := time.Now()
	log.Info("pipeline pass started", "steps", strings.Join(s.steps(), ","))

	rc, err := runctx.New(s.ArtifactsDir, p.ID[:8], s.Keep)
	if err != nil {
		p.Err = fmt.Errorf("create run directory: %w", err)
		return p
	}
	defer func() {
		if err := rc.Cleanup(); err != nil {
			log.Warn("run directory cleanup failed", "dir", rc.Dir, "err", err)
		}
	}()
	p.Dir = rc.Dir

	for i, step := range s.steps() {
		res, err := s.Runner.Step(ctx, step)
		if werr := rc.WriteArtifact(fmt.Sprintf("%02d_%s.log", i+1, step), res.Output()); werr != nil {
			log.Warn("write step output", "step", step, "err", werr)
		}
		if err != nil {
			p.Failed, p.Err = step, err
			break
		}
		p.Done = append(p.Done, step)
	}
	p.Duration = time.Since(start)

	if p.Err != nil {
		log.Error("pipeline pass failed", "step", p.Failed, "dur", p.Duration, "err", p.Err)
	} else {
		log.Info("pipeline pass succeeded", "dur", p.Duration)
	}
	return p
}

// Start runs a pass immediately and then every Interval until ctx is done. onPass, when
// set, observes every finished pass.
func (s *Scheduler) Start(ctx context.Context, onPass func(Pass)) error {
	if s.Interval <= 0 {
		return fmt.Errorf("schedule interval must be positive, got %s", s.Interval)
	}
	run := func() {
		p := s.RunOnce(ctx)
		if onPass != nil {
			onPass(p)
		}
	}

	logger := cronLogger{s.logger()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc("@every "+s.Interval.String(), run); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	s.logger().Info("scheduler started", "interval", s.Interval)
	run()
	if ctx.Err() != nil {
		return nil
	}
	c.Start()
	<-ctx.Done()
	s.logger().Info("scheduler stopping")
	<-c.Stop().Done()
	return nil
}

// cronLogger routes cron's logging through slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, append(kv, "err", err)...)
}
