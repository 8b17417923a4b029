//go:build integration
// +build integration

package util

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vbp1/cdcboot/internal/poll"
	"github.com/vbp1/cdcboot/internal/process"
)

// Stack is a docker compose project holding the source and target databases.
type Stack struct {
	file    string
	project string
}

// Up starts the compose project and waits for its healthchecks.
func Up(ctx context.Context, composeFile, project string) (*Stack, error) {
	abs, err := filepath.Abs(composeFile)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	s := &Stack{file: abs, project: project}
	if res := s.compose(ctx, "up", "-d", "--wait"); !res.OK() {
		return nil, fmt.Errorf("docker compose up: exit %d: %v\n%s", res.ExitCode, res.Err, res.Output())
	}
	return s, nil
}

func (s *Stack) compose(ctx context.Context, args ...string) process.Result {
	return process.RunLogged(ctx, "", "docker", append([]string{"compose", "-f", s.file, "-p", s.project}, args...)...)
}

// Down removes containers and volumes.
func (s *Stack) Down() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if res := s.compose(ctx, "down", "-v"); !res.OK() {
		return fmt.Errorf("docker compose down: exit %d: %v", res.ExitCode, res.Err)
	}
	return nil
}

// Logs returns the last lines a service wrote, for failure reports.
func (s *Stack) Logs(service string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return string(s.compose(ctx, "logs", "--no-color", "--tail", "50", service).Output())
}

// WaitPostgres polls pg_isready inside service until it answers or timeout passes.
func (s *Stack) WaitPostgres(ctx context.Context, service, user string, timeout time.Duration) error {
	p := poll.Poller{Config: poll.Config{Interval: 2 * time.Second, MaxAttempts: int(timeout/(2*time.Second)) + 1}}
	_, err := poll.Until(ctx, p, service, func(ctx context.Context) error {
		if res := s.compose(ctx, "exec", "-T", service, "pg_isready", "-U", user); !res.OK() {
			return fmt.Errorf("pg_isready: exit %d", res.ExitCode)
		}
		return nil
	})
	return err
}

// Psql runs sql inside service and returns psql's output.
func (s *Stack) Psql(ctx context.Context, service, user, db, sql string) (string, error) {
	res := s.compose(ctx, "exec", "-T", service, "psql", "-U", user, "-d", db, "-v", "ON_ERROR_STOP=1", "-c", sql)
	if !res.OK() {
		return string(res.Output()), fmt.Errorf("psql %s: exit %d: %s", service, res.ExitCode, res.Tail(3))
	}
	return string(res.Stdout), nil
}
