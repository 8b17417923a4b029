package probe

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	execx "github.com/vbp1/cdcboot/internal/process"
)

// Lister returns names of running services matching filter (substring).
type Lister interface {
	Names(ctx context.Context, filter string) ([]string, error)
}

// Process checks whether a named service is running. Listing is bounded by Timeout
// (DefaultTimeout when zero).
type Process struct {
	Name    string
	Lister  Lister
	Timeout time.Duration
}

func (p Process) identity() (Kind, string) { return KindProcess, p.Name }

// Probe implements Prober.
func (p Process) Probe(ctx context.Context) Result {
	res := Result{Kind: KindProcess, Name: p.Name}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	names, err := p.Lister.Names(ctx, p.Name)
	if err != nil {
		res.Detail = err.Error()
		slog.Debug("probe: process listing failed", "name", p.Name, "err", err)
		return res
	}
	for _, n := range names {
		if strings.Contains(n, p.Name) {
			res.Reachable = true
			return res
		}
	}
	return res
}

// Docker lists running containers with the local docker CLI.
type Docker struct {
	Run execx.Runner
}

// Names implements Lister.
func (d Docker) Names(ctx context.Context, filter string) ([]string, error) {
	run := d.Run
	if run == nil {
		run = execx.RunLogged
	}
	res := run(ctx, "", "docker", dockerPSArgs(filter)...)
	if !res.OK() {
		return nil, fmt.Errorf("docker ps: exit %d: %v: %s", res.ExitCode, res.Err, res.Tail(3))
	}
	return splitLines(string(res.Stdout)), nil
}

// RemoteRunner runs a shell command on another host; *ssh.Client satisfies it.
type RemoteRunner interface {
	Output(ctx context.Context, cmd string) ([]byte, error)
}

// RemoteDocker lists containers on a remote docker host over SSH.
type RemoteDocker struct {
	Remote RemoteRunner
}

var safeFilter = regexp.MustCompile(`^[A-Za-z0-9_.-]*$`)

// Names implements Lister.
func (d RemoteDocker) Names(ctx context.Context, filter string) ([]string, error) {
	if !safeFilter.MatchString(filter) {
		return nil, fmt.Errorf("unsupported container name %q", filter)
	}
	args := dockerPSArgs(filter)
	for i, a := range args {
		args[i] = "'" + a + "'"
	}
	out, err := d.Remote.Output(ctx, "docker "+strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	return splitLines(string(out)), nil
}

// Local lists processes on this host by executable name.
type Local struct{}

// Names implements Lister.
func (Local) Names(ctx context.Context, filter string) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// exited or not visible to us
			continue
		}
		if strings.Contains(name, filter) {
			names = append(names, name)
		}
	}
	return names, nil
}

func dockerPSArgs(filter string) []string {
	return []string{"ps", "--filter", "name=" + filter, "--format", "{{.Names}}"}
}

func splitLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
