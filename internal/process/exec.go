package process

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result is what one external tool invocation left behind.
type Result struct {
	Cmd      string
	Args     []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int // -1 when the process never ran to completion
	Duration time.Duration
	Err      error
}

// OK reports whether the command started and exited with status 0.
func (r Result) OK() bool { return r.Err == nil && r.ExitCode == 0 }

// Started reports whether the process ran far enough to produce an exit status.
func (r Result) Started() bool { return r.ExitCode >= 0 }

// Output returns stdout followed by stderr.
func (r Result) Output() []byte {
	out := make([]byte, 0, len(r.Stdout)+len(r.Stderr))
	out = append(out, r.Stdout...)
	return append(out, r.Stderr...)
}

// Tail returns the last n non-empty lines of stderr, or of stdout when stderr is empty.
func (r Result) Tail(n int) string {
	src := r.Stderr
	if len(bytes.TrimSpace(src)) == 0 {
		src = r.Stdout
	}
	var lines []string
	for _, l := range strings.Split(string(src), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// String renders the command line for logs and error messages.
func (r Result) String() string {
	return strings.TrimSpace(r.Cmd + " " + strings.Join(r.Args, " "))
}

// Runner runs an external command in dir; RunLogged satisfies it.
type Runner func(ctx context.Context, dir string, bin string, args ...string) Result

// RunLogged executes bin in dir (empty = current) and collects its output. Extra
// environment entries can be attached to ctx with WithEnv.
func RunLogged(ctx context.Context, dir string, bin string, args ...string) Result {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	if env := envFrom(ctx); len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	slog.Debug("exec start", "cmd", bin, "args", args, "dir", dir)
	start := time.Now()
	err := cmd.Run()
	res := Result{
		Cmd:      bin,
		Args:     args,
		Stdout:   outBuf.Bytes(),
		Stderr:   errBuf.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
		Err:      err,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	slog.Debug("exec done", "cmd", bin, "code", res.ExitCode, "dur", res.Duration, "err", err)
	return res
}

type envKey struct{}

// WithEnv returns a context whose RunLogged calls add KEY=VALUE entries to the child
// environment.
func WithEnv(ctx context.Context, kv map[string]string) context.Context {
	env := append([]string(nil), envFrom(ctx)...)
	for k, v := range kv {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return context.WithValue(ctx, envKey{}, env)
}

func envFrom(ctx context.Context) []string {
	env, _ := ctx.Value(envKey{}).([]string)
	return env
}
