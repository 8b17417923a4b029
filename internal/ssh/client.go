// Package ssh runs commands on the container host when the containers are not local.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config describes connection parameters for an SSH session.
type Config struct {
	User     string        // remote user (required)
	Host     string        // host or host:port (required)
	KeyPath  string        // private key; empty tries DefaultKeyPaths then ssh-agent
	Insecure bool          // skip host key verification
	Timeout  time.Duration // dial timeout; 0 means DefaultTimeout
}

// DefaultTimeout used when Config.Timeout==0.
const DefaultTimeout = 10 * time.Second

// maxOutput caps captured command output.
const maxOutput = 1 << 20

// DefaultKeyPaths tried when Config.KeyPath is empty.
func DefaultKeyPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}
}

// Client wraps ssh.Client. Close must be called when no longer needed.
type Client struct {
	cfg    Config
	client *ssh.Client
}

// Dial establishes the SSH connection, giving up when ctx is done.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.User == "" || cfg.Host == "" {
		return nil, errors.New("ssh: user and host required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	auth, err := authMethods(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	hostKeys, err := hostKeyCallback(cfg.Insecure)
	if err != nil {
		return nil, err
	}
	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         cfg.Timeout,
	}
	slog.Debug("ssh dial", "addr", addr, "user", cfg.User)

	type dialed struct {
		c   *ssh.Client
		err error
	}
	ch := make(chan dialed, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialed{c, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-ch:
		if d.err != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", addr, d.err)
		}
		return &Client{cfg: cfg, client: d.c}, nil
	}
}

// Close underlying connection.
func (c *Client) Close() error { return c.client.Close() }

// Output runs cmd remotely and returns its stdout. Stderr is folded into the error.
func (c *Client) Output(ctx context.Context, cmd string) ([]byte, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close() }()

	stdout := &limitedBuffer{N: maxOutput}
	stderr := &limitedBuffer{N: maxOutput}
	session.Stdout = stdout
	session.Stderr = stderr

	slog.Debug("ssh run", "cmd", cmd, "host", c.cfg.Host)
	if err := session.Start(cmd); err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return stdout.Bytes(), fmt.Errorf("ssh %q: %w: %s", cmd, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return stdout.Bytes(), nil
	}
}

// KnownHostsPath is consulted when host key checking is on.
var KnownHostsPath = func() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ssh", "known_hosts")
}

func hostKeyCallback(insecure bool) (ssh.HostKeyCallback, error) {
	if insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(KnownHostsPath())
	if err != nil {
		return nil, fmt.Errorf("ssh: load known_hosts (use --insecure-ssh to skip): %w", err)
	}
	return cb, nil
}

func authMethods(keyPath string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	paths := DefaultKeyPaths()
	if keyPath != "" {
		paths = []string{keyPath}
	}
	for _, p := range paths {
		key, err := os.ReadFile(p)
		if err != nil {
			if keyPath != "" {
				return nil, fmt.Errorf("ssh: read key %s: %w", p, err)
			}
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			if keyPath != "" {
				return nil, fmt.Errorf("ssh: parse key %s: %w", p, err)
			}
			continue
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, errors.New("ssh: no auth methods found (provide key or ensure agent running)")
	}
	return methods, nil
}

// ErrOutputTooLarge is returned when a remote command prints more than the capture cap.
var ErrOutputTooLarge = errors.New("ssh output too large")

// limitedBuffer prevents unbounded memory when capturing command output.
type limitedBuffer struct {
	buf bytes.Buffer
	N   int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.N > 0 && b.buf.Len()+len(p) > b.N {
		return 0, fmt.Errorf("%w: over %d bytes", ErrOutputTooLarge, b.N)
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte { return b.buf.Bytes() }
