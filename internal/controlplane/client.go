// Package controlplane is a thin typed client for the replication control-plane API.
// It never retries; callers own the retry policy.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

var (
	// ErrConnection means the request never got an HTTP response.
	ErrConnection = errors.New("control plane connection failure")
	// ErrTimeout means the request exceeded its deadline.
	ErrTimeout = errors.New("control plane request timed out")
	// ErrMissingField means a successful response lacked the documented key.
	ErrMissingField = errors.New("control plane response missing field")
	// ErrDefinitionNotFound means no definition matched the requested engine.
	ErrDefinitionNotFound = errors.New("no matching connector definition")
)

// ClientError is a non-2xx answer.
type ClientError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing calls; 0 disables throttling.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client talks to the control plane.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends body (JSON-encoded when non-nil) to path and returns the parsed JSON answer.
func (c *Client) Do(ctx context.Context, method, path string, body any) (gjson.Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, classify(err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	slog.Debug("control plane request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, classify(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, classify(err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return gjson.Result{}, &ClientError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, fmt.Errorf("%s %s: invalid JSON response", method, path)
	}
	return gjson.ParseBytes(respBody), nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// requireString extracts a non-empty string at key.
func requireString(res gjson.Result, path, key string) (string, error) {
	v := res.Get(key)
	if !v.Exists() || v.String() == "" {
		return "", fmt.Errorf("%s: %w %q", path, ErrMissingField, key)
	}
	return v.String(), nil
}
