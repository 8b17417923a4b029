package probe

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HTTP checks that a service endpoint answers. With RequireOK only HTTP 200 counts,
// otherwise any HTTP response does.
type HTTP struct {
	Name      string
	URL       string
	Timeout   time.Duration
	RequireOK bool
	Client    *http.Client
}

func (h HTTP) identity() (Kind, string) { return KindServiceEndpoint, h.Name }

// Probe implements Prober.
func (h HTTP) Probe(ctx context.Context) Result {
	res := Result{Kind: KindServiceEndpoint, Name: h.Name}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	resp, err := client.Do(req)
	if err != nil {
		res.Detail = err.Error()
		slog.Debug("probe: endpoint unreachable", "name", h.Name, "url", h.URL, "err", err)
		return res
	}
	_ = resp.Body.Close()
	if h.RequireOK && resp.StatusCode != http.StatusOK {
		res.Detail = resp.Status
		return res
	}
	res.Reachable = true
	return res
}
