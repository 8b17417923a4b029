package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the cdcboot collectors.
	Registry = prometheus.NewRegistry()

	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdcboot",
			Name:      "probe_total",
			Help:      "Probe evaluations by target kind and tri-state outcome.",
		},
		[]string{"kind", "status"},
	)

	states = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdcboot",
			Name:      "state_total",
			Help:      "Classified pipeline states.",
		},
		[]string{"state"},
	)

	pollAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdcboot",
			Name:      "poll_attempts_total",
			Help:      "Job poll observations by outcome.",
		},
		[]string{"outcome"},
	)

	provisionSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdcboot",
			Name:      "provision_steps_total",
			Help:      "Provisioning workflow step results.",
		},
		[]string{"step", "result"},
	)

	transformRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdcboot",
			Name:      "transform_runs_total",
			Help:      "Transformation tool invocations.",
		},
		[]string{"command", "result"},
	)

	transformDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cdcboot",
			Name:      "transform_duration_seconds",
			Help:      "Duration of transformation tool invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		},
		[]string{"command"},
	)
)

func init() {
	Registry.MustRegister(
		probes,
		states,
		pollAttempts,
		provisionSteps,
		transformRuns,
		transformDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes Handler on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("metrics listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RecordProbe counts one probe evaluation.
func RecordProbe(kind, status string) { probes.WithLabelValues(kind, status).Inc() }

// RecordState counts one classification.
func RecordState(state string) { states.WithLabelValues(state).Inc() }

// RecordPollAttempt counts one job status observation.
func RecordPollAttempt(outcome string) { pollAttempts.WithLabelValues(outcome).Inc() }

// RecordStep counts one provisioning step result ("ok" or "failed").
func RecordStep(step, result string) { provisionSteps.WithLabelValues(step, result).Inc() }

// RecordTransform records one transformation tool invocation.
func RecordTransform(command string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	transformRuns.WithLabelValues(command, result).Inc()
	transformDuration.WithLabelValues(command).Observe(d.Seconds())
}
