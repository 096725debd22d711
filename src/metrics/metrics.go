// Package metrics holds the prometheus collectors for the pool, the orchestrator
// and the operations. Collectors live on a private registry so several
// instances (tests, the stress tool) never collide.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "screen_lookup"

// Discard reasons.
const (
	ReasonSuperseded = "superseded"
	ReasonProtocol   = "protocol"
	ReasonTimeout    = "timeout"
)

// Collectors is the set of metrics recorded by the bridge. A nil *Collectors is
// valid and records nothing.
type Collectors struct {
	registry *prometheus.Registry

	poolInFlight  prometheus.Gauge
	poolRejected  prometheus.Counter
	poolFaults    prometheus.Counter
	poolCompleted *prometheus.CounterVec
	discarded     *prometheus.CounterVec
	forwarded     *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		poolInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "in_flight",
			Help:      "Jobs admitted to the worker pool and not yet completed.",
		}),
		poolRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "rejected_total",
			Help:      "Jobs rejected because the pool was at capacity.",
		}),
		poolFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "faults_total",
			Help:      "Panics contained inside worker slots.",
		}),
		poolCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "completed_total",
			Help:      "Jobs completed by the worker pool, by outcome.",
		}, []string{"outcome"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "discarded_results_total",
			Help:      "Results discarded at the delivery boundary, by reason.",
		}, []string{"reason"}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "forwarded_updates_total",
			Help:      "UI updates forwarded toward the UI thread, by kind.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "duration_seconds",
			Help:      "Time from submit to result, by operation kind.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"kind"}),
	}
	c.registry.MustRegister(
		c.poolInFlight, c.poolRejected, c.poolFaults, c.poolCompleted,
		c.discarded, c.forwarded, c.latency,
	)
	return c
}

// Registry exposes the private registry, mainly for tests.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// PoolAdmitted records a job entering the pool.
func (c *Collectors) PoolAdmitted() {
	if c == nil {
		return
	}
	c.poolInFlight.Inc()
}

// PoolCompleted records a job leaving the pool with the given outcome
// ("success", "failure", "cancelled", "fault").
func (c *Collectors) PoolCompleted(outcome string) {
	if c == nil {
		return
	}
	c.poolInFlight.Dec()
	c.poolCompleted.WithLabelValues(outcome).Inc()
	if outcome == "fault" {
		c.poolFaults.Inc()
	}
}

// PoolRejected records a Busy rejection.
func (c *Collectors) PoolRejected() {
	if c == nil {
		return
	}
	c.poolRejected.Inc()
}

// Discarded records a result dropped at the delivery boundary.
func (c *Collectors) Discarded(reason string) {
	if c == nil {
		return
	}
	c.discarded.WithLabelValues(reason).Inc()
}

// Forwarded records a UI update leaving the orchestrator.
func (c *Collectors) Forwarded(kind string) {
	if c == nil {
		return
	}
	c.forwarded.WithLabelValues(kind).Inc()
}

// ObserveLatency records submit-to-result time for an operation kind.
func (c *Collectors) ObserveLatency(kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.latency.WithLabelValues(kind).Observe(d.Seconds())
}

// Serve exposes the registry on addr under /metrics until ctx is done.
func (c *Collectors) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
