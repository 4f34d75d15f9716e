// Package metrics exposes the server, engine and pool as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iamBelugaa/kvs/internal/engine"
	"github.com/iamBelugaa/kvs/internal/threadpool"
)

const namespace = "kvs"

// Request outcomes used as the "result" label.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics holds the collectors updated on the request path. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec

	ActiveConnections prometheus.Gauge
	TotalConnections  prometheus.Counter
	ConnectionErrors  *prometheus.CounterVec
}

// New creates and registers the request and connection collectors.
func New(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "request_duration_seconds",
				Help:      "Histogram of request latencies by operation",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
			},
			[]string{"op"},
		),

		RequestTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "requests_total",
				Help:      "Total number of requests by operation and result",
			},
			[]string{"op", "result"},
		),

		ActiveConnections: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "active_connections",
				Help:      "Current number of open client connections",
			},
		),

		TotalConnections: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "connections_total",
				Help:      "Total number of accepted client connections",
			},
		),

		ConnectionErrors: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "connection_errors_total",
				Help:      "Connections closed because of a decode or I/O error",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) ObserveRequest(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestTotal.WithLabelValues(op, result).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.TotalConnections.Inc()
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) ConnectionFailed(reason string) {
	if m == nil {
		return
	}
	m.ConnectionErrors.WithLabelValues(reason).Inc()
}

// RegisterEngine exports the bookkeeping of an engine that reports Stats.
func RegisterEngine(registry prometheus.Registerer, p engine.StatsProvider) {
	factory := promauto.With(registry)
	gauge := func(name, help string, read func(engine.Stats) float64) {
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "engine", Name: name, Help: help},
			func() float64 { return read(p.Stats()) },
		)
	}

	gauge("keys", "Live keys in the index", func(s engine.Stats) float64 { return float64(s.Keys) })
	gauge("uncompacted_bytes", "Stale bytes reclaimable by compaction", func(s engine.Stats) float64 {
		return float64(s.UncompactedBytes)
	})
	gauge("generation", "Generation of the active file", func(s engine.Stats) float64 {
		return float64(s.Generation)
	})

	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "compactions_total",
			Help:      "Compactions completed since the engine was opened",
		},
		func() float64 { return float64(p.Stats().Compactions) },
	)
}

// RegisterPool exports the counters of a worker pool.
func RegisterPool(registry prometheus.Registerer, pool threadpool.Pool) {
	factory := promauto.With(registry)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Subsystem: "pool", Name: "queued_jobs", Help: "Jobs waiting for a worker"},
		func() float64 { return float64(pool.Stats().Queued) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Subsystem: "pool", Name: "running_jobs", Help: "Jobs currently executing"},
		func() float64 { return float64(pool.Stats().Running) },
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "pool", Name: "panics_recovered_total", Help: "Jobs that panicked and were recovered"},
		func() float64 { return float64(pool.Stats().Panics) },
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "pool", Name: "jobs_aborted_total", Help: "Jobs that ended their goroutine with runtime.Goexit"},
		func() float64 { return float64(pool.Stats().Aborted) },
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "pool", Name: "jobs_completed_total", Help: "Jobs that returned normally"},
		func() float64 { return float64(pool.Stats().Completed) },
	)
}
