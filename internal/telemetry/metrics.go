// Package telemetry exposes Prometheus collectors for engine operations,
// cache effectiveness, and the background embedding pipeline. All methods
// are nil-safe so callers can run without metrics wired.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/membank-io/membank/internal/errors"
)

// Metrics is the collector set served at /metrics.
type Metrics struct {
	reg prometheus.Registerer

	ops        *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	cacheOps   *prometheus.CounterVec
	embedJobs  *prometheus.CounterVec
	queueDepth prometheus.GaugeFunc
}

// New registers the collector set on reg. Passing nil uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		reg: reg,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "membank",
			Name:      "operations_total",
			Help:      "Engine operations by name and outcome.",
		}, []string{"op", "status"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "membank",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"op"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "membank",
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		embedJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "membank",
			Name:      "embed_jobs_total",
			Help:      "Background embedding jobs by kind and outcome.",
		}, []string{"kind", "status"}),
	}

	reg.MustRegister(m.ops, m.opDuration, m.cacheOps, m.embedJobs)
	return m
}

// SetQueueDepth registers a gauge sampling the embedding queue depth at
// collection time. Call once after the queue exists.
func (m *Metrics) SetQueueDepth(depth func() float64) {
	if m == nil || depth == nil {
		return
	}
	m.queueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "membank",
		Name:      "embed_queue_depth",
		Help:      "Jobs waiting or in flight in the embedding queue.",
	}, depth)
	m.reg.MustRegister(m.queueDepth)
}

// ObserveOp records one engine operation. The status label is "ok" or
// the error kind.
func (m *Metrics) ObserveOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = string(apperrors.KindOf(err))
	}
	m.ops.WithLabelValues(op, status).Inc()
	m.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CacheHit records a cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues("hit").Inc()
}

// CacheMiss records a cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues("miss").Inc()
}

// EmbedJob records a finished background job.
func (m *Metrics) EmbedJob(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.embedJobs.WithLabelValues(kind, status).Inc()
}
