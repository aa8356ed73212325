package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the repair daemon.
type Metrics struct {
	registry       *prometheus.Registry
	RepairRuns     *prometheus.CounterVec
	RepairDuration *prometheus.HistogramVec
	RepairAttempts *prometheus.HistogramVec
	SandboxRuns    *prometheus.CounterVec
	EmbedRequests  *prometheus.CounterVec
	EmbedRetries   prometheus.Counter
	IndexRebuilds  prometheus.Counter
	IndexSize      prometheus.Gauge
	ActiveSession  *prometheus.GaugeVec
	TransportErrs  *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with repair/index collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentfix_repair_runs_total",
		Help: "Total repair runs by outcome",
	}, []string{"outcome"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentfix_repair_duration_seconds",
		Help:    "Repair run duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	attempts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentfix_repair_attempts",
		Help:    "Failed attempts consumed per repair run",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	}, []string{"outcome"})

	sandbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentfix_sandbox_runs_total",
		Help: "Sandbox executions by kind (test, install) and result",
	}, []string{"kind", "result"})

	embeds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentfix_embed_requests_total",
		Help: "Embedding service requests by result",
	}, []string{"result"})

	embedRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentfix_embed_retries_total",
		Help: "Embedding request retries",
	})

	rebuilds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentfix_index_rebuilds_total",
		Help: "Similarity index rebuilds",
	})

	indexSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agentfix_index_records",
		Help: "Records in the current index generation",
	})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agentfix_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentfix_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(runs, durs, attempts, sandbox, embeds, embedRetries, rebuilds, indexSize, active, trErrors)

	return &Metrics{
		registry:       reg,
		RepairRuns:     runs,
		RepairDuration: durs,
		RepairAttempts: attempts,
		SandboxRuns:    sandbox,
		EmbedRequests:  embeds,
		EmbedRetries:   embedRetries,
		IndexRebuilds:  rebuilds,
		IndexSize:      indexSize,
		ActiveSession:  active,
		TransportErrs:  trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRepairRun records outcome, duration and attempts consumed.
func (m *Metrics) RecordRepairRun(outcome string, duration time.Duration, attempts int) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.RepairRuns.WithLabelValues(outcome).Inc()
	m.RepairDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.RepairAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// RecordSandboxRun records a sandbox execution result.
func (m *Metrics) RecordSandboxRun(kind string, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.SandboxRuns.WithLabelValues(kind, result).Inc()
}

// RecordEmbedRequest records an embedding call result.
func (m *Metrics) RecordEmbedRequest(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.EmbedRequests.WithLabelValues(result).Inc()
}

// RecordEmbedRetry counts a single embedding retry.
func (m *Metrics) RecordEmbedRetry() {
	if m == nil {
		return
	}
	m.EmbedRetries.Inc()
}

// RecordIndexRebuild records a completed rebuild and the new record count.
func (m *Metrics) RecordIndexRebuild(records int) {
	if m == nil {
		return
	}
	m.IndexRebuilds.Inc()
	m.IndexSize.Set(float64(records))
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}
