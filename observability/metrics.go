// Package observability provides Prometheus metrics and OTLP tracing for the
// coordination runtime.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// ROUTER METRICS
// =============================================================================

var (
	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_dispatches_total",
			Help: "Total number of envelope dispatches",
		},
		[]string{"type", "status"}, // status: success, error
	)

	dispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragmesh_dispatch_duration_seconds",
			Help:    "Envelope dispatch duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"type"},
	)

	broadcastDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_broadcast_deliveries_total",
			Help: "Total broadcast deliveries by outcome",
		},
		[]string{"outcome"}, // outcome: delivered, failed
	)
)

// =============================================================================
// CHAIN METRICS
// =============================================================================

var (
	chainsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_chains_total",
			Help: "Total number of coordinated chains",
		},
		[]string{"kind", "status"}, // kind: query, upload; status: completed, failed
	)

	chainDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragmesh_chain_duration_seconds",
			Help:    "Chain execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	chainStageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_chain_stage_failures_total",
			Help: "Chain failures by stage",
		},
		[]string{"stage"},
	)
)

// =============================================================================
// AGENT METRICS
// =============================================================================

var (
	agentExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_agent_executions_total",
			Help: "Total number of agent executions",
		},
		[]string{"agent", "status"}, // status: success, error
	)

	agentDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragmesh_agent_duration_seconds",
			Help:    "Agent execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"agent"},
	)
)

// =============================================================================
// STORE METRICS
// =============================================================================

var (
	vectorRecordsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ragmesh_vector_records",
			Help: "Number of records currently held by the vector store",
		},
	)

	vectorEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ragmesh_vector_evictions_total",
			Help: "Total records evicted from the vector store",
		},
	)
)

// =============================================================================
// HTTP METRICS
// =============================================================================

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragmesh_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragmesh_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"route"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordDispatch records envelope dispatch metrics.
// This should be called after a dispatch completes.
func RecordDispatch(envelopeType string, status string, durationMS int) {
	dispatchesTotal.WithLabelValues(envelopeType, status).Inc()
	dispatchDurationSeconds.WithLabelValues(envelopeType).Observe(float64(durationMS) / 1000.0)
}

// RecordBroadcast records broadcast fan-out outcomes.
func RecordBroadcast(delivered int, failed int) {
	broadcastDeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	broadcastDeliveriesTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordChain records chain outcome metrics.
// This should be called after a coordinated chain resolves.
func RecordChain(kind string, status string, durationMS int) {
	chainsTotal.WithLabelValues(kind, status).Inc()
	chainDurationSeconds.WithLabelValues(kind).Observe(float64(durationMS) / 1000.0)
}

// RecordChainStageFailure records which stage a chain failed in.
func RecordChainStageFailure(stage string) {
	chainStageFailuresTotal.WithLabelValues(stage).Inc()
}

// RecordAgentExecution records agent execution metrics.
// This should be called after agent processing completes.
func RecordAgentExecution(agent string, status string, durationMS int) {
	agentExecutionsTotal.WithLabelValues(agent, status).Inc()
	agentDurationSeconds.WithLabelValues(agent).Observe(float64(durationMS) / 1000.0)
}

// SetVectorRecords updates the vector store record gauge.
func SetVectorRecords(n int) {
	vectorRecordsGauge.Set(float64(n))
}

// RecordVectorEviction counts one evicted record.
func RecordVectorEviction() {
	vectorEvictionsTotal.Inc()
}

// RecordHTTPRequest records HTTP request metrics.
// This should be called from router middleware.
func RecordHTTPRequest(route string, status string, durationMS int) {
	httpRequestsTotal.WithLabelValues(route, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(route).Observe(float64(durationMS) / 1000.0)
}
