package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestRecordDispatch(t *testing.T) {
	tests := []struct {
		name         string
		envelopeType string
		status       string
		durationMS   int
	}{
		{"successful request", "request", "success", 12},
		{"failed request", "request", "error", 5},
		{"broadcast", "broadcast", "success", 40},
		{"zero duration", "system", "success", 0},
		{"slow dispatch", "request", "success", 30000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			RecordDispatch(tt.envelopeType, tt.status, tt.durationMS)

			count := testutil.ToFloat64(dispatchesTotal.WithLabelValues(tt.envelopeType, tt.status))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordChain(t *testing.T) {
	tests := []struct {
		name       string
		kind       string
		status     string
		durationMS int
	}{
		{"completed query", "query", "completed", 1200},
		{"failed query", "query", "failed", 300},
		{"completed upload", "upload", "completed", 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordChain(tt.kind, tt.status, tt.durationMS)

			count := testutil.ToFloat64(chainsTotal.WithLabelValues(tt.kind, tt.status))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordAgentExecution(t *testing.T) {
	tests := []struct {
		name       string
		agent      string
		status     string
		durationMS int
	}{
		{"successful retrieval", "retrieval", "success", 100},
		{"failed ingestion", "ingestion", "error", 50},
		{"slow response", "response", "success", 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordAgentExecution(tt.agent, tt.status, tt.durationMS)

			count := testutil.ToFloat64(agentExecutionsTotal.WithLabelValues(tt.agent, tt.status))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordBroadcastOutcomes(t *testing.T) {
	before := testutil.ToFloat64(broadcastDeliveriesTotal.WithLabelValues("delivered"))

	RecordBroadcast(3, 1)

	delivered := testutil.ToFloat64(broadcastDeliveriesTotal.WithLabelValues("delivered"))
	failed := testutil.ToFloat64(broadcastDeliveriesTotal.WithLabelValues("failed"))
	assert.Equal(t, before+3, delivered)
	assert.GreaterOrEqual(t, failed, 1.0)
}

func TestRecordChainStageFailure(t *testing.T) {
	RecordChainStageFailure("retrieval")

	count := testutil.ToFloat64(chainStageFailuresTotal.WithLabelValues("retrieval"))
	assert.Greater(t, count, 0.0)
}

func TestVectorStoreGauges(t *testing.T) {
	SetVectorRecords(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(vectorRecordsGauge))

	SetVectorRecords(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(vectorRecordsGauge))

	before := testutil.ToFloat64(vectorEvictionsTotal)
	RecordVectorEviction()
	assert.Equal(t, before+1, testutil.ToFloat64(vectorEvictionsTotal))
}

func TestRecordHTTPRequest(t *testing.T) {
	RecordHTTPRequest("/api/chat", "OK", 25)

	count := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/chat", "OK"))
	assert.Greater(t, count, 0.0)
}

func TestMetrics_Concurrent(t *testing.T) {
	// Test that metrics recording is thread-safe
	const goroutines = 10
	const iterations = 100

	done := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < iterations; j++ {
				RecordDispatch("request", "concurrent", 10)
				RecordAgentExecution("concurrent-agent", "success", 5)
				RecordChain("query", "concurrent", 100)
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines; i++ {
		<-done
	}

	count := testutil.ToFloat64(dispatchesTotal.WithLabelValues("request", "concurrent"))
	assert.Equal(t, float64(goroutines*iterations), count)
}

func TestMetrics_DifferentLabels(t *testing.T) {
	// Metrics with different labels are tracked separately
	RecordAgentExecution("label-a", "success", 100)
	RecordAgentExecution("label-a", "error", 200)
	RecordAgentExecution("label-b", "success", 300)

	countASuccess := testutil.ToFloat64(agentExecutionsTotal.WithLabelValues("label-a", "success"))
	countAError := testutil.ToFloat64(agentExecutionsTotal.WithLabelValues("label-a", "error"))
	countBSuccess := testutil.ToFloat64(agentExecutionsTotal.WithLabelValues("label-b", "success"))

	assert.Greater(t, countASuccess, 0.0)
	assert.Greater(t, countAError, 0.0)
	assert.Greater(t, countBSuccess, 0.0)
}

// =============================================================================
// TRACING TESTS
// =============================================================================

func TestInitTracer_ValidParameters(t *testing.T) {
	// Integration test that requires a real OTLP collector
	t.Skip("Skipping integration test - requires OTLP collector")

	shutdown, err := InitTracer("test-service", "localhost:4317")

	if err != nil {
		assert.Contains(t, err.Error(), "failed to create trace exporter")
		return
	}

	require.NotNil(t, shutdown)
	defer shutdown(context.Background())
}

func TestInitTracer_ServiceName(t *testing.T) {
	// The exporter dials lazily, so setup succeeds even without a collector.
	// The call itself must not panic and must hand back a usable shutdown.
	shutdown, err := InitTracer("ragmesh", "invalid-endpoint:1234")

	if err != nil {
		assert.Contains(t, err.Error(), "failed to create trace exporter")
		return
	}

	require.NotNil(t, shutdown)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
