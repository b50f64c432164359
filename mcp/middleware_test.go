package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, reset time.Duration) *CircuitBreakerMiddleware {
	return NewCircuitBreakerMiddleware(threshold, reset, nil, NopLogger{})
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	env := newEnvelope(TypeRequest, "coordinator", "retrieval", nil)

	for i := 0; i < 3; i++ {
		cb.After(context.Background(), env, nil, errors.New("boom"))
	}

	assert.Equal(t, "open", cb.GetStates()["retrieval"])

	blocked, err := cb.Before(context.Background(), env)
	require.NoError(t, err)
	assert.Nil(t, blocked)
}

func TestCircuitStaysClosedBelowThreshold(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	env := newEnvelope(TypeRequest, "coordinator", "retrieval", nil)

	cb.After(context.Background(), env, nil, errors.New("boom"))
	cb.After(context.Background(), env, nil, errors.New("boom"))

	passed, err := cb.Before(context.Background(), env)
	require.NoError(t, err)
	assert.NotNil(t, passed)
}

func TestCircuitHalfOpensAfterResetTimeout(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)
	env := newEnvelope(TypeRequest, "coordinator", "retrieval", nil)

	cb.After(context.Background(), env, nil, errors.New("boom"))
	assert.Equal(t, "open", cb.GetStates()["retrieval"])

	time.Sleep(20 * time.Millisecond)

	passed, err := cb.Before(context.Background(), env)
	require.NoError(t, err)
	assert.NotNil(t, passed)
	assert.Equal(t, "half-open", cb.GetStates()["retrieval"])

	// Success in half-open closes the circuit.
	cb.After(context.Background(), env, env.Reply(nil), nil)
	assert.Equal(t, "closed", cb.GetStates()["retrieval"])
}

func TestCircuitReopensOnHalfOpenFailure(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)
	env := newEnvelope(TypeRequest, "coordinator", "retrieval", nil)

	cb.After(context.Background(), env, nil, errors.New("boom"))
	time.Sleep(20 * time.Millisecond)
	_, _ = cb.Before(context.Background(), env)

	cb.After(context.Background(), env, nil, errors.New("still broken"))
	assert.Equal(t, "open", cb.GetStates()["retrieval"])
}

func TestZeroThresholdNeverOpens(t *testing.T) {
	cb := newTestBreaker(0, time.Minute)
	env := newEnvelope(TypeRequest, "coordinator", "retrieval", nil)

	for i := 0; i < 10; i++ {
		cb.After(context.Background(), env, nil, errors.New("boom"))
	}

	passed, err := cb.Before(context.Background(), env)
	require.NoError(t, err)
	assert.NotNil(t, passed)
}

func TestBroadcastBypassesBreaker(t *testing.T) {
	cb := newTestBreaker(1, time.Minute)
	env := NewBroadcast("alice", nil)

	cb.After(context.Background(), env, nil, errors.New("boom"))

	passed, err := cb.Before(context.Background(), env)
	require.NoError(t, err)
	assert.NotNil(t, passed)
	assert.NotContains(t, cb.GetStates(), Broadcast)
}

func TestResetClearsOneOrAllCircuits(t *testing.T) {
	cb := newTestBreaker(1, time.Minute)
	a := newEnvelope(TypeRequest, "x", "retrieval", nil)
	b := newEnvelope(TypeRequest, "x", "response", nil)

	cb.After(context.Background(), a, nil, errors.New("boom"))
	cb.After(context.Background(), b, nil, errors.New("boom"))

	target := "retrieval"
	cb.Reset(&target)
	assert.NotContains(t, cb.GetStates(), "retrieval")
	assert.Contains(t, cb.GetStates(), "response")

	cb.Reset(nil)
	assert.Empty(t, cb.GetStates())
}

func TestLoggingMiddlewarePassesEnvelopeThrough(t *testing.T) {
	mw := NewLoggingMiddleware(NopLogger{})
	env := NewBroadcast("alice", map[string]any{"text": "hi"})

	out, err := mw.Before(context.Background(), env)
	require.NoError(t, err)
	assert.Same(t, env, out)

	mw.After(context.Background(), env, nil, errors.New("boom"))
	mw.After(context.Background(), env, env.Reply(nil), nil)
}
