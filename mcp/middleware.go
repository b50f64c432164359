// Middleware implementations for the envelope router.
//
// Middleware intercepts envelopes before/after dispatch for cross-cutting
// concerns.
//
// Available Middleware:
//   - LoggingMiddleware: Structured logging of all envelope traffic
//   - CircuitBreakerMiddleware: Failure protection per receiver identity
package mcp

import (
	"context"
	"sync"
	"time"
)

// Middleware intercepts envelope dispatch. Before may rewrite the envelope
// or abort the dispatch by returning (nil, nil). After observes the outcome.
type Middleware interface {
	Before(ctx context.Context, env *Envelope) (*Envelope, error)
	After(ctx context.Context, env *Envelope, result *Envelope, err error)
}

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs all envelope traffic.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	if logger == nil {
		logger = NopLogger{}
	}
	return &LoggingMiddleware{logger: logger.Bind("component", "middleware")}
}

// Before logs envelope receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, env *Envelope) (*Envelope, error) {
	m.logger.Debug("envelope_dispatched",
		"envelope_id", env.ID,
		"type", string(env.Type),
		"sender", env.Sender,
		"receiver", env.Receiver,
	)
	return env, nil
}

// After logs dispatch completion.
func (m *LoggingMiddleware) After(ctx context.Context, env *Envelope, result *Envelope, err error) {
	if err != nil {
		m.logger.Warn("envelope_failed",
			"envelope_id", env.ID,
			"type", string(env.Type),
			"error", err.Error(),
		)
		return
	}
	m.logger.Debug("envelope_completed", "envelope_id", env.ID, "type", string(env.Type))
}

// =============================================================================
// CIRCUIT BREAKER MIDDLEWARE
// =============================================================================

// CircuitBreakerState represents the state for one receiver's circuit.
type CircuitBreakerState struct {
	Failures    int
	LastFailure time.Time
	State       string // "closed", "open", "half-open"
}

// CircuitBreakerMiddleware implements the circuit breaker pattern keyed by
// receiver identity.
//
// Protects against cascading failures by:
//   - Opening circuit after N failures
//   - Blocking dispatches while open
//   - Testing with single dispatch in half-open state
//   - Closing circuit after success
type CircuitBreakerMiddleware struct {
	failureThreshold  int
	resetTimeout      time.Duration
	excludedReceivers map[string]struct{}
	states            map[string]*CircuitBreakerState
	logger            Logger
	mu                sync.Mutex
}

// NewCircuitBreakerMiddleware creates a new CircuitBreakerMiddleware.
// Broadcast fan-out always bypasses the breaker.
func NewCircuitBreakerMiddleware(failureThreshold int, resetTimeout time.Duration, excludedReceivers []string, logger Logger) *CircuitBreakerMiddleware {
	excluded := map[string]struct{}{
		Broadcast: {},
	}
	for _, r := range excludedReceivers {
		excluded[r] = struct{}{}
	}
	if logger == nil {
		logger = NopLogger{}
	}

	return &CircuitBreakerMiddleware{
		failureThreshold:  failureThreshold,
		resetTimeout:      resetTimeout,
		excludedReceivers: excluded,
		states:            make(map[string]*CircuitBreakerState),
		logger:            logger.Bind("component", "circuit_breaker"),
	}
}

// getState gets or creates state for a receiver identity.
func (m *CircuitBreakerMiddleware) getState(receiver string) *CircuitBreakerState {
	if _, exists := m.states[receiver]; !exists {
		m.states[receiver] = &CircuitBreakerState{State: "closed"}
	}
	return m.states[receiver]
}

// Before checks circuit breaker state.
func (m *CircuitBreakerMiddleware) Before(ctx context.Context, env *Envelope) (*Envelope, error) {
	if _, excluded := m.excludedReceivers[env.Receiver]; excluded {
		return env, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getState(env.Receiver)
	now := time.Now()

	if state.State == "open" {
		// Check if we should try half-open
		if now.Sub(state.LastFailure) >= m.resetTimeout {
			state.State = "half-open"
			m.logger.Info("circuit_half_open", "receiver", env.Receiver)
		} else {
			m.logger.Warn("circuit_open_blocking", "receiver", env.Receiver, "envelope_id", env.ID)
			return nil, nil // Block the dispatch
		}
	}

	return env, nil
}

// After updates circuit breaker state based on outcome.
func (m *CircuitBreakerMiddleware) After(ctx context.Context, env *Envelope, result *Envelope, err error) {
	if _, excluded := m.excludedReceivers[env.Receiver]; excluded {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getState(env.Receiver)
	now := time.Now()

	if err != nil {
		state.Failures++
		state.LastFailure = now

		if state.State == "half-open" {
			// Failed during half-open, reopen
			state.State = "open"
			m.logger.Warn("circuit_reopened", "receiver", env.Receiver)
		} else if m.failureThreshold > 0 && state.Failures >= m.failureThreshold {
			// Threshold reached, open circuit (threshold=0 means never open)
			state.State = "open"
			m.logger.Warn("circuit_opened", "receiver", env.Receiver, "failures", state.Failures)
		}
	} else {
		if state.State == "half-open" {
			// Success in half-open, close circuit
			state.State = "closed"
			state.Failures = 0
			m.logger.Info("circuit_closed", "receiver", env.Receiver)
		}
	}
}

// GetStates returns current circuit states keyed by receiver.
func (m *CircuitBreakerMiddleware) GetStates() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]string)
	for k, v := range m.states {
		result[k] = v.State
	}
	return result
}

// Reset resets circuit breaker state for one receiver, or all when nil.
func (m *CircuitBreakerMiddleware) Reset(receiver *string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if receiver != nil {
		delete(m.states, *receiver)
	} else {
		m.states = make(map[string]*CircuitBreakerState)
	}
}

// Ensure all middleware types implement Middleware interface.
var (
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = (*CircuitBreakerMiddleware)(nil)
)
