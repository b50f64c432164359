package mcp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ragmesh/ragmesh/observability"
)

var tracer = otel.Tracer("ragmesh/mcp")

// =============================================================================
// DISPATCH RESULTS
// =============================================================================

// DeliveryFailure records one addressee that could not be reached during
// broadcast fan-out.
type DeliveryFailure struct {
	Receiver string
	Err      error
}

// BroadcastResult reports the outcome of a broadcast: who received the
// envelope, who did not, and any responses recipients produced. Partial
// failure is data here, never a hard error.
type BroadcastResult struct {
	Delivered []string
	Failures  []DeliveryFailure
	Responses []*Envelope
}

// Result is the outcome of a single dispatch. Exactly one of Response and
// Broadcast is set, and both may be nil for fire-and-forget deliveries.
type Result struct {
	Response  *Envelope
	Broadcast *BroadcastResult
}

// =============================================================================
// PENDING REQUEST TABLE
// =============================================================================

// pendingRequest is an outstanding correlation record. It is created before
// the receiver's handler is invoked and cleared exactly once: by the matching
// response, by timeout, by context cancellation, or by the receiver leaving.
type pendingRequest struct {
	ID        string
	Sender    string
	Receiver  string
	Stage     string
	CreatedAt time.Time

	done chan outcome // buffered, written at most once
}

type outcome struct {
	env *Envelope
	err error
}

// =============================================================================
// ROUTER
// =============================================================================

// DefaultRequestTimeout bounds how long a dispatched request may wait for its
// correlated response.
const DefaultRequestTimeout = 30 * time.Second

// Router delivers envelopes between registered agents.
//
// Delivery modes:
//   - Point-to-point: resolve the receiver and invoke its handler.
//   - Broadcast: fan out copies to every registered agent except the sender,
//     independently and without ordering guarantees between recipients.
//   - Request/response: requests are recorded in an explicit pending table
//     keyed by envelope ID and matched to at most one response by
//     correlation ID; unmatched or duplicate responses are dropped.
//
// A middleware chain intercepts every dispatch for cross-cutting concerns.
type Router struct {
	registry       *Registry
	logger         Logger
	requestTimeout time.Duration

	mu         sync.Mutex
	pending    map[string]*pendingRequest
	middleware []Middleware
}

// NewRouter creates a Router over the given registry. A zero requestTimeout
// falls back to DefaultRequestTimeout.
func NewRouter(registry *Registry, logger Logger, requestTimeout time.Duration) *Router {
	if logger == nil {
		logger = NopLogger{}
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	r := &Router{
		registry:       registry,
		logger:         logger.Bind("component", "router"),
		requestTimeout: requestTimeout,
		pending:        make(map[string]*pendingRequest),
	}
	// A leaving agent must not strand correlations addressed to it.
	registry.OnDeregister(r.failPendingFor)
	return r
}

// Registry returns the registry this router delivers through.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Use appends middleware to the chain. Middleware runs in registration order
// before dispatch and in reverse order after.
func (r *Router) Use(m Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, m)
}

// PendingCount returns the number of outstanding correlation records.
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Dispatch routes one envelope.
//
// Broadcast-addressed envelopes fan out and report per-recipient failures in
// Result.Broadcast. Requests block until the correlated response arrives, the
// request times out, or ctx is cancelled; the response is returned to the
// caller, which is the delivery path back to the original sender. Responses
// produced asynchronously by agents complete the matching pending record.
func (r *Router) Dispatch(ctx context.Context, env *Envelope) (*Result, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "router.dispatch",
		trace.WithAttributes(
			attribute.String("envelope.id", env.ID),
			attribute.String("envelope.type", string(env.Type)),
			attribute.String("envelope.receiver", env.Receiver),
		),
	)
	defer span.End()

	start := time.Now()

	processed, err := r.runMiddlewareBefore(ctx, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if processed == nil {
		r.logger.Debug("dispatch_aborted_by_middleware", "envelope_id", env.ID)
		return nil, nil
	}
	env = processed

	var result *Result
	if env.Receiver == Broadcast {
		result = &Result{Broadcast: r.broadcast(ctx, env)}
	} else {
		result, err = r.dispatchDirect(ctx, env)
	}

	durationMS := int(time.Since(start).Milliseconds())
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	observability.RecordDispatch(string(env.Type), status, durationMS)

	var after *Envelope
	if result != nil {
		after = result.Response
	}
	r.runMiddlewareAfter(ctx, env, after, err)

	return result, err
}

func (r *Router) dispatchDirect(ctx context.Context, env *Envelope) (*Result, error) {
	// Async responses complete the pending record for their request.
	if env.CorrelationID != "" && (env.Type == TypeResponse || env.Type == TypeError) {
		return r.completeRequest(env)
	}

	handler, err := r.registry.Resolve(env.Receiver)
	if err != nil {
		r.logger.Warn("unknown_receiver", "envelope_id", env.ID, "receiver", env.Receiver)
		// Misaddressed envelopes bounce back to the sender as an error
		// envelope instead of propagating a fault to unrelated agents.
		r.bounceToSender(ctx, env, err)
		return nil, err
	}

	if env.Type == TypeRequest {
		return r.dispatchRequest(ctx, env, handler)
	}

	resp, err := handler.Handle(ctx, env)
	if err != nil {
		return nil, NewDeliveryError(env.Receiver, err)
	}
	return &Result{Response: resp}, nil
}

// dispatchRequest records the outstanding correlation, invokes the handler,
// and waits for the matching response. The handler may answer synchronously
// by returning a response envelope, or asynchronously by dispatching one
// later; either path resolves the same pending record exactly once.
func (r *Router) dispatchRequest(ctx context.Context, env *Envelope, handler Handler) (*Result, error) {
	p := &pendingRequest{
		ID:        env.ID,
		Sender:    env.Sender,
		Receiver:  env.Receiver,
		Stage:     stageOf(env),
		CreatedAt: time.Now().UTC(),
		done:      make(chan outcome, 1),
	}

	r.mu.Lock()
	r.pending[env.ID] = p
	r.mu.Unlock()

	timeoutCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	go func() {
		resp, err := handler.Handle(timeoutCtx, env)
		if err == nil && resp == nil {
			// Handler will answer asynchronously; the pending record stays
			// until the response arrives or the request times out.
			return
		}
		if taken, ok := r.takePending(env.ID); ok {
			if err != nil {
				taken.done <- outcome{err: NewDeliveryError(env.Receiver, err)}
			} else if resp.CorrelationID != env.ID {
				taken.done <- outcome{err: NewMalformedEnvelopeError(resp.ID, "response correlation does not match request")}
			} else {
				taken.done <- outcome{env: resp}
			}
		}
	}()

	select {
	case out := <-p.done:
		if out.err != nil {
			return nil, out.err
		}
		return &Result{Response: out.env}, nil
	case <-timeoutCtx.Done():
		// Clear the correlation record so it can never resolve twice.
		r.takePending(env.ID)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewRequestTimeoutError(env.ID, env.Receiver, r.requestTimeout.Seconds())
	}
}

// completeRequest resolves the pending record matching an asynchronously
// produced response. Duplicate and late responses are dropped: at most one
// response is ever delivered per request ID.
func (r *Router) completeRequest(env *Envelope) (*Result, error) {
	p, ok := r.takePending(env.CorrelationID)
	if !ok {
		r.logger.Debug("response_dropped",
			"envelope_id", env.ID,
			"correlation_id", env.CorrelationID,
		)
		return nil, nil
	}
	if env.Type == TypeError {
		p.done <- outcome{err: NewDeliveryError(p.Receiver, errorFromPayload(env))}
	} else {
		p.done <- outcome{env: env}
	}
	return &Result{}, nil
}

// broadcast fans the envelope out to every registered agent except the
// sender. Each recipient gets its own copy; one failed delivery never blocks
// the others.
func (r *Router) broadcast(ctx context.Context, env *Envelope) *BroadcastResult {
	receivers := r.registry.AllExcept(env.Sender)
	result := &BroadcastResult{}
	if len(receivers) == 0 {
		return result
	}

	var wg sync.WaitGroup
	errs := make([]error, len(receivers))
	resps := make([]*Envelope, len(receivers))

	for i, identity := range receivers {
		handler, err := r.registry.Resolve(identity)
		if err != nil {
			// Left between snapshot and delivery.
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(idx int, id string, h Handler) {
			defer wg.Done()
			copy := env.Clone()
			copy.Receiver = id
			resp, err := h.Handle(ctx, copy)
			if err != nil {
				errs[idx] = err
				return
			}
			resps[idx] = resp
		}(i, identity, handler)
	}
	wg.Wait()

	failed := 0
	for i, identity := range receivers {
		if errs[i] != nil {
			failed++
			result.Failures = append(result.Failures, DeliveryFailure{Receiver: identity, Err: errs[i]})
			continue
		}
		result.Delivered = append(result.Delivered, identity)
		if resps[i] != nil {
			result.Responses = append(result.Responses, resps[i])
		}
	}
	observability.RecordBroadcast(len(result.Delivered), failed)

	return result
}

// bounceToSender synthesizes a system error envelope back to a registered
// sender when its envelope could not be delivered.
func (r *Router) bounceToSender(ctx context.Context, env *Envelope, cause error) {
	handler, err := r.registry.Resolve(env.Sender)
	if err != nil {
		return
	}
	bounce := newEnvelope(TypeError, SystemSender, env.Sender, map[string]any{
		"error":    cause.Error(),
		"receiver": env.Receiver,
	})
	bounce.CorrelationID = env.ID
	if _, err := handler.Handle(ctx, bounce); err != nil {
		r.logger.Warn("bounce_delivery_failed", "sender", env.Sender, "error", err.Error())
	}
}

// takePending removes and returns the pending record for an envelope ID.
func (r *Router) takePending(id string) (*pendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return p, ok
}

// failPendingFor fails every outstanding correlation addressed to a departed
// agent so waiters unblock immediately instead of running into the timeout.
func (r *Router) failPendingFor(identity string) {
	r.mu.Lock()
	var orphaned []*pendingRequest
	for id, p := range r.pending {
		if p.Receiver == identity {
			orphaned = append(orphaned, p)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, p := range orphaned {
		p.done <- outcome{err: NewUnknownAgentError(identity)}
	}
}

// =============================================================================
// MIDDLEWARE EXECUTION
// =============================================================================

func (r *Router) snapshotMiddleware() []Middleware {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := make([]Middleware, len(r.middleware))
	copy(chain, r.middleware)
	return chain
}

func (r *Router) runMiddlewareBefore(ctx context.Context, env *Envelope) (*Envelope, error) {
	current := env
	for _, mw := range r.snapshotMiddleware() {
		next, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		current = next
	}
	return current, nil
}

func (r *Router) runMiddlewareAfter(ctx context.Context, env *Envelope, result *Envelope, err error) {
	chain := r.snapshotMiddleware()
	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].After(ctx, env, result, err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func stageOf(env *Envelope) string {
	if env.Payload == nil {
		return ""
	}
	if stage, ok := env.Payload["stage"].(string); ok {
		return stage
	}
	return ""
}

func errorFromPayload(env *Envelope) error {
	msg := "handler failure"
	if env.Payload != nil {
		if s, ok := env.Payload["error"].(string); ok && s != "" {
			msg = s
		}
	}
	return &RoutingError{Message: msg}
}
