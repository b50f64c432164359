package mcp

import (
	"context"
	"sync"
)

// =============================================================================
// HANDLER PROTOCOL
// =============================================================================

// Handler is the protocol for agent message handlers. A handler may return a
// response envelope (for requests) or nil (fire-and-forget deliveries).
type Handler interface {
	Handle(ctx context.Context, env *Envelope) (*Envelope, error)
}

// HandlerFunc is a function type that implements Handler.
type HandlerFunc func(ctx context.Context, env *Envelope) (*Envelope, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, env *Envelope) (*Envelope, error) {
	return f(ctx, env)
}

// Logger is the canonical protocol for structured logging in the substrate.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Bind(args ...any) Logger
}

// NopLogger discards all log output. Used as the default when no logger is
// injected.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any) {}
func (NopLogger) Warn(string, ...any) {}
func (NopLogger) Error(string, ...any) {}
func (n NopLogger) Bind(...any) Logger { return n }

// =============================================================================
// AGENT REGISTRY
// =============================================================================

// Registry maps stable agent identities to message handlers.
//
// Identities are unique among currently registered agents and may be reused
// after the prior holder deregisters. Mutation is atomic with respect to
// concurrent lookups; broadcast delivery lists are snapshotted so a join or
// leave during fan-out never corrupts an in-flight delivery.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string

	leaveHooks []func(identity string)
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds an identity to a handler. Fails with DuplicateIdentityError
// if the identity is already held.
func (r *Registry) Register(identity string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[identity]; exists {
		return NewDuplicateIdentityError(identity)
	}
	r.handlers[identity] = handler
	r.order = append(r.order, identity)
	return nil
}

// Deregister removes an identity. No-op if absent. Leave hooks run after the
// identity is removed so outstanding correlations addressed to it can be
// failed by the router.
func (r *Registry) Deregister(identity string) bool {
	r.mu.Lock()
	_, exists := r.handlers[identity]
	if exists {
		delete(r.handlers, identity)
		for i, id := range r.order {
			if id == identity {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	hooks := make([]func(string), len(r.leaveHooks))
	copy(hooks, r.leaveHooks)
	r.mu.Unlock()

	if exists {
		for _, hook := range hooks {
			hook(identity)
		}
	}
	return exists
}

// Resolve returns the handler for an identity, or UnknownAgentError.
func (r *Registry) Resolve(identity string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, exists := r.handlers[identity]
	if !exists {
		return nil, NewUnknownAgentError(identity)
	}
	return handler, nil
}

// Has reports whether an identity is currently registered.
func (r *Registry) Has(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.handlers[identity]
	return exists
}

// AllExcept returns the identities of all registered agents except the given
// one, in registration order, snapshotted at call time.
func (r *Registry) AllExcept(identity string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if id != identity {
			result = append(result, id)
		}
	}
	return result
}

// Identities returns all registered identities in registration order.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// OnDeregister registers a hook invoked with the identity of every agent that
// leaves. The router uses this to fail pending requests addressed to departed
// agents.
func (r *Registry) OnDeregister(hook func(identity string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveHooks = append(r.leaveHooks, hook)
}
