// Package chat implements a multi-user relay on top of the envelope router:
// named participants, broadcast messages, @name private delivery and system
// join/leave announcements.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ragmesh/ragmesh/mcp"
)

// Event is one line of a client's transcript.
type Event struct {
	Kind    string // "chat", "private", "system", "error"
	From    string
	Text    string
	Private bool
}

// NameTakenError indicates a join with a name already in use.
type NameTakenError struct {
	Name string
}

func (e *NameTakenError) Error() string {
	return fmt.Sprintf("name already taken: %s", e.Name)
}

// Relay wires chat participants onto a router. Every participant is a
// registered agent; broadcasts fan out to everyone else and @name messages
// deliver privately.
type Relay struct {
	router *mcp.Router
	logger mcp.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRelay creates a Relay over its own registry and router.
func NewRelay(logger mcp.Logger) *Relay {
	if logger == nil {
		logger = mcp.NopLogger{}
	}
	return &Relay{
		router:  mcp.NewRouter(mcp.NewRegistry(), logger, 0),
		logger:  logger.Bind("component", "relay"),
		clients: make(map[string]*Client),
	}
}

// Router exposes the underlying router, mainly for tests and tooling.
func (r *Relay) Router() *mcp.Router {
	return r.router
}

// Join registers a participant and announces it to the room. The name is the
// registry identity, so duplicates are rejected with NameTakenError.
func (r *Relay) Join(ctx context.Context, name string, deliver func(Event)) (*Client, error) {
	if deliver == nil {
		deliver = func(Event) {}
	}
	client := &Client{relay: r, name: name, deliver: deliver}

	if err := r.router.Registry().Register(name, mcp.HandlerFunc(client.receive)); err != nil {
		var dup *mcp.DuplicateIdentityError
		if errors.As(err, &dup) {
			return nil, &NameTakenError{Name: name}
		}
		return nil, err
	}

	r.mu.Lock()
	r.clients[name] = client
	r.mu.Unlock()

	r.announce(ctx, name, fmt.Sprintf("%s has joined the chat.", name))
	r.logger.Info("client_joined", "name", name)
	return client, nil
}

// Leave removes a participant and announces the departure. Unknown names are
// a no-op.
func (r *Relay) Leave(ctx context.Context, name string) {
	r.mu.Lock()
	_, known := r.clients[name]
	delete(r.clients, name)
	r.mu.Unlock()

	if !known {
		return
	}
	r.router.Registry().Deregister(name)
	r.announce(ctx, name, fmt.Sprintf("%s has left the chat.", name))
	r.logger.Info("client_left", "name", name)
}

// Names returns the current participants in join order.
func (r *Relay) Names() []string {
	return r.router.Registry().Identities()
}

// announce broadcasts a system notice about one participant. The subject is
// the envelope sender, so the fan-out reaches everyone but them.
func (r *Relay) announce(ctx context.Context, subject, text string) {
	env := mcp.NewBroadcast(subject, map[string]any{
		"content": text,
		"system":  true,
	})
	if _, err := r.router.Dispatch(ctx, env); err != nil {
		r.logger.Warn("announce_failed", "error", err.Error())
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is one connected participant.
type Client struct {
	relay   *Relay
	name    string
	deliver func(Event)
}

// Name returns the participant's name.
func (c *Client) Name() string {
	return c.name
}

// Send relays one input line. A leading "@name " addresses that participant
// privately; anything else broadcasts to the room. Messages to unknown names
// come back to this client alone as an error event.
func (c *Client) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if target, body, ok := parseDirect(text); ok {
		env := mcp.NewSystem(target, map[string]any{
			"sender":  c.name,
			"content": body,
		})
		env.Sender = c.name
		if _, err := c.relay.router.Dispatch(ctx, env); err != nil {
			var unknown *mcp.UnknownAgentError
			if errors.As(err, &unknown) {
				// The router already bounced a private error envelope back
				// to this client; the send itself is handled.
				return nil
			}
			return err
		}
		return nil
	}

	_, err := c.relay.router.Dispatch(ctx, mcp.NewBroadcast(c.name, map[string]any{
		"sender":  c.name,
		"content": text,
	}))
	return err
}

// receive renders an incoming envelope into a transcript event.
func (c *Client) receive(_ context.Context, env *mcp.Envelope) (*mcp.Envelope, error) {
	content, _ := env.Payload["content"].(string)
	from, _ := env.Payload["sender"].(string)

	switch {
	case env.Type == mcp.TypeError:
		reason, _ := env.Payload["error"].(string)
		target, _ := env.Payload["receiver"].(string)
		c.deliver(Event{
			Kind: "error",
			From: mcp.SystemSender,
			Text: fmt.Sprintf("could not deliver to %q: %s", target, reason),
		})
	case env.Sender == mcp.SystemSender || env.Payload["system"] == true:
		c.deliver(Event{Kind: "system", From: mcp.SystemSender, Text: content})
	case env.Type == mcp.TypeBroadcast:
		c.deliver(Event{Kind: "chat", From: from, Text: content})
	default:
		c.deliver(Event{Kind: "private", From: from, Text: content, Private: true})
	}
	return nil, nil
}

// parseDirect splits "@name message" input. A bare "@name" with no body is
// not a direct message.
func parseDirect(text string) (target, body string, ok bool) {
	if !strings.HasPrefix(text, "@") {
		return "", "", false
	}
	rest := text[1:]
	idx := strings.IndexByte(rest, ' ')
	if idx <= 0 {
		return "", "", false
	}
	body = strings.TrimSpace(rest[idx+1:])
	if body == "" {
		return "", "", false
	}
	return rest[:idx], body, true
}
