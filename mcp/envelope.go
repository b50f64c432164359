// Package mcp provides the inter-agent coordination substrate.
//
// This module defines the CANONICAL message-passing protocol for the entire
// system. All agents depend on these types, not on each other.
//
// Components:
//   - Envelope: the typed, uniquely-identified unit of communication
//   - Registry: agent identity -> handler mapping with join/leave
//   - Router: point-to-point and broadcast delivery, request correlation
//   - Middleware: cross-cutting interception of dispatched envelopes
package mcp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// MessageType classifies an envelope. The set is closed: an envelope carrying
// any other value is malformed and rejected before routing.
type MessageType string

const (
	// TypeRequest expects exactly one correlated response.
	TypeRequest MessageType = "request"
	// TypeResponse answers a previously issued request.
	TypeResponse MessageType = "response"
	// TypeBroadcast fans out to all registered agents except the sender.
	TypeBroadcast MessageType = "broadcast"
	// TypeSystem carries notifications synthesized by the substrate itself.
	TypeSystem MessageType = "system"
	// TypeError reports a delivery or handler failure.
	TypeError MessageType = "error"
)

// Valid reports whether t is a member of the closed message type set.
func (t MessageType) Valid() bool {
	switch t {
	case TypeRequest, TypeResponse, TypeBroadcast, TypeSystem, TypeError:
		return true
	}
	return false
}

// Broadcast is the receiver sentinel meaning "all registered agents except
// the sender".
const Broadcast = "broadcast"

// SystemSender is the synthetic sender identity used for envelopes the
// substrate creates on its own behalf (join/leave notices, routing errors).
const SystemSender = "system"

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope is the unit of inter-agent communication.
//
// Envelopes are immutable once created: handlers never mutate a delivered
// envelope, they produce new ones via Reply or ReplyError. The router
// delivers deep copies on broadcast so one recipient can never observe
// another's envelope.
type Envelope struct {
	ID            string         `json:"id"`
	Type          MessageType    `json:"type"`
	Sender        string         `json:"sender"`
	Receiver      string         `json:"receiver"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

func newEnvelope(t MessageType, sender, receiver string, payload map[string]any) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		Type:      t,
		Sender:    sender,
		Receiver:  receiver,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// NewRequest creates a fresh request envelope with a new ID and timestamp.
func NewRequest(sender, receiver string, payload map[string]any) *Envelope {
	return newEnvelope(TypeRequest, sender, receiver, payload)
}

// NewBroadcast creates a broadcast envelope addressed to the broadcast
// sentinel.
func NewBroadcast(sender string, payload map[string]any) *Envelope {
	return newEnvelope(TypeBroadcast, sender, Broadcast, payload)
}

// NewSystem creates a system notification from the synthetic system sender.
// Receiver may be a single identity or the broadcast sentinel; the router
// fans out system envelopes addressed to the sentinel like any broadcast.
func NewSystem(receiver string, payload map[string]any) *Envelope {
	return newEnvelope(TypeSystem, SystemSender, receiver, payload)
}

// Reply creates the response envelope for this request. The correlation ID is
// copied from the request's ID and sender/receiver are swapped.
func (e *Envelope) Reply(payload map[string]any) *Envelope {
	reply := newEnvelope(TypeResponse, e.Receiver, e.Sender, payload)
	reply.CorrelationID = e.ID
	return reply
}

// ReplyError creates an error envelope answering this envelope. The payload
// carries the failure cause and, when known, the failing stage identity.
func (e *Envelope) ReplyError(cause error, stage string) *Envelope {
	payload := map[string]any{"error": cause.Error()}
	if stage != "" {
		payload["stage"] = stage
	}
	reply := newEnvelope(TypeError, e.Receiver, e.Sender, payload)
	reply.CorrelationID = e.ID
	return reply
}

// Clone creates a deep copy of the envelope. Broadcast delivery hands each
// recipient its own copy.
func (e *Envelope) Clone() *Envelope {
	clone := *e
	clone.Payload = deepCopyPayload(e.Payload)
	return &clone
}

// Validate checks that the envelope is well formed for routing: the type must
// belong to the closed set, and a request or response must name a concrete
// receiver (the broadcast sentinel is not a valid request target).
func (e *Envelope) Validate() error {
	if !e.Type.Valid() {
		return NewMalformedEnvelopeError(e.ID, "unknown message type "+string(e.Type))
	}
	if e.Sender == "" {
		return NewMalformedEnvelopeError(e.ID, "empty sender")
	}
	switch e.Type {
	case TypeRequest, TypeResponse:
		if e.Receiver == "" || e.Receiver == Broadcast {
			return NewMalformedEnvelopeError(e.ID, string(e.Type)+" requires a concrete receiver")
		}
		if e.Type == TypeResponse && e.CorrelationID == "" {
			return NewMalformedEnvelopeError(e.ID, "response without correlation id")
		}
	case TypeBroadcast:
		if e.Receiver != Broadcast {
			return NewMalformedEnvelopeError(e.ID, "broadcast requires the broadcast sentinel receiver")
		}
	case TypeSystem, TypeError:
		if e.Receiver == "" {
			return NewMalformedEnvelopeError(e.ID, "empty receiver")
		}
	}
	return nil
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// MarshalJSON is the default encoding; ToJSON/FromJSON mirror the wire shape
// used at the HTTP boundary.

// ToJSON serializes the envelope.
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an envelope and validates it.
func FromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// =============================================================================
// PAYLOAD COPY HELPERS
// =============================================================================

func deepCopyPayload(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyPayload(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = deepCopyValue(item)
		}
		return result
	case []string:
		result := make([]string, len(val))
		copy(result, val)
		return result
	default:
		return v // Primitives are copied by value
	}
}
