package mcp

import (
	"fmt"
)

// =============================================================================
// SUBSTRATE ERRORS
// =============================================================================

// RoutingError is the base error type for substrate faults.
type RoutingError struct {
	Message string
	Cause   error
}

func (e *RoutingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RoutingError) Unwrap() error {
	return e.Cause
}

// UnknownAgentError is raised when a receiver identity is not registered.
type UnknownAgentError struct {
	Identity string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("no agent registered with identity %q", e.Identity)
}

// NewUnknownAgentError creates a new UnknownAgentError.
func NewUnknownAgentError(identity string) *UnknownAgentError {
	return &UnknownAgentError{Identity: identity}
}

// DuplicateIdentityError is raised when registering an identity that is
// already held by another agent.
type DuplicateIdentityError struct {
	Identity string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("agent identity %q is already registered", e.Identity)
}

// NewDuplicateIdentityError creates a new DuplicateIdentityError.
func NewDuplicateIdentityError(identity string) *DuplicateIdentityError {
	return &DuplicateIdentityError{Identity: identity}
}

// MalformedEnvelopeError is raised when an envelope fails validation before
// submission to the router.
type MalformedEnvelopeError struct {
	EnvelopeID string
	Reason     string
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("malformed envelope %s: %s", e.EnvelopeID, e.Reason)
}

// NewMalformedEnvelopeError creates a new MalformedEnvelopeError.
func NewMalformedEnvelopeError(envelopeID, reason string) *MalformedEnvelopeError {
	return &MalformedEnvelopeError{EnvelopeID: envelopeID, Reason: reason}
}

// RequestTimeoutError is raised when no response arrives for a request within
// the router's request timeout. The outstanding correlation record is cleared
// before this error is returned.
type RequestTimeoutError struct {
	EnvelopeID string
	Receiver   string
	Timeout    float64
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("request %s to %q timed out after %.2fs", e.EnvelopeID, e.Receiver, e.Timeout)
}

// NewRequestTimeoutError creates a new RequestTimeoutError.
func NewRequestTimeoutError(envelopeID, receiver string, timeout float64) *RequestTimeoutError {
	return &RequestTimeoutError{EnvelopeID: envelopeID, Receiver: receiver, Timeout: timeout}
}

// DeliveryError wraps a handler failure for a single addressee during
// broadcast fan-out. Broadcast collects these per recipient instead of
// failing the whole delivery.
type DeliveryError struct {
	Receiver string
	Cause    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %q failed: %v", e.Receiver, e.Cause)
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// NewDeliveryError creates a new DeliveryError.
func NewDeliveryError(receiver string, cause error) *DeliveryError {
	return &DeliveryError{Receiver: receiver, Cause: cause}
}
