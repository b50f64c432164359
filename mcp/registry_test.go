package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler() HandlerFunc {
	return func(ctx context.Context, env *Envelope) (*Envelope, error) {
		return env.Reply(env.Payload), nil
	}
}

func TestRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register("retrieval", echoHandler()))

	h, err := reg.Resolve("retrieval")
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.True(t, reg.Has("retrieval"))
	assert.Equal(t, 1, reg.Len())
}

func TestRegisterRejectsDuplicateIdentity(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("alice", echoHandler()))

	err := reg.Register("alice", echoHandler())
	require.Error(t, err)

	var dup *DuplicateIdentityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "alice", dup.Identity)
}

func TestResolveUnknownIdentity(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Resolve("ghost")
	require.Error(t, err)

	var unknown *UnknownAgentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Identity)
}

func TestDeregisterIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("bob", echoHandler()))

	assert.True(t, reg.Deregister("bob"))
	assert.False(t, reg.Deregister("bob"))
	assert.False(t, reg.Has("bob"))
}

func TestDeregisterFreesIdentityForReuse(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("alice", echoHandler()))
	reg.Deregister("alice")

	assert.NoError(t, reg.Register("alice", echoHandler()))
}

func TestAllExceptPreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"coordinator", "ingestion", "retrieval", "response"} {
		require.NoError(t, reg.Register(id, echoHandler()))
	}

	assert.Equal(t, []string{"ingestion", "retrieval", "response"}, reg.AllExcept("coordinator"))
	assert.Equal(t, []string{"coordinator", "ingestion", "retrieval", "response"}, reg.Identities())
}

func TestAllExceptWithUnregisteredSender(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("alice", echoHandler()))

	// A sender that never registered still addresses everyone.
	assert.Equal(t, []string{"alice"}, reg.AllExcept("system"))
}

func TestOnDeregisterHookRuns(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("alice", echoHandler()))

	var departed []string
	reg.OnDeregister(func(identity string) {
		departed = append(departed, identity)
	})

	reg.Deregister("alice")
	reg.Deregister("alice") // no-op, hook must not re-fire

	assert.Equal(t, []string{"alice"}, departed)
}
