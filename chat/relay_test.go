package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmesh/ragmesh/mcp"
)

// transcript collects events delivered to one client.
type transcript struct {
	mu     sync.Mutex
	events []Event
}

func (tr *transcript) deliver(ev Event) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, ev)
}

func (tr *transcript) all() []Event {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Event, len(tr.events))
	copy(out, tr.events)
	return out
}

func (tr *transcript) texts() []string {
	var texts []string
	for _, ev := range tr.all() {
		texts = append(texts, ev.Text)
	}
	return texts
}

func join(t *testing.T, relay *Relay, name string) (*Client, *transcript) {
	t.Helper()
	tr := &transcript{}
	client, err := relay.Join(context.Background(), name, tr.deliver)
	require.NoError(t, err)
	return client, tr
}

// =============================================================================
// JOIN / LEAVE
// =============================================================================

func TestJoinAnnouncesToExistingClients(t *testing.T) {
	relay := NewRelay(nil)
	_, aliceLog := join(t, relay, "alice")
	join(t, relay, "bob")

	events := aliceLog.all()
	require.Len(t, events, 1)
	assert.Equal(t, "system", events[0].Kind)
	assert.Equal(t, "bob has joined the chat.", events[0].Text)
}

func TestJoinRejectsTakenName(t *testing.T) {
	relay := NewRelay(nil)
	join(t, relay, "alice")

	_, err := relay.Join(context.Background(), "alice", nil)
	var taken *NameTakenError
	require.ErrorAs(t, err, &taken)
	assert.Equal(t, "alice", taken.Name)
}

func TestLeaveAnnouncesAndFreesName(t *testing.T) {
	relay := NewRelay(nil)
	join(t, relay, "alice")
	_, bobLog := join(t, relay, "bob")

	relay.Leave(context.Background(), "alice")

	assert.Contains(t, bobLog.texts(), "alice has left the chat.")
	assert.Equal(t, []string{"bob"}, relay.Names())

	// The name is reusable after leaving.
	_, err := relay.Join(context.Background(), "alice", nil)
	assert.NoError(t, err)
}

func TestLeaveUnknownNameIsSilent(t *testing.T) {
	relay := NewRelay(nil)
	_, aliceLog := join(t, relay, "alice")

	relay.Leave(context.Background(), "ghost")
	require.Len(t, aliceLog.all(), 0)
}

// =============================================================================
// BROADCAST
// =============================================================================

func TestBroadcastReachesEveryoneButSender(t *testing.T) {
	relay := NewRelay(nil)
	alice, aliceLog := join(t, relay, "alice")
	_, bobLog := join(t, relay, "bob")
	_, carolLog := join(t, relay, "carol")

	require.NoError(t, alice.Send(context.Background(), "hello everyone"))

	for name, log := range map[string]*transcript{"bob": bobLog, "carol": carolLog} {
		found := false
		for _, ev := range log.all() {
			if ev.Kind == "chat" && ev.From == "alice" && ev.Text == "hello everyone" {
				found = true
			}
		}
		assert.True(t, found, "%s did not receive the broadcast", name)
	}
	for _, ev := range aliceLog.all() {
		assert.NotEqual(t, "hello everyone", ev.Text, "sender received own broadcast")
	}
}

func TestEmptyInputIsIgnored(t *testing.T) {
	relay := NewRelay(nil)
	alice, _ := join(t, relay, "alice")
	_, bobLog := join(t, relay, "bob")
	before := len(bobLog.all())

	require.NoError(t, alice.Send(context.Background(), "   "))
	assert.Len(t, bobLog.all(), before)
}

// =============================================================================
// PRIVATE MESSAGES
// =============================================================================

func TestDirectMessageReachesOnlyTarget(t *testing.T) {
	relay := NewRelay(nil)
	alice, _ := join(t, relay, "alice")
	_, bobLog := join(t, relay, "bob")
	_, carolLog := join(t, relay, "carol")
	carolBefore := len(carolLog.all())

	require.NoError(t, alice.Send(context.Background(), "@bob meet at noon"))

	var private *Event
	for _, ev := range bobLog.all() {
		if ev.Private {
			private = &ev
			break
		}
	}
	require.NotNil(t, private, "bob never got the private message")
	assert.Equal(t, "alice", private.From)
	assert.Equal(t, "meet at noon", private.Text)

	for _, ev := range carolLog.all()[carolBefore:] {
		assert.False(t, ev.Private, "carol saw a private message")
	}
}

func TestDirectMessageToUnknownNameErrorsPrivately(t *testing.T) {
	relay := NewRelay(nil)
	alice, aliceLog := join(t, relay, "alice")
	_, bobLog := join(t, relay, "bob")
	bobBefore := len(bobLog.all())

	require.NoError(t, alice.Send(context.Background(), "@carol are you there?"))

	var errEvent *Event
	for _, ev := range aliceLog.all() {
		if ev.Kind == "error" {
			errEvent = &ev
			break
		}
	}
	require.NotNil(t, errEvent, "alice never saw the delivery error")
	assert.Contains(t, errEvent.Text, "carol")

	for _, ev := range bobLog.all()[bobBefore:] {
		assert.NotEqual(t, "error", ev.Kind, "error leaked to bob")
	}
}

func TestBareAtMentionBroadcasts(t *testing.T) {
	relay := NewRelay(nil)
	alice, _ := join(t, relay, "alice")
	_, bobLog := join(t, relay, "bob")

	require.NoError(t, alice.Send(context.Background(), "@bob"))

	found := false
	for _, ev := range bobLog.all() {
		if ev.Kind == "chat" && ev.Text == "@bob" {
			found = true
		}
	}
	assert.True(t, found, "bare mention should fall back to broadcast")
}

// =============================================================================
// PARSING
// =============================================================================

func TestParseDirect(t *testing.T) {
	cases := []struct {
		in     string
		target string
		body   string
		ok     bool
	}{
		{"@bob hello", "bob", "hello", true},
		{"@bob   spaced out  ", "bob", "spaced out", true},
		{"@bob", "", "", false},
		{"@ hello", "", "", false},
		{"hello @bob", "", "", false},
		{"@bob ", "", "", false},
	}
	for _, tc := range cases {
		target, body, ok := parseDirect(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.target, target)
			assert.Equal(t, tc.body, body)
		}
	}
}

func TestRelayRouterIsExposed(t *testing.T) {
	relay := NewRelay(mcp.NopLogger{})
	assert.NotNil(t, relay.Router())
}
