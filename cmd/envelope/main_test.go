package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmesh/ragmesh/mcp"
)

func runCommand(t *testing.T, cmd, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(cmd, strings.NewReader(input), &out)
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, cmdVersion, "")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestCreateRequest(t *testing.T) {
	out, err := runCommand(t, cmdCreate,
		`{"sender":"cli","receiver":"retrieval","payload":{"query":"hello"}}`)
	require.NoError(t, err)

	env, err := mcp.FromJSON([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, mcp.TypeRequest, env.Type)
	assert.Equal(t, "cli", env.Sender)
	assert.Equal(t, "retrieval", env.Receiver)
	assert.Equal(t, "hello", env.Payload["query"])
	assert.NotEmpty(t, env.ID)
}

func TestCreateBroadcast(t *testing.T) {
	out, err := runCommand(t, cmdCreate,
		`{"type":"broadcast","sender":"cli","payload":{"content":"hi all"}}`)
	require.NoError(t, err)

	env, err := mcp.FromJSON([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, mcp.TypeBroadcast, env.Type)
	assert.Equal(t, mcp.Broadcast, env.Receiver)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	_, err := runCommand(t, cmdCreate, `{"sender":"cli"`)
	assert.Error(t, err)
}

func TestCreateRejectsMissingEndpoints(t *testing.T) {
	_, err := runCommand(t, cmdCreate, `{"payload":{"query":"hi"}}`)
	assert.Error(t, err)
}

func TestValidateGoodEnvelope(t *testing.T) {
	env := mcp.NewRequest("cli", "retrieval", map[string]any{"query": "hi"})
	data, err := env.ToJSON()
	require.NoError(t, err)

	out, err := runCommand(t, cmdValidate, string(data))
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["valid"])
	assert.NotContains(t, result, "error")
}

func TestValidateBadEnvelope(t *testing.T) {
	env := mcp.NewRequest("cli", "retrieval", map[string]any{"query": "hi"})
	env.Sender = ""
	data, err := env.ToJSON()
	require.NoError(t, err)

	out, err := runCommand(t, cmdValidate, string(data))
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, false, result["valid"])
	assert.NotEmpty(t, result["error"])
}

func TestReplySwapsEndpoints(t *testing.T) {
	env := mcp.NewRequest("cli", "retrieval", map[string]any{"query": "hi"})
	data, err := env.ToJSON()
	require.NoError(t, err)

	out, err := runCommand(t, cmdReply, string(data))
	require.NoError(t, err)

	reply, err := mcp.FromJSON([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, mcp.TypeResponse, reply.Type)
	assert.Equal(t, "retrieval", reply.Sender)
	assert.Equal(t, "cli", reply.Receiver)
	assert.Equal(t, env.ID, reply.CorrelationID)
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCommand(t, "frobnicate", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "frobnicate")
}
