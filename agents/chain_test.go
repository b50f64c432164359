package agents

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainStartsCreated(t *testing.T) {
	chain := NewChain(ChainKindQuery, "conv-1")

	assert.NotEmpty(t, chain.ID)
	assert.Equal(t, ChainCreated, chain.State)
	assert.False(t, chain.State.Terminal())
}

func TestQueryChainWalksToCompleted(t *testing.T) {
	chain := NewChain(ChainKindQuery, "conv-1")

	require.NoError(t, chain.Transition(ChainAwaitingRetrieval))
	require.NoError(t, chain.Transition(ChainAwaitingResponse))
	require.NoError(t, chain.Transition(ChainCompleted))
	assert.True(t, chain.State.Terminal())
}

func TestUploadChainWalksToCompleted(t *testing.T) {
	chain := NewChain(ChainKindUpload, "")

	require.NoError(t, chain.Transition(ChainAwaitingIngestion))
	require.NoError(t, chain.Transition(ChainCompleted))
}

func TestChainRejectsSkippedStages(t *testing.T) {
	chain := NewChain(ChainKindQuery, "conv-1")

	err := chain.Transition(ChainCompleted)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, ChainCreated, invalid.From)
	assert.Equal(t, ChainCompleted, invalid.To)
	assert.Equal(t, ChainCreated, chain.State)
}

func TestChainCanFailFromAnyActiveState(t *testing.T) {
	for _, state := range []ChainState{ChainCreated, ChainAwaitingIngestion, ChainAwaitingRetrieval, ChainAwaitingResponse} {
		chain := NewChain(ChainKindQuery, "")
		chain.State = state
		assert.NoError(t, chain.Transition(ChainFailed), "from %s", state)
	}
}

func TestTerminalStatesAllowNoTransitions(t *testing.T) {
	for _, state := range []ChainState{ChainCompleted, ChainFailed} {
		chain := NewChain(ChainKindQuery, "")
		chain.State = state
		assert.Error(t, chain.Transition(ChainAwaitingRetrieval))
		assert.Error(t, chain.Transition(ChainFailed))
	}
}

func TestChainFailedErrorUserMessageNamesStage(t *testing.T) {
	cause := errors.New("index unavailable")
	err := NewChainFailedError(StageRetrieval, cause)

	assert.Contains(t, err.UserMessage(), "retrieval")
	assert.NotContains(t, err.UserMessage(), "index unavailable")
	assert.ErrorIs(t, err, cause)
}
