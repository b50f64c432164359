// Package agents provides the pipeline agents and the Coordinator that
// drives queries and uploads through them as multi-stage chains.
package agents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Agent identities on the registry.
const (
	CoordinatorName    = "coordinator"
	IngestionAgentName = "ingestion"
	RetrievalAgentName = "retrieval"
	ResponseAgentName  = "response"
)

// Stage names used in failure reporting.
const (
	StageIngestion = "ingestion"
	StageRetrieval = "retrieval"
	StageResponse  = "response"
)

// ChainState is one state of a coordinated chain.
type ChainState string

const (
	ChainCreated           ChainState = "created"
	ChainAwaitingIngestion ChainState = "awaiting_ingestion"
	ChainAwaitingRetrieval ChainState = "awaiting_retrieval"
	ChainAwaitingResponse  ChainState = "awaiting_response"
	ChainCompleted         ChainState = "completed"
	ChainFailed            ChainState = "failed"
)

// Terminal reports whether the state ends the chain.
func (s ChainState) Terminal() bool {
	return s == ChainCompleted || s == ChainFailed
}

// chainTransitions is the allowed state graph. Failure is reachable from any
// non-terminal state.
var chainTransitions = map[ChainState][]ChainState{
	ChainCreated:           {ChainAwaitingIngestion, ChainAwaitingRetrieval, ChainFailed},
	ChainAwaitingIngestion: {ChainCompleted, ChainFailed},
	ChainAwaitingRetrieval: {ChainAwaitingResponse, ChainFailed},
	ChainAwaitingResponse:  {ChainCompleted, ChainFailed},
}

// Chain kinds.
const (
	ChainKindQuery  = "query"
	ChainKindUpload = "upload"
)

// Chain tracks one coordinated pipeline run.
type Chain struct {
	ID             string
	Kind           string
	ConversationID string
	State          ChainState
	CreatedAt      time.Time
}

// NewChain creates a chain in the created state.
func NewChain(kind, conversationID string) *Chain {
	return &Chain{
		ID:             uuid.New().String(),
		Kind:           kind,
		ConversationID: conversationID,
		State:          ChainCreated,
		CreatedAt:      time.Now().UTC(),
	}
}

// Transition moves the chain to next, rejecting moves the state graph does
// not allow.
func (c *Chain) Transition(next ChainState) error {
	for _, allowed := range chainTransitions[c.State] {
		if allowed == next {
			c.State = next
			return nil
		}
	}
	return &InvalidTransitionError{ChainID: c.ID, From: c.State, To: next}
}

// =============================================================================
// ERRORS
// =============================================================================

// InvalidTransitionError indicates a chain state move the state graph
// forbids.
type InvalidTransitionError struct {
	ChainID string
	From    ChainState
	To      ChainState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("chain %s: invalid transition %s -> %s", e.ChainID, e.From, e.To)
}

// ChainFailedError wraps a stage failure. The cause keeps full detail for
// logs; UserMessage renders what the end user sees.
type ChainFailedError struct {
	Stage string
	Cause error
}

func (e *ChainFailedError) Error() string {
	return fmt.Sprintf("chain failed in %s stage: %v", e.Stage, e.Cause)
}

func (e *ChainFailedError) Unwrap() error {
	return e.Cause
}

// NewChainFailedError creates a new ChainFailedError.
func NewChainFailedError(stage string, cause error) *ChainFailedError {
	return &ChainFailedError{Stage: stage, Cause: cause}
}

// UserMessage is the apologetic, stage-naming text shown to the user in
// place of the raw fault.
func (e *ChainFailedError) UserMessage() string {
	return fmt.Sprintf("I'm sorry, something went wrong during the %s stage. Please try again.", e.Stage)
}
