package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ragmesh/ragmesh/mcp"
	"github.com/ragmesh/ragmesh/observability"
)

var tracer = otel.Tracer("ragmesh/agents")

// Answer is the outcome of a query chain.
type Answer struct {
	Text           string
	Sources        []string
	ConversationID string
}

// UploadResult is the outcome of an upload chain.
type UploadResult struct {
	DocumentID string
	Filename   string
	Chunks     int
}

// Coordinator drives queries and uploads through the pipeline agents as
// chains. Each chain walks its state machine to a terminal state; any stage
// fault resolves the chain as failed and surfaces as a ChainFailedError.
type Coordinator struct {
	router *mcp.Router
	logger mcp.Logger

	mu     sync.Mutex
	chains map[string]*Chain
}

// NewCoordinator creates the Coordinator and registers it on the router's
// registry so stage agents and the router can address it.
func NewCoordinator(router *mcp.Router, logger mcp.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = mcp.NopLogger{}
	}
	c := &Coordinator{
		router: router,
		logger: logger.Bind("agent", CoordinatorName),
		chains: make(map[string]*Chain),
	}
	if err := router.Registry().Register(CoordinatorName, mcp.HandlerFunc(c.handle)); err != nil {
		return nil, err
	}
	return c, nil
}

// handle receives envelopes addressed to the coordinator outside a chain,
// such as bounced deliveries. They are logged and absorbed.
func (c *Coordinator) handle(ctx context.Context, env *mcp.Envelope) (*mcp.Envelope, error) {
	c.logger.Debug("coordinator_received",
		"envelope_id", env.ID,
		"type", string(env.Type),
		"sender", env.Sender,
	)
	return nil, nil
}

// ActiveChains returns how many chains have not yet reached a terminal
// state.
func (c *Coordinator) ActiveChains() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chains)
}

// Ask runs a question through retrieval and response. An empty
// conversationID starts a new conversation.
func (c *Coordinator) Ask(ctx context.Context, question, conversationID string) (*Answer, error) {
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	ctx, span := tracer.Start(ctx, "coordinator.ask",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	chain := c.track(NewChain(ChainKindQuery, conversationID))
	start := time.Now()

	if err := chain.Transition(ChainAwaitingRetrieval); err != nil {
		return nil, c.fail(chain, span, StageRetrieval, start, err)
	}
	retrieved, err := c.requestStage(ctx, RetrievalAgentName, StageRetrieval, map[string]any{
		"query": question,
	})
	if err != nil {
		return nil, c.fail(chain, span, StageRetrieval, start, err)
	}

	if err := chain.Transition(ChainAwaitingResponse); err != nil {
		return nil, c.fail(chain, span, StageResponse, start, err)
	}
	answered, err := c.requestStage(ctx, ResponseAgentName, StageResponse, map[string]any{
		"query":            question,
		"retrieved_chunks": retrieved["retrieved_chunks"],
	})
	if err != nil {
		return nil, c.fail(chain, span, StageResponse, start, err)
	}

	c.complete(chain, span, start)

	return &Answer{
		Text:           stringField(answered, "response"),
		Sources:        stringSlice(answered["sources"]),
		ConversationID: conversationID,
	}, nil
}

// Upload runs a document through ingestion.
func (c *Coordinator) Upload(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	ctx, span := tracer.Start(ctx, "coordinator.upload",
		trace.WithAttributes(attribute.String("upload.filename", filename)),
	)
	defer span.End()

	chain := c.track(NewChain(ChainKindUpload, ""))
	start := time.Now()

	if err := chain.Transition(ChainAwaitingIngestion); err != nil {
		return nil, c.fail(chain, span, StageIngestion, start, err)
	}
	ingested, err := c.requestStage(ctx, IngestionAgentName, StageIngestion, map[string]any{
		"filename": filename,
		"data":     data,
	})
	if err != nil {
		return nil, c.fail(chain, span, StageIngestion, start, err)
	}

	c.complete(chain, span, start)

	chunks := 0
	switch v := ingested["chunks"].(type) {
	case int:
		chunks = v
	case float64:
		chunks = int(v)
	}
	return &UploadResult{
		DocumentID: stringField(ingested, "document_id"),
		Filename:   stringField(ingested, "filename"),
		Chunks:     chunks,
	}, nil
}

// requestStage dispatches one stage request and returns the response payload.
// The stage identity is stamped onto the request so the router records it with
// the outstanding correlation. Middleware may suppress a dispatch entirely,
// such as an open circuit breaker; that resolves as a stage failure, never
// as a missing result.
func (c *Coordinator) requestStage(ctx context.Context, receiver, stage string, payload map[string]any) (map[string]any, error) {
	payload["stage"] = stage
	res, err := c.router.Dispatch(ctx, mcp.NewRequest(CoordinatorName, receiver, payload))
	if err != nil {
		return nil, err
	}
	if res == nil || res.Response == nil {
		return nil, fmt.Errorf("dispatch to %s was suppressed", receiver)
	}
	return res.Response.Payload, nil
}

// =============================================================================
// CHAIN BOOKKEEPING
// =============================================================================

func (c *Coordinator) track(chain *Chain) *Chain {
	c.mu.Lock()
	c.chains[chain.ID] = chain
	c.mu.Unlock()
	return chain
}

// release drops the chain once it reaches a terminal state.
func (c *Coordinator) release(chain *Chain) {
	c.mu.Lock()
	delete(c.chains, chain.ID)
	c.mu.Unlock()
}

func (c *Coordinator) complete(chain *Chain, span trace.Span, start time.Time) {
	durationMS := int(time.Since(start).Milliseconds())
	// Transition can only fail here through coordinator bugs; the chain is
	// released either way.
	if err := chain.Transition(ChainCompleted); err != nil {
		c.logger.Error("chain_transition_error", "chain_id", chain.ID, "error", err.Error())
	}
	c.release(chain)

	observability.RecordChain(chain.Kind, "completed", durationMS)
	span.SetStatus(codes.Ok, "")
	c.logger.Info("chain_completed", "chain_id", chain.ID, "kind", chain.Kind, "duration_ms", durationMS)
}

func (c *Coordinator) fail(chain *Chain, span trace.Span, stage string, start time.Time, cause error) error {
	durationMS := int(time.Since(start).Milliseconds())
	chain.State = ChainFailed
	c.release(chain)

	observability.RecordChain(chain.Kind, "failed", durationMS)
	observability.RecordChainStageFailure(stage)

	failure := NewChainFailedError(stage, cause)
	span.RecordError(failure)
	span.SetStatus(codes.Error, failure.Error())
	c.logger.Error("chain_failed",
		"chain_id", chain.ID,
		"kind", chain.Kind,
		"stage", stage,
		"error", cause.Error(),
		"duration_ms", durationMS,
	)
	return failure
}

// =============================================================================
// PAYLOAD HELPERS
// =============================================================================

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return []string{}
	}
}
