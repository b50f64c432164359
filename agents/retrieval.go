package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ragmesh/ragmesh/mcp"
	"github.com/ragmesh/ragmesh/observability"
	"github.com/ragmesh/ragmesh/rag"
)

// RetrievalAgent answers similarity searches over the vector store. Requests
// carry "query" and an optional "top_k" in the payload.
type RetrievalAgent struct {
	embedder rag.Embedder
	store    *rag.VectorStore
	topK     int
	logger   mcp.Logger
}

var _ mcp.Handler = (*RetrievalAgent)(nil)

// NewRetrievalAgent creates a RetrievalAgent with the given default result
// count.
func NewRetrievalAgent(embedder rag.Embedder, store *rag.VectorStore, topK int, logger mcp.Logger) *RetrievalAgent {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = mcp.NopLogger{}
	}
	return &RetrievalAgent{
		embedder: embedder,
		store:    store,
		topK:     topK,
		logger:   logger.Bind("agent", RetrievalAgentName),
	}
}

// Handle embeds the query and replies with the best-matching chunks,
// best-first. An empty store yields an empty chunk list, not an error.
func (a *RetrievalAgent) Handle(ctx context.Context, env *mcp.Envelope) (*mcp.Envelope, error) {
	start := time.Now()

	query, _ := env.Payload["query"].(string)
	if strings.TrimSpace(query) == "" {
		observability.RecordAgentExecution(RetrievalAgentName, "error", 0)
		return nil, fmt.Errorf("no query in retrieval request")
	}

	k := a.topK
	switch v := env.Payload["top_k"].(type) {
	case int:
		if v > 0 {
			k = v
		}
	case float64:
		if v > 0 {
			k = int(v)
		}
	}

	vector, err := a.embedder.Embed(query)
	if err != nil {
		observability.RecordAgentExecution(RetrievalAgentName, "error", int(time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results := a.store.Search(vector, k)
	chunks := make([]rag.ContextChunk, 0, len(results))
	for _, r := range results {
		source, _ := r.Record.Metadata["source"].(string)
		chunks = append(chunks, rag.ContextChunk{
			Text:   r.Record.Text,
			Source: source,
			Score:  r.Score,
		})
	}

	durationMS := int(time.Since(start).Milliseconds())
	observability.RecordAgentExecution(RetrievalAgentName, "success", durationMS)
	a.logger.Debug("retrieval_completed", "query", query, "results", len(chunks), "duration_ms", durationMS)

	return env.Reply(map[string]any{
		"status":           "success",
		"query":            query,
		"retrieved_chunks": chunks,
	}), nil
}
