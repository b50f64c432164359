package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ragmesh/ragmesh/mcp"
	"github.com/ragmesh/ragmesh/observability"
	"github.com/ragmesh/ragmesh/rag"
)

// ResponseAgent produces the user-facing answer from retrieved context.
// Requests carry "query" and "retrieved_chunks" in the payload.
type ResponseAgent struct {
	generator      rag.Generator
	maxPromptChars int
	timeout        time.Duration
	logger         mcp.Logger
}

var _ mcp.Handler = (*ResponseAgent)(nil)

// NewResponseAgent creates a ResponseAgent. maxPromptChars bounds how much
// context reaches the generator; timeout bounds generation itself.
func NewResponseAgent(generator rag.Generator, maxPromptChars int, timeout time.Duration, logger mcp.Logger) *ResponseAgent {
	if maxPromptChars <= 0 {
		maxPromptChars = 2000
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = mcp.NopLogger{}
	}
	return &ResponseAgent{
		generator:      generator,
		maxPromptChars: maxPromptChars,
		timeout:        timeout,
		logger:         logger.Bind("agent", ResponseAgentName),
	}
}

// Handle generates the answer and replies with it plus the source filenames
// whose text actually made it into the prompt.
func (a *ResponseAgent) Handle(ctx context.Context, env *mcp.Envelope) (*mcp.Envelope, error) {
	start := time.Now()

	query, _ := env.Payload["query"].(string)
	if strings.TrimSpace(query) == "" {
		observability.RecordAgentExecution(ResponseAgentName, "error", 0)
		return nil, fmt.Errorf("no query in response request")
	}

	contexts, sources := a.budgetContexts(contextChunks(env.Payload["retrieved_chunks"]))

	genCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	answer, err := a.generator.Generate(genCtx, query, contexts)
	durationMS := int(time.Since(start).Milliseconds())
	if err != nil {
		observability.RecordAgentExecution(ResponseAgentName, "error", durationMS)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = rag.NewGenerationTimeoutError(a.timeout.Seconds())
		}
		a.logger.Error("response_error", "error", err.Error(), "duration_ms", durationMS)
		return nil, err
	}

	if len(contexts) == 0 {
		sources = []string{}
	}

	observability.RecordAgentExecution(ResponseAgentName, "success", durationMS)
	a.logger.Debug("response_completed", "sources", len(sources), "duration_ms", durationMS)

	return env.Reply(map[string]any{
		"status":   "success",
		"response": answer,
		"sources":  sources,
	}), nil
}

// budgetContexts keeps chunks best-first until the prompt budget runs out and
// collects the distinct sources of the chunks that fit. The budget is counted
// in runes, matching how chunk truncation measures text.
func (a *ResponseAgent) budgetContexts(chunks []rag.ContextChunk) ([]rag.ContextChunk, []string) {
	var kept []rag.ContextChunk
	sources := []string{}
	seen := make(map[string]struct{})

	used := 0
	for _, chunk := range chunks {
		size := utf8.RuneCountInString(chunk.Text)
		if used+size > a.maxPromptChars && len(kept) > 0 {
			break
		}
		if size > a.maxPromptChars {
			chunk.Text = string([]rune(chunk.Text)[:a.maxPromptChars])
			size = a.maxPromptChars
		}
		kept = append(kept, chunk)
		used += size

		if chunk.Source != "" {
			if _, dup := seen[chunk.Source]; !dup {
				seen[chunk.Source] = struct{}{}
				sources = append(sources, chunk.Source)
			}
		}
	}
	return kept, sources
}

// contextChunks tolerates both the native chunk slice produced by the
// retrieval agent and the generic form it takes after a JSON round trip.
func contextChunks(v any) []rag.ContextChunk {
	switch chunks := v.(type) {
	case []rag.ContextChunk:
		return chunks
	case []any:
		out := make([]rag.ContextChunk, 0, len(chunks))
		for _, c := range chunks {
			m, ok := c.(map[string]any)
			if !ok {
				continue
			}
			chunk := rag.ContextChunk{}
			chunk.Text, _ = m["text"].(string)
			chunk.Source, _ = m["source"].(string)
			chunk.Score, _ = m["score"].(float64)
			out = append(out, chunk)
		}
		return out
	default:
		return nil
	}
}
