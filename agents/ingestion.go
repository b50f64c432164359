package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragmesh/ragmesh/mcp"
	"github.com/ragmesh/ragmesh/observability"
	"github.com/ragmesh/ragmesh/rag"
)

// IngestionAgent turns uploaded documents into embedded chunks in the vector
// store. It answers requests carrying "filename" and "data" in the payload.
type IngestionAgent struct {
	extractor rag.Extractor
	chunker   *rag.Chunker
	embedder  rag.Embedder
	store     *rag.VectorStore
	uploadDir string
	logger    mcp.Logger
}

var _ mcp.Handler = (*IngestionAgent)(nil)

// NewIngestionAgent creates an IngestionAgent. uploadDir may be empty to
// skip persisting the original file.
func NewIngestionAgent(
	extractor rag.Extractor,
	chunker *rag.Chunker,
	embedder rag.Embedder,
	store *rag.VectorStore,
	uploadDir string,
	logger mcp.Logger,
) *IngestionAgent {
	if logger == nil {
		logger = mcp.NopLogger{}
	}
	return &IngestionAgent{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		uploadDir: uploadDir,
		logger:    logger.Bind("agent", IngestionAgentName),
	}
}

// Handle ingests one document and replies with the document id and chunk
// count.
func (a *IngestionAgent) Handle(ctx context.Context, env *mcp.Envelope) (*mcp.Envelope, error) {
	start := time.Now()
	a.logger.Info("ingestion_started", "envelope_id", env.ID)

	result, err := a.ingest(ctx, env)

	durationMS := int(time.Since(start).Milliseconds())
	if err != nil {
		observability.RecordAgentExecution(IngestionAgentName, "error", durationMS)
		a.logger.Error("ingestion_error", "error", err.Error(), "duration_ms", durationMS)
		return nil, err
	}
	observability.RecordAgentExecution(IngestionAgentName, "success", durationMS)
	a.logger.Info("ingestion_completed", "chunks", result["chunks"], "duration_ms", durationMS)
	return env.Reply(result), nil
}

func (a *IngestionAgent) ingest(ctx context.Context, env *mcp.Envelope) (map[string]any, error) {
	filename, _ := env.Payload["filename"].(string)
	if filename == "" {
		return nil, fmt.Errorf("no filename in ingestion request")
	}
	data, ok := env.Payload["data"].([]byte)
	if !ok {
		return nil, fmt.Errorf("no document data in ingestion request")
	}

	text, err := a.extractor.Extract(filename, data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, rag.NewEmptyDocumentError(filename)
	}

	documentID := uuid.New().String()
	chunks := a.chunker.Split(text)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vector, err := a.embedder.Embed(chunk)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d: %w", i, err)
		}
		a.store.Add(chunk, vector, map[string]any{
			"source":      filepath.Base(filename),
			"document_id": documentID,
			"chunk_index": i,
		})
	}

	if a.uploadDir != "" {
		if err := a.saveOriginal(filename, data); err != nil {
			// The chunks are already searchable; losing the original copy is
			// logged, not fatal.
			a.logger.Warn("original_save_failed", "filename", filename, "error", err.Error())
		}
	}

	return map[string]any{
		"status":      "success",
		"document_id": documentID,
		"filename":    filepath.Base(filename),
		"chunks":      len(chunks),
	}, nil
}

func (a *IngestionAgent) saveOriginal(filename string, data []byte) error {
	if err := os.MkdirAll(a.uploadDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.uploadDir, filepath.Base(filename)), data, 0o644)
}
