// RAGMesh coordination server.
//
// HTTP server exposing the document pipeline: upload, chat, clear, health
// and metrics.
//
// Usage:
//
//	go run ./cmd/server                    # Default :8080
//	RAGMESH_HTTP_ADDR=:9090 go run ./cmd/server
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ragmesh/ragmesh/agents"
	"github.com/ragmesh/ragmesh/config"
	"github.com/ragmesh/ragmesh/gateway"
	"github.com/ragmesh/ragmesh/logging"
	"github.com/ragmesh/ragmesh/mcp"
	"github.com/ragmesh/ragmesh/observability"
	"github.com/ragmesh/ragmesh/rag"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logging.Sync(logger)

	logger.Info("ragmesh_starting", "address", cfg.HTTPAddr)

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracer("ragmesh", cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("tracer_init_failed", "error", err.Error())
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Warn("tracer_shutdown_failed", "error", err.Error())
				}
			}()
		}
	}

	// Collaborators
	store := rag.NewVectorStore(cfg.MaxVectorRecords)
	embedder := rag.NewHashEmbedder(cfg.EmbeddingDim)
	chunker, err := rag.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("chunker config error: %v", err)
	}

	// Substrate and agents
	router := mcp.NewRouter(mcp.NewRegistry(), logger, cfg.RequestTimeout)
	router.Use(mcp.NewLoggingMiddleware(logger))
	router.Use(mcp.NewCircuitBreakerMiddleware(5, 30*time.Second, nil, logger))

	mustRegister(logger, router, agents.IngestionAgentName,
		agents.NewIngestionAgent(rag.NewFormatExtractor(), chunker, embedder, store, cfg.UploadDir, logger))
	mustRegister(logger, router, agents.RetrievalAgentName,
		agents.NewRetrievalAgent(embedder, store, cfg.TopK, logger))
	mustRegister(logger, router, agents.ResponseAgentName,
		agents.NewResponseAgent(rag.NewExtractiveGenerator(3), cfg.MaxPromptChars, cfg.GenerationTimeout, logger))

	coordinator, err := agents.NewCoordinator(router, logger)
	if err != nil {
		log.Fatalf("coordinator init failed: %v", err)
	}

	// HTTP boundary
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      gateway.NewServer(coordinator, store, logger).Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("ragmesh_ready", "address", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_error", "error", err.Error())
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown_signal_received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown_incomplete", "error", err.Error())
	}
	logger.Info("ragmesh_stopped")
}

func mustRegister(logger mcp.Logger, router *mcp.Router, name string, handler mcp.Handler) {
	if err := router.Registry().Register(name, handler); err != nil {
		logger.Error("agent_registration_failed", "agent", name, "error", err.Error())
		os.Exit(1)
	}
}
