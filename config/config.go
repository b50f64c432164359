// Package config holds runtime configuration for the coordination service.
//
// Defaults are safe for local use; every field can be overridden through
// RAGMESH_* environment variables, loaded from the process environment or a
// .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds service configuration.
type Config struct {
	// HTTP
	HTTPAddr string `json:"http_addr" validate:"required"`

	// Pipeline
	ChunkSize         int           `json:"chunk_size" validate:"gt=0"`
	ChunkOverlap      int           `json:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK              int           `json:"top_k" validate:"gt=0"`
	MaxPromptChars    int           `json:"max_prompt_chars" validate:"gt=0"`
	EmbeddingDim      int           `json:"embedding_dim" validate:"gt=0"`
	MaxVectorRecords  int           `json:"max_vector_records" validate:"gte=0"`
	GenerationTimeout time.Duration `json:"generation_timeout" validate:"gt=0"`

	// Routing
	RequestTimeout time.Duration `json:"request_timeout" validate:"gt=0"`

	// Storage
	UploadDir string `json:"upload_dir" validate:"required"`

	// Observability
	LogLevel       string `json:"log_level" validate:"oneof=debug info warn error"`
	TracingEnabled bool   `json:"tracing_enabled"`
	OTLPEndpoint   string `json:"otlp_endpoint" validate:"required_if=TracingEnabled true"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		HTTPAddr: ":8080",

		ChunkSize:         1000,
		ChunkOverlap:      200,
		TopK:              5,
		MaxPromptChars:    2000,
		EmbeddingDim:      256,
		MaxVectorRecords:  10000,
		GenerationTimeout: 30 * time.Second,

		RequestTimeout: 30 * time.Second,

		UploadDir: "uploads",

		LogLevel:       "info",
		TracingEnabled: false,
		OTLPEndpoint:   "localhost:4317",
	}
}

// Load builds the configuration from defaults, a .env file when present, and
// RAGMESH_* environment variables, then validates it.
func Load() (*Config, error) {
	// Missing .env is not an error; the environment still applies.
	_ = godotenv.Load()

	c := Default()

	c.HTTPAddr = envString("RAGMESH_HTTP_ADDR", c.HTTPAddr)
	c.ChunkSize = envInt("RAGMESH_CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = envInt("RAGMESH_CHUNK_OVERLAP", c.ChunkOverlap)
	c.TopK = envInt("RAGMESH_TOP_K", c.TopK)
	c.MaxPromptChars = envInt("RAGMESH_MAX_PROMPT_CHARS", c.MaxPromptChars)
	c.EmbeddingDim = envInt("RAGMESH_EMBEDDING_DIM", c.EmbeddingDim)
	c.MaxVectorRecords = envInt("RAGMESH_MAX_VECTOR_RECORDS", c.MaxVectorRecords)
	c.GenerationTimeout = envDuration("RAGMESH_GENERATION_TIMEOUT", c.GenerationTimeout)
	c.RequestTimeout = envDuration("RAGMESH_REQUEST_TIMEOUT", c.RequestTimeout)
	c.UploadDir = envString("RAGMESH_UPLOAD_DIR", c.UploadDir)
	c.LogLevel = envString("RAGMESH_LOG_LEVEL", c.LogLevel)
	c.TracingEnabled = envBool("RAGMESH_TRACING_ENABLED", c.TracingEnabled)
	c.OTLPEndpoint = envString("RAGMESH_OTLP_ENDPOINT", c.OTLPEndpoint)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
