// Package gateway exposes the pipeline over HTTP: document upload, chat,
// store maintenance, health and metrics.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragmesh/ragmesh/agents"
	"github.com/ragmesh/ragmesh/mcp"
	"github.com/ragmesh/ragmesh/observability"
	"github.com/ragmesh/ragmesh/rag"
)

// maxUploadBytes bounds multipart uploads.
const maxUploadBytes = 32 << 20

// Server handles the HTTP boundary.
type Server struct {
	coordinator *agents.Coordinator
	store       *rag.VectorStore
	logger      mcp.Logger
	validate    *validator.Validate
}

// NewServer creates the HTTP server facade.
func NewServer(coordinator *agents.Coordinator, store *rag.VectorStore, logger mcp.Logger) *Server {
	if logger == nil {
		logger = mcp.NopLogger{}
	}
	return &Server{
		coordinator: coordinator,
		store:       store,
		logger:      logger.Bind("component", "gateway"),
		validate:    validator.New(),
	}
}

// Routes builds the chi router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.metricsMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/chat", s.handleChat)
		r.Post("/clear", s.handleClear)
	})

	return r
}

// =============================================================================
// HANDLERS
// =============================================================================

type chatRequest struct {
	Message        string `json:"message" validate:"required"`
	ConversationID string `json:"conversation_id"`
}

type chatResponse struct {
	Response       string   `json:"response"`
	Sources        []string `json:"sources"`
	ConversationID string   `json:"conversation_id"`
}

type uploadResponse struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeJSON(w, http.StatusBadRequest, uploadResponse{Status: "error", Error: "expected a multipart form with a file field"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, uploadResponse{Status: "error", Error: "missing file field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, uploadResponse{Status: "error", Error: "could not read upload"})
		return
	}

	result, err := s.coordinator.Upload(r.Context(), header.Filename, data)
	if err != nil {
		status, msg := uploadError(err)
		s.logger.Warn("upload_failed", "filename", header.Filename, "error", err.Error())
		s.writeJSON(w, status, uploadResponse{Status: "error", Error: msg})
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{
		Status:     "success",
		DocumentID: result.DocumentID,
		Filename:   result.Filename,
		Chunks:     result.Chunks,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	answer, err := s.coordinator.Ask(r.Context(), req.Message, req.ConversationID)
	if err != nil {
		// The user gets an apologetic, stage-naming reply; the raw fault
		// stays in the logs.
		s.logger.Error("chat_failed", "error", err.Error())
		var failed *agents.ChainFailedError
		msg := "I'm sorry, something went wrong. Please try again."
		if errors.As(err, &failed) {
			msg = failed.UserMessage()
		}
		s.writeJSON(w, http.StatusOK, chatResponse{
			Response:       msg,
			Sources:        []string{},
			ConversationID: req.ConversationID,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{
		Response:       answer.Text,
		Sources:        answer.Sources,
		ConversationID: answer.ConversationID,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.store.Clear()
	s.logger.Info("store_cleared")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": s.store.Len(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// uploadError maps pipeline failures to a status code and a message that
// names what the user can fix.
func uploadError(err error) (int, string) {
	var (
		failed      *agents.ChainFailedError
		unsupported *rag.UnsupportedFormatError
		corrupt     *rag.CorruptFileError
		empty       *rag.EmptyDocumentError
	)
	switch {
	case errors.As(err, &unsupported):
		return http.StatusBadRequest, unsupported.Error()
	case errors.As(err, &corrupt):
		return http.StatusBadRequest, "the file could not be decoded; it may be corrupt"
	case errors.As(err, &empty):
		return http.StatusBadRequest, "the document contains no text"
	case errors.As(err, &failed):
		return http.StatusInternalServerError, failed.UserMessage()
	default:
		return http.StatusInternalServerError, "I'm sorry, something went wrong. Please try again."
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response_encode_failed", "error", err.Error())
	}
}

// metricsMiddleware records request counts and latency per route.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		observability.RecordHTTPRequest(route, http.StatusText(ww.Status()), int(time.Since(start).Milliseconds()))
	})
}
