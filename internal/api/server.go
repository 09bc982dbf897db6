// Package api implements the conversation HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/internal/buildinfo"
	"github.com/parleyhq/parley/internal/llm"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	loop    *agent.Loop
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, loop *agent.Loop, logger *slog.Logger) *Server {
	return &Server{
		address: address,
		port:    port,
		loop:    loop,
		logger:  logger,
	}
}

// Handler builds the full route table. Exposed separately from Start so
// tests can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Conversation endpoints
	mux.HandleFunc("POST /v1/text", s.handleText)
	mux.HandleFunc("GET /v1/list", s.handleList)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Tool loops can take a while
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"request_id", uuid.NewString(),
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Parley",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// TextRequest submits one user turn. An empty ConversationName starts a
// new conversation.
type TextRequest struct {
	ConversationName string `json:"conversation_name,omitempty"`
	Content          string `json:"content"`
}

// TextResponse is the settled result of a turn.
type TextResponse struct {
	ConversationName string `json:"conversation_name"`
	Content          string `json:"content"`
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		s.errorResponse(w, http.StatusBadRequest, "content is required")
		return
	}

	res, err := s.loop.SubmitMessage(r.Context(), req.ConversationName, req.Content)
	if err != nil {
		s.turnError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, TextResponse{
		ConversationName: res.ConversationName,
		Content:          res.Content,
	}, s.logger)
}

// turnError maps loop failures to status codes: a bad conversation name
// is the caller's fault, completion-backend failures are a bad gateway,
// everything else is internal.
func (s *Server) turnError(w http.ResponseWriter, err error) {
	var invalid *agent.InvalidConversationError
	if errors.As(err, &invalid) {
		s.errorResponse(w, http.StatusBadRequest, invalid.Error())
		return
	}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) || errors.Is(err, agent.ErrEmptyCompletion) {
		s.logger.Error("completion backend failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, "completion backend error")
		return
	}

	s.logger.Error("turn failed", "error", err)
	s.errorResponse(w, http.StatusInternalServerError, "internal error")
}

// ListResponse enumerates all conversation names.
type ListResponse struct {
	ConversationNames []string `json:"conversation_names"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := s.loop.ListConversationNames()
	if err != nil {
		s.logger.Error("list conversations failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}
	if names == nil {
		names = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ListResponse{ConversationNames: names}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
