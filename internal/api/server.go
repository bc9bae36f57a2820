// Package api exposes the turn-processing loop over HTTP: a synchronous
// chat endpoint, a WebSocket streaming endpoint, and session management.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/stationmind/stationmind/internal/orchestrator"
	"github.com/stationmind/stationmind/internal/session"
)

// Server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Orchestrator *orchestrator.Orchestrator // Required
	Sessions     session.Store              // Required
	Logger       *slog.Logger
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{orch: cfg.Orchestrator, logger: logger}
	sh := &sessionHandler{store: cfg.Sessions, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", ch.chat)
	mux.HandleFunc("GET /ws/chat", ch.stream)
	mux.HandleFunc("GET /api/sessions", sh.list)
	mux.HandleFunc("DELETE /api/sessions/{id}", sh.delete)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// NewHTTPServer wraps the handler in an http.Server with sane timeouts.
// Write timeout stays unset because /ws/chat holds long-lived streams.
func NewHTTPServer(addr string, s *Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// health reports liveness.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
