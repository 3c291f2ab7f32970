// Package server is the console's HTTP surface: direct commands, streamed
// chat, the dashboard and the health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/flynn-ai/opsconsole/internal/agent"
	"github.com/flynn-ai/opsconsole/internal/dispatch"
	"github.com/flynn-ai/opsconsole/internal/stats"
	"github.com/flynn-ai/opsconsole/internal/store"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Deps are the collaborators behind the routes. A nil Orchestrator
// disables /api/chat.
type Deps struct {
	Dispatcher   *dispatch.Dispatcher
	Orchestrator *agent.Orchestrator
	Store        store.Store
	Stats        *stats.Collector
	Gatherer     prometheus.Gatherer
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	router *mux.Router
	deps   Deps
}

// New creates a Server with its routes registered.
func New(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.observe)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/command", s.handleCommand).Methods("POST")
	s.router.HandleFunc("/api/chat", s.handleChat).Methods("POST")
	s.router.HandleFunc("/api/dashboard", s.handleDashboard).Methods("GET")

	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Version   string       `json:"version"`
	Chat      bool         `json:"chat"`
	Process   *stats.Stats `json:"process"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		Chat:      s.deps.Orchestrator != nil,
		Process:   s.deps.Stats.Snapshot(),
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req protocol.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Dispatcher.Handle(r.Context(), req))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ds, err := s.deps.Store.DashboardStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("dashboard stats failed")
		writeError(w, http.StatusInternalServerError, "could not load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orchestrator == nil {
		writeError(w, http.StatusNotFound, "chat is disabled")
		return
	}
	var req protocol.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for chunk := range s.deps.Orchestrator.Run(ctx, req) {
		if err := writeEvent(w, chunk); err != nil {
			log.Debug().Err(err).Msg("chat client went away")
			cancel()
			continue
		}
		flusher.Flush()
	}
}

// writeEvent frames one chunk as a server-sent event. The Done chunk is
// written as the [DONE] sentinel.
func writeEvent(w http.ResponseWriter, c protocol.StreamChunk) error {
	if c.Done {
		_, err := fmt.Fprint(w, "data: [DONE]\n\n")
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
