// Package server exposes the session controller to the presentation layer
// over a local HTTP and WebSocket API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sidenote-ai/advisor/internal/types"
	"github.com/sidenote-ai/advisor/liveassist"
)

// SessionController is the inbound surface the presentation layer drives.
// *liveassist.Service is the production implementation.
type SessionController interface {
	Start(ctx context.Context) error
	Stop()
	SetKnowledge(text string)
	Status() types.SessionStatus
	Messages() []types.Message
	Suggestions() []types.Suggestion
	Streaming() types.StreamingText
	Subscribe() (<-chan types.Update, func())
}

// Server serves the presentation-layer API.
type Server struct {
	addr       string
	controller SessionController
	httpSrv    *http.Server
}

// New creates a server bound to addr. The optional gatherer adds a /metrics
// endpoint.
func New(addr string, controller SessionController, gatherer prometheus.Gatherer) *Server {
	s := &Server{addr: addr, controller: controller}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/stop", s.handleStop)
	mux.HandleFunc("POST /api/knowledge", s.handleKnowledge)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("GET /api/suggestions", s.handleSuggestions)
	mux.HandleFunc("GET /api/streaming", s.handleStreaming)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Handler returns the underlying HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Start(r.Context()); err != nil {
		// Only a running session is a conflict; failed preconditions
		// (credential, environment, devices) are the caller's to fix.
		status := http.StatusUnprocessableEntity
		if errors.Is(err, liveassist.ErrSessionActive) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.controller.Stop()
	writeJSON(w, http.StatusOK, s.controller.Status())
}

type knowledgeRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	var req knowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	s.controller.SetKnowledge(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleMessages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Messages())
}

func (s *Server) handleSuggestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Suggestions())
}

func (s *Server) handleStreaming(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Streaming())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
