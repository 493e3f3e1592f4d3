package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ritzau/agentic-mesh/pkg/logging"
	"github.com/ritzau/agentic-mesh/pkg/model"
	"github.com/ritzau/agentic-mesh/pkg/pubsub"
)

//go:embed static/*
var staticFiles embed.FS

// StateSource exposes the running simulation's read-only state
type StateSource interface {
	Snapshot() *model.Snapshot
	Topology() model.TopologyView
}

// Broker hands out snapshot subscriptions to observers
type Broker interface {
	Subscribe(ctx context.Context) (pubsub.Subscription, error)
	Len() int
}

// Health is the /healthz payload
type Health struct {
	Status    string `json:"status"`
	Tick      uint64 `json:"tick"`
	Observers int    `json:"observers"`
}

// Server represents the web server
type Server struct {
	router *mux.Router
	source StateSource
	broker Broker
}

// NewServer creates a web server over a simulation and its broadcast hub
func NewServer(source StateSource, broker Broker) *Server {
	s := &Server{
		router: mux.NewRouter(),
		source: source,
		broker: broker,
	}
	s.setupRoutes()
	return s
}

// Handler returns the routed handler wrapped in request logging
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	// Push channels
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	s.router.HandleFunc("/api/subscribe/snapshot", s.handleSubscribeSnapshot).Methods("GET")

	s.router.HandleFunc("/api/snapshot", s.handleSnapshot).Methods("GET")
	s.router.HandleFunc("/api/topology", s.handleTopology).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	// Serve static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logging.Fatal("embedded static files missing", "error", err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

func (s *Server) handleSubscribeSnapshot(w http.ResponseWriter, r *http.Request) {
	// Subscribe before any header is written so a refusal can still be a 503
	sub, err := s.broker.Subscribe(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Initial comment establishes the stream (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	for snap := range sub.Events() {
		if err := pubsub.WriteSSE(w, snap); err != nil {
			logging.DebugContext(r.Context(), "SSE observer gone", "error", err)
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.source.Snapshot())
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.source.Topology())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := Health{Status: "ok", Observers: s.broker.Len()}
	if snap := s.source.Snapshot(); snap != nil {
		health.Tick = snap.Tick
	}
	writeJSON(w, r, health)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.WarnContext(r.Context(), "failed to encode response", "path", r.URL.Path, "error", err)
	}
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("web server listening", "url", fmt.Sprintf("http://localhost%s", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
