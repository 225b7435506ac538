package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/aretw0/fsmlink/pkg/transport"
	"github.com/go-chi/chi/v5"
)

// Runtime is the view of a running fsmlink process the admin API needs.
type Runtime interface {
	// Snapshot returns the active machine snapshot; ok is false when no machine is loaded.
	Snapshot() (snap domain.Snapshot, ok bool)
	Connections() []transport.ConnID
	Definitions(ctx context.Context) ([]string, error)
	// Dispatch handles msg as if a peer had sent it and broadcasts the response.
	Dispatch(ctx context.Context, msg protocol.Message) protocol.Message
}

// Option configures the admin handler.
type Option func(*Server)

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams enables GET /events backed by sm.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server serves the admin API.
type Server struct {
	Runtime Runtime
	Streams *StreamManager

	metrics http.Handler
	version string
	logger  *slog.Logger
}

// NewHandler creates the admin HTTP handler for rt.
func NewHandler(rt Runtime, opts ...Option) http.Handler {
	s := &Server{
		Runtime: rt,
		version: "dev",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/state", s.GetState)
	r.Get("/connections", s.GetConnections)
	r.Get("/definitions", s.GetDefinitions)
	r.Post("/load", s.PostLoad)
	r.Post("/input", s.PostInput)
	r.Post("/stop", s.PostStop)
	if s.Streams != nil {
		r.Get("/events", s.SubscribeEvents)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("admin response encode failed", "error", err)
	}
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "fsmlink",
		"version": strings.TrimSpace(s.version),
	})
}

// GetState handles GET /state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Runtime.Snapshot()
	if !ok {
		http.Error(w, "no machine loaded", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// GetConnections handles GET /connections.
func (s *Server) GetConnections(w http.ResponseWriter, r *http.Request) {
	ids := s.Runtime.Connections()
	if ids == nil {
		ids = []transport.ConnID{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count": len(ids),
		"ids":   ids,
	})
}

// GetDefinitions handles GET /definitions.
func (s *Server) GetDefinitions(w http.ResponseWriter, r *http.Request) {
	names, err := s.Runtime.Definitions(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("list definitions failed", "error", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, names)
}

// LoadRequest is the body of POST /load.
type LoadRequest struct {
	Name string `json:"name"`
}

// InputRequest is the body of POST /input.
type InputRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PostLoad handles POST /load.
func (s *Server) PostLoad(w http.ResponseWriter, r *http.Request) {
	var body LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("load: invalid request body", "error", err)
		return
	}
	s.dispatch(w, r, protocol.NewJSON(body.Name))
}

// PostInput handles POST /input.
func (s *Server) PostInput(w http.ResponseWriter, r *http.Request) {
	var body InputRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("input: invalid request body", "error", err)
		return
	}
	if body.Name == "" {
		http.Error(w, "input name is required", http.StatusBadRequest)
		return
	}
	s.dispatch(w, r, protocol.NewInput(body.Name, body.Value))
}

// PostStop handles POST /stop.
func (s *Server) PostStop(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, protocol.NewStop())
}

// dispatch replies with the encoded protocol response. REJECT maps to 409.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, msg protocol.Message) {
	resp := s.Runtime.Dispatch(r.Context(), msg)
	frame, err := protocol.Encode(resp)
	if err != nil {
		http.Error(w, fmt.Sprintf("Encode error: %v", err), http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if resp.Type == protocol.TypeReject {
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(frame, '\n'))
}

// SubscribeEvents handles GET /events (SSE). The optional "watch" query
// keeps only the listed kinds, e.g. watch=STATE,STOP.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var watch map[string]bool
	if q := r.URL.Query().Get("watch"); q != "" {
		watch = make(map[string]bool)
		for _, f := range strings.Split(q, ",") {
			watch[strings.ToUpper(strings.TrimSpace(f))] = true
		}
	}

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if watch != nil && !watch[ev.Kind] {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", ev.Data)
			flusher.Flush()
		}
	}
}
