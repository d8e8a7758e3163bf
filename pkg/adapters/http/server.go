// Package http exposes a running engine over HTTP: node and context status,
// node control, a server-sent event stream and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/sluice"
	"github.com/aretw0/sluice/internal/logging"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the part of *sluice.Engine the monitor needs.
type Engine interface {
	Nodes() []domain.NodeStatus
	Node(ref string) (domain.NodeStatus, error)
	Links() []sluice.Link
	Groups() []domain.GroupSpec
	Contexts() []domain.ContextStatus
	SetProcessingEnabled(ref string, enabled bool) error
	Kill(ref string) error
	Reset(ref string) error
	Subscribe(ctx context.Context) <-chan domain.Event
}

var _ Engine = (*sluice.Engine)(nil)

// Option configures the handler.
type Option func(*Server)

// WithMetrics serves m on /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server holds the handlers.
type Server struct {
	Engine  Engine
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{Engine: engine, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/nodes", s.ListNodes)
	r.Route("/nodes/{ref}", func(r chi.Router) {
		r.Get("/", s.GetNode)
		r.Post("/enable", s.control(func(ref string) error { return s.Engine.SetProcessingEnabled(ref, true) }))
		r.Post("/disable", s.control(func(ref string) error { return s.Engine.SetProcessingEnabled(ref, false) }))
		r.Post("/kill", s.control(s.Engine.Kill))
		r.Post("/reset", s.control(s.Engine.Reset))
	})
	r.Get("/links", s.ListLinks)
	r.Get("/groups", s.ListGroups)
	r.Get("/contexts", s.ListContexts)
	r.Get("/events", s.SubscribeEvents)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
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

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNodeBusy):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"app":     "sluice-monitor",
		"version": strings.TrimSpace(sluice.Version),
		"nodes":   len(s.Engine.Nodes()),
	})
}

// ListNodes handles the GET /nodes request.
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.Engine.Nodes())
}

// GetNode handles the GET /nodes/{ref} request. ref is a label or a UUID.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	status, err := s.Engine.Node(chi.URLParam(r, "ref"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, status)
}

func (s *Server) control(fn func(ref string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "ref")
		if err := fn(ref); err != nil {
			s.writeError(w, err)
			return
		}
		s.logger.Info("node control", "node", ref, "path", r.URL.Path)
		status, err := s.Engine.Node(ref)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, status)
	}
}

// ListLinks handles the GET /links request.
func (s *Server) ListLinks(w http.ResponseWriter, r *http.Request) {
	links := s.Engine.Links()
	if links == nil {
		links = []sluice.Link{}
	}
	s.writeJSON(w, links)
}

// ListGroups handles the GET /groups request.
func (s *Server) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.Engine.Groups()
	if groups == nil {
		groups = []domain.GroupSpec{}
	}
	s.writeJSON(w, groups)
}

// ListContexts handles the GET /contexts request.
func (s *Server) ListContexts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.Engine.Contexts())
}

// SubscribeEvents handles the GET /events request (SSE).
// Optional filters: node (label) and type, both comma separated.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}
	nodes := filter(r.URL.Query().Get("node"))
	types := filter(r.URL.Query().Get("type"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.Engine.Subscribe(r.Context())
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("SSE client subscribed", "nodes", r.URL.Query().Get("node"), "types", r.URL.Query().Get("type"))

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !nodes.match(ev.Label) || !types.match(string(ev.Type)) {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("SSE: event encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

type filterSet map[string]struct{}

func filter(raw string) filterSet {
	if raw == "" {
		return nil
	}
	set := filterSet{}
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func (f filterSet) match(v string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[v]
	return ok
}
