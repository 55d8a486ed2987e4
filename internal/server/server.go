// Package server exposes the capture session over HTTP: JSON snapshots of
// the session, envelope and pipeline stats, Prometheus metrics, health
// probes and a WebSocket stream that pushes live updates to monitor UIs
// and accepts their transport commands.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/wavescope/internal/health"
	"github.com/MrWong99/wavescope/internal/observe"
	"github.com/MrWong99/wavescope/internal/stats"
)

const shutdownGrace = 5 * time.Second

// SessionSource answers the snapshot queries behind /v1/session and
// /v1/envelope. The envelope is single-writer state owned by the session
// coordinator, so implementations route reads through it; ctx bounds how
// long a query may wait for its turn.
type SessionSource interface {
	SessionSnapshot(ctx context.Context) (SessionSnapshot, error)
	EnvelopeSnapshot(ctx context.Context) (EnvelopeSnapshot, error)
}

// Config carries the server's dependencies.
type Config struct {
	// ListenAddr is the TCP address to listen on, e.g. ":8590".
	ListenAddr string
	// Session answers snapshot queries. Required.
	Session SessionSource
	// Stats is the pipeline stats source behind /v1/stats. Required.
	Stats *stats.Pipeline
	// Health serves /healthz and /readyz. A checkerless handler is used
	// when nil.
	Health *health.Handler
	// Hub receives accepted stream connections. A fresh hub is created
	// when nil.
	Hub *Hub
	// Logger defaults to [slog.Default].
	Logger *slog.Logger
	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server is the monitor HTTP server.
type Server struct {
	addr    string
	session SessionSource
	stats   *stats.Pipeline
	health  *health.Handler
	hub     *Hub
	log     *slog.Logger
	metrics *observe.Metrics
}

// New assembles a server from cfg, filling in defaults for the optional
// fields.
func New(cfg Config) *Server {
	s := &Server{
		addr:    cfg.ListenAddr,
		session: cfg.Session,
		stats:   cfg.Stats,
		health:  cfg.Health,
		hub:     cfg.Hub,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New(nil)
	}
	if s.hub == nil {
		s.hub = NewHub(WithLogger(s.log), WithMetrics(s.metrics))
	}
	return s
}

// Hub returns the hub receiving stream connections.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the route table. The stream endpoint sits outside the
// tracing middleware: a WebSocket held open for minutes would record a
// single giant span and skew the request duration histogram.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	handleGet(mux, "/metrics", promhttp.Handler())
	handleGet(mux, "/v1/session", http.HandlerFunc(s.handleSession))
	handleGet(mux, "/v1/envelope", http.HandlerFunc(s.handleEnvelope))
	handleGet(mux, "/v1/stats", http.HandlerFunc(s.handleStats))
	traced := observe.Middleware(s.metrics)(mux)

	root := http.NewServeMux()
	handleGet(root, "/v1/stream", http.HandlerFunc(s.handleStream))
	root.Handle("/", traced)
	return root
}

// handleGet registers handler for GET and HEAD requests on the exact path and
// answers all other methods with 405 Method Not Allowed and an Allow header,
// the same routing a "GET <path>" ServeMux pattern provides; the go1.21
// toolchain this module builds with predates method patterns.
func handleGet(mux *http.ServeMux, path string, handler http.Handler) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then disconnects all stream clients
// and drains in-flight requests. Returns ctx's error after a clean stop.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("monitor server listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	s.hub.Close()
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.log.Info("monitor server stopped")
	return ctx.Err()
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.SessionSnapshot(r.Context())
	if err != nil {
		s.serviceError(w, r, "session snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.EnvelopeSnapshot(r.Context())
	if err != nil {
		s.serviceError(w, r, "envelope snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

// handleStream upgrades the connection, snapshots the session for the
// hello frame and hands the socket to the hub.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("stream accept failed", "error", err)
		return
	}
	snap, err := s.session.SessionSnapshot(r.Context())
	if err != nil {
		s.log.Error("stream hello snapshot failed", "error", err)
		conn.Close(websocket.StatusInternalError, "session snapshot failed")
		return
	}
	s.hub.register(conn, snap)
}

func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusServiceUnavailable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	s.log.Warn(op+" failed", "path", r.URL.Path, "error", err)
	http.Error(w, op+": "+err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("server: encode response", "error", err)
	}
}
