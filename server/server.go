// Package server owns the HTTP listener and the relay's lifecycle:
// starting → listening → draining → stopped.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"

	"pos-relay-server/config"
	"pos-relay-server/domain"
	ws "pos-relay-server/websocket"
)

type State int32

const (
	StateStarting State = iota
	StateListening
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Hub is the part of the registry the server drives.
type Hub interface {
	domain.Broadcaster
	Shutdown(ctx context.Context) error
}

type Server struct {
	cfg      *config.Config
	hub      Hub
	handler  domain.MessageHandler
	upgrader *gorillaws.Upgrader
	metrics  http.Handler

	state    atomic.Int32
	http     *http.Server
	listener net.Listener
}

type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func New(cfg *config.Config, hub Hub, handler domain.MessageHandler, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		hub:      hub,
		handler:  handler,
		upgrader: ws.NewUpgrader(cfg.AllowedOrigins),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.http = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) State() State { return State(s.state.Load()) }

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
	slog.Debug("server state", "state", st)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.wsHandler)
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.HandleFunc("/", rootHandler)
	return mux
}

// Listen binds the configured port. A bind failure is returned and the server
// stays in the starting state.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr(), err)
	}
	s.listener = ln
	s.setState(StateListening)

	slog.Info("POS socket server running", "port", s.Port())
	slog.Info("CORS origin", "origin", s.cfg.CORSOrigin)
	slog.Info("health check", "url", fmt.Sprintf("http://localhost:%d/health", s.Port()))
	return nil
}

// Port is the bound port, which differs from the configured one when the
// configuration asks for port 0.
func (s *Server) Port() int {
	if s.listener == nil {
		return s.cfg.Port
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve handles requests until ctx ends, then drains: new upgrades are
// refused, connected clients are closed with a close handshake, and finally
// the listener is closed. Listen must have succeeded first.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server: Serve called before Listen")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.setState(StateStopped)
		return err
	case <-ctx.Done():
	}

	s.setState(StateDraining)
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.hub.Shutdown(shutdownCtx); err != nil {
		slog.Warn("clients did not close in time", "error", err)
	}
	err := s.http.Shutdown(shutdownCtx)
	s.setState(StateStopped)
	slog.Info("server closed")
	return err
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	if s.State() != StateListening {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("upgrade error", "origin", r.Header.Get("Origin"), "error", err)
		return
	}

	c := ws.NewConn(uuid.New().String(), conn, s.hub, s.handler, ws.Options{
		PingInterval:   s.cfg.PingInterval,
		PingTimeout:    s.cfg.PingTimeout,
		MaxMessageSize: ws.DefaultOptions().MaxMessageSize,
	})
	if err := c.Start(); err != nil {
		slog.Warn("connection refused", "clientId", c.ID(), "error", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, clients := s.hub.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"rooms": rooms, "clients": clients})
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "POS Socket Server Running")
}
