// Package api provides the HTTP admin surface for TaskBot.
//
// It exposes endpoints for task creation and dispatch, subscriber and
// notification listing, direct messages, and polling control. The dashboard
// frontend is the only intended consumer.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldops/taskbot/internal/dispatch"
	"github.com/fieldops/taskbot/internal/ingest"
	"github.com/fieldops/taskbot/internal/store"
)

// Constants for API server configuration
const (
	// DefaultAddr is the default listen address for the admin API.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string // listen address
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server wires the HTTP handlers to the engine components.
type Server struct {
	store      store.Store
	dispatcher *dispatch.Dispatcher
	poller     *ingest.Poller
	guard      *ingest.Guard

	httpServer *http.Server
}

// NewServer creates a Server, applying any provided options.
func NewServer(st store.Store, dispatcher *dispatch.Dispatcher, poller *ingest.Poller, guard *ingest.Guard, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		store:      st,
		dispatcher: dispatcher,
		poller:     poller,
		guard:      guard,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/subscribers", s.subscribersHandler)
	mux.HandleFunc("/tasks", s.tasksHandler)
	mux.HandleFunc("/tasks/send", s.taskSendHandler)
	mux.HandleFunc("/tasks/complete", s.taskCompleteHandler)
	mux.HandleFunc("/messages", s.messagesHandler)
	mux.HandleFunc("/notifications", s.notificationsHandler)
	mux.HandleFunc("/poller/start", s.pollerStartHandler)
	mux.HandleFunc("/poller/stop", s.pollerStopHandler)
	mux.HandleFunc("/stats", s.statsHandler)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving. It blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Server.Start: admin API listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin API server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: stopping admin API")
	ctx, cancel := context.WithTimeout(ctx, DefaultShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
