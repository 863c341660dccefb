// Package api exposes the LoopPipe pipeline over HTTP: trigger intake, smart-link redirects,
// registry introspection, the event log and health.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/agent"
	"github.com/BTreeMap/LoopPipe/internal/pipeline"
	"github.com/BTreeMap/LoopPipe/internal/smartlink"
	"github.com/BTreeMap/LoopPipe/internal/store"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultEventLimit caps GET /events when no limit is given.
	DefaultEventLimit = 100
	// maxBodyBytes caps request bodies.
	maxBodyBytes = 1 << 20
)

// HealthChecker is implemented by every agent.
type HealthChecker interface {
	HealthCheck(ctx context.Context) agent.Health
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	Dedup          store.DedupRepo
	EventLog       store.EventRepo
	HealthCheckers []HealthChecker
	Logger         *slog.Logger
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithDedup enables idempotency keys on POST /triggers.
func WithDedup(repo store.DedupRepo) Option {
	return func(o *Opts) { o.Dedup = repo }
}

// WithEventLog lets GET /events?source=store read the persisted event log.
func WithEventLog(repo store.EventRepo) Option {
	return func(o *Opts) { o.EventLog = repo }
}

// WithHealthCheckers sets the agents probed by GET /health.
func WithHealthCheckers(checkers ...HealthChecker) Option {
	return func(o *Opts) { o.HealthCheckers = checkers }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Opts) { o.Logger = l }
}

// Server is the HTTP front end of a pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	links    *smartlink.Service
	dedup    store.DedupRepo
	eventLog store.EventRepo
	checkers []HealthChecker
	addr     string
	logger   *slog.Logger
}

// NewServer creates a server over p. links serves the /l/ routes.
func NewServer(p *pipeline.Pipeline, links *smartlink.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		pipeline: p,
		links:    links,
		dedup:    cfg.Dedup,
		eventLog: cfg.EventLog,
		checkers: cfg.HealthCheckers,
		addr:     cfg.Addr,
		logger:   cfg.Logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/triggers", s.triggerHandler)
	mux.HandleFunc("/sessions/summary", s.sessionSummaryHandler)
	mux.HandleFunc("/events", s.eventsHandler)
	mux.HandleFunc("/loops", s.loopsHandler)
	mux.HandleFunc("/loops/stats", s.loopStatsHandler)
	mux.HandleFunc("/actions", s.actionsHandler)
	mux.HandleFunc("/actions/stats", s.actionStatsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("GET /l/{code}", s.redirectHandler)
	mux.HandleFunc("GET /l/{code}/qr", s.qrHandler)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server.Run: API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
