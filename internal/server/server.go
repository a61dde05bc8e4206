// Package server exposes the question answering, analysis, schema, ingest
// and accuracy surfaces over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/surisearch/suri-search/internal/accuracy"
	"github.com/surisearch/suri-search/internal/analyzer"
	"github.com/surisearch/suri-search/internal/ask"
	"github.com/surisearch/suri-search/internal/bus"
	"github.com/surisearch/suri-search/internal/pkg/logger"
	"github.com/surisearch/suri-search/internal/pkg/middleware"
	"github.com/surisearch/suri-search/internal/retrieval"
	"github.com/surisearch/suri-search/internal/schema"
)

// Config configures the HTTP server.
type Config struct {
	Host string
	Port int

	Version string

	// APIKey guards all /v1 routes when set.
	APIKey string

	// RateLimit is requests per second per client, 0 disables limiting.
	RateLimit int

	// CORSOrigins is the allowed origin list, "*" for any.
	CORSOrigins string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		CORSOrigins:     "*",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Deps carries the wired services the server exposes.
type Deps struct {
	Ask        *ask.Service
	Engine     *retrieval.Engine
	Analyzer   *analyzer.Analyzer
	Registry   *schema.Registry
	Runner     *accuracy.Runner
	Optimizer  *accuracy.Optimizer
	Accuracy   accuracy.Storage
	Dispatcher bus.Dispatcher
	Log        *logger.Logger
}

// Server is the HTTP server.
type Server struct {
	cfg  Config
	deps Deps
	log  *logger.Logger

	httpServer *http.Server

	mu      sync.RWMutex
	started bool
}

// New creates a server over already-wired dependencies.
func New(cfg Config, deps Deps) *Server {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}
	return &Server{cfg: cfg, deps: deps, log: deps.Log}
}

// Start runs the HTTP server until Stop or a listener error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("starting http server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Error("http shutdown error")
	}

	s.started = false
	s.log.Info("server stopped")
	return nil
}

// Handler builds the full route tree with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	mux.HandleFunc("POST /v1/ask", s.handleAsk)
	mux.HandleFunc("POST /v1/ask/stream", s.handleAskStream)

	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)

	mux.HandleFunc("GET /v1/schemas", s.handleListSchemas)
	mux.HandleFunc("GET /v1/schemas/{slug}", s.handleGetSchema)
	mux.HandleFunc("POST /v1/schemas/discover", s.handleDiscoverSchema)
	mux.HandleFunc("POST /v1/schemas/{slug}/aliases", s.handleAddAlias)

	mux.HandleFunc("POST /v1/documents", s.handleUploadDocument)

	mux.HandleFunc("GET /v1/accuracy/tests", s.handleListTests)
	mux.HandleFunc("POST /v1/accuracy/tests", s.handleCreateTest)
	mux.HandleFunc("POST /v1/accuracy/run", s.handleRunSuite)
	mux.HandleFunc("GET /v1/accuracy/history", s.handleHistory)
	mux.HandleFunc("GET /v1/accuracy/actions", s.handleListActions)

	mux.HandleFunc("POST /v1/optimize", s.handleOptimize)

	var handler http.Handler = mux
	handler = s.apiKeyMiddleware(handler)
	if s.cfg.RateLimit > 0 {
		rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(s.cfg.RateLimit),
			Burst:             s.cfg.RateLimit * 2,
			CleanupInterval:   time.Minute,
		})
		handler = rl.Middleware(handler)
	}
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}
