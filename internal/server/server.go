// Package server is the inbound HTTP boundary of the proxy.
//
// Every API route shares one handler shape: CORS headers, OPTIONS preflight,
// POST only, API key check, bounded body read, then a route-specific step
// that produces either a result or an error. All errors are converted to the
// JSON envelope in one place.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jzx17/genproxy/internal/config"
	"github.com/jzx17/genproxy/internal/metrics"
	"github.com/jzx17/genproxy/pkg/gemini"
	"github.com/jzx17/genproxy/pkg/prompt"
)

// Route paths
const (
	RouteChat     = "/api/chat"
	RouteGenerate = "/api/generate"
	RouteProxy    = "/api/proxy"
	RouteHealth   = "/healthz"
	RouteMetrics  = "/metrics"
)

// maxBodySize limits inbound request bodies
const maxBodySize = 1 << 20 // 1 MB

// Generator is the upstream the server forwards to. *gemini.Client satisfies it.
type Generator interface {
	HasAPIKey() bool
	Generate(ctx context.Context, req gemini.GenerateRequest) (string, error)
	Forward(ctx context.Context, payload []byte) ([]byte, error)
}

// Server serves the proxy API
type Server struct {
	cfg            config.ServerConfig
	client         Generator
	catalog        *prompt.Catalog
	metrics        *metrics.Collector
	logger         *slog.Logger
	requestTimeout time.Duration
	routes         map[string]bool
}

// Option configures a Server
type Option func(*Server)

// WithMetrics records request metrics and serves them at /metrics
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = collector
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRequestTimeout bounds the upstream work of one API request, retries included
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// New creates a server. A nil catalog means the built-in modes.
func New(cfg config.ServerConfig, client Generator, catalog *prompt.Catalog, opts ...Option) (*Server, error) {
	if client == nil {
		return nil, errors.New("server: generator is required")
	}
	if catalog == nil {
		var err error
		if catalog, err = prompt.DefaultCatalog(); err != nil {
			return nil, err
		}
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}

	s := &Server{
		cfg:     cfg,
		client:  client,
		catalog: catalog,
		routes: map[string]bool{
			RouteChat:     true,
			RouteGenerate: true,
			RouteProxy:    true,
			RouteHealth:   true,
			RouteMetrics:  true,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// Handler returns the full HTTP handler, middleware included
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(RouteChat, s.api(s.handleChat))
	mux.HandleFunc(RouteGenerate, s.api(s.handleGenerate))
	mux.HandleFunc(RouteProxy, s.api(s.handleProxy))
	mux.HandleFunc("GET "+RouteHealth, s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET "+RouteMetrics, s.metrics.Handler())
	}

	return s.requestID(s.cors(s.observe(s.recoverer(mux))))
}

// Run listens on the configured address and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("Server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
