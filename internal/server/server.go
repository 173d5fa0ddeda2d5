package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ironsheep/ocr-server/internal/api"
	"github.com/ironsheep/ocr-server/internal/imaging"
	"github.com/ironsheep/ocr-server/internal/ocr"
	"github.com/ironsheep/ocr-server/internal/server/endpoints"
	"github.com/ironsheep/ocr-server/internal/svcctx"
)

// Server is the OCR HTTP server.
// It owns the OCR service and closes its engines on shutdown.
type Server struct {
	httpServer *http.Server
	service    *ocr.Service
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	shutdownTimeout time.Duration

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8000, 0 picks a free port)
	Port int
	// Service provides the OCR engines. Required.
	Service *ocr.Service
	// Preprocessor is applied to every decoded upload.
	Preprocessor imaging.Preprocessor
	// MaxUploadBytes limits request bodies (default: 32 MiB)
	MaxUploadBytes int64
	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("server: OCR service is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		service:         cfg.Service,
		logger:          cfg.Logger,
		shutdownTimeout: cfg.ShutdownTimeout,
		services: &svcctx.Services{
			OCR:            cfg.Service,
			Preprocessor:   cfg.Preprocessor,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Logger:         cfg.Logger,
		},
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:      s.Handler(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // CPU inference on large images is slow
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler wraps a mux with the server's middleware chain. The outermost
// layer runs first: request ID, then access log, then panic recovery, then
// CORS, then service injection.
func (s *Server) Handler(mux http.Handler) http.Handler {
	var h http.Handler = mux
	h = s.withServices(h)
	h = cors(h)
	h = recoverPanics(h)
	h = accessLog(h)
	h = requestID(s.logger)(h)
	return h
}

// Start starts the HTTP server.
// It blocks until the context is cancelled or an error occurs, then shuts
// down gracefully and closes the OCR engines.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.running = true
	s.mu.Unlock()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown drains in-flight requests and then tears down the engines.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		errs = append(errs, err)
	}

	if err := s.service.Close(); err != nil {
		s.logger.Error("OCR engine close error", "error", err)
		errs = append(errs, err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address. Once started it is the bound
// address, which resolves port 0.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Endpoints returns the endpoint registry, for building CLI commands.
func (s *Server) Endpoints() *api.Registry {
	return s.endpointRegistry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := svcctx.WithServices(r.Context(), s.services)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the default OCR engine initialized.
// Returns 503 Service Unavailable otherwise.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.service.Ready() {
			svcctx.LoggerFrom(r.Context()).Error("OCR service not initialized - check server logs for initialization errors")
			endpoints.WriteError(w, http.StatusServiceUnavailable, endpoints.DetailNotInitialized)
			return
		}
		next(w, r)
	}
}
