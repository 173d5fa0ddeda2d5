package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInitRetryInterval is how long a failed alternate engine
// initialization is remembered before the next request tries again.
const DefaultInitRetryInterval = 30 * time.Second

// ServiceConfig configures the engine lifecycle.
type ServiceConfig struct {
	// Default is created eagerly by NewService.
	Default Profile
	// Alternate is created on first use.
	Alternate Profile
	// Params are passed to every Predict call.
	Params Params
	// Factory creates engines. Nil means NewEngine(Logger).
	Factory Factory
	// InitRetryInterval bounds how often a failed alternate engine is
	// retried. Zero means DefaultInitRetryInterval.
	InitRetryInterval time.Duration
	Logger            *slog.Logger
}

// Service owns the server's OCR engines.
//
// The default engine is created once at startup and shared by all requests.
// The alternate-language engine is created on first use and then reused. A
// failed alternate initialization is remembered for InitRetryInterval; the
// first request after that tries again, so a sidecar that was still starting
// is picked up without a restart.
type Service struct {
	logger  *slog.Logger
	factory Factory
	params  Params
	now     func() time.Time

	defaultProfile Profile
	defaultEngine  Engine
	defaultErr     error

	// altMu serializes alternate engine creation and guards the alt* fields.
	altMu         sync.Mutex
	altProfile    Profile
	altEngine     Engine
	altErr        error
	altFailedAt   time.Time
	retryInterval time.Duration

	mu     sync.Mutex
	closed bool
}

// NewService creates the default engine and returns the service.
//
// Parameters:
//   - ctx: Bounds default engine creation (for a Paddle backend, the
//     readiness probe). It is not retained.
//   - cfg: Engine profiles, inference parameters and the engine factory.
//
// Returns:
//   - *Service: Always non-nil. Call Close when done to release the engines.
//
// # Initialization Failures
//
// A default engine failure does not fail NewService: it is logged and
// surfaced later through Default and Ready so that the server can still start
// and answer health checks. The default engine is not retried; Ready stays
// false until the process restarts.
func NewService(ctx context.Context, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Factory == nil {
		cfg.Factory = NewEngine(cfg.Logger)
	}
	if cfg.InitRetryInterval <= 0 {
		cfg.InitRetryInterval = DefaultInitRetryInterval
	}

	s := &Service{
		logger:         cfg.Logger,
		factory:        cfg.Factory,
		params:         cfg.Params,
		now:            time.Now,
		defaultProfile: cfg.Default,
		altProfile:     cfg.Alternate,
		retryInterval:  cfg.InitRetryInterval,
	}

	s.logger.Info("Initializing OCR engine", "backend", cfg.Default.Backend, "lang", cfg.Default.Language)
	s.defaultEngine, s.defaultErr = s.factory(ctx, cfg.Default)
	if s.defaultErr != nil {
		s.logger.Error("Failed to initialize OCR engine", "lang", cfg.Default.Language, "error", s.defaultErr)
	} else {
		s.logger.Info("OCR engine initialized successfully", "lang", cfg.Default.Language)
	}

	return s
}

// Ready reports whether the default engine initialized.
func (s *Service) Ready() bool {
	return s.defaultEngine != nil
}

// Params returns the inference parameters used for every call.
func (s *Service) Params() Params {
	return s.params
}

// Default returns the default-language engine and its normalize options.
func (s *Service) Default() (Engine, NormalizeOptions, error) {
	opts := NormalizeOptions{SortByPosition: s.defaultProfile.SortByPosition}
	if s.defaultEngine == nil {
		return nil, opts, unavailable(s.defaultErr)
	}
	return s.defaultEngine, opts, nil
}

// Alternate returns the alternate-language engine, creating it on first use.
//
// Concurrent first calls wait for a single creation. Initialization runs
// detached from ctx's cancellation so that one abandoned request cannot fail
// the engine for every later one. After a failure, calls within
// InitRetryInterval return the remembered error without calling the factory.
func (s *Service) Alternate(ctx context.Context) (Engine, NormalizeOptions, error) {
	opts := NormalizeOptions{SortByPosition: s.altProfile.SortByPosition}

	s.altMu.Lock()
	defer s.altMu.Unlock()

	if s.isClosed() {
		return nil, opts, unavailable(errors.New("service closed"))
	}
	if s.altEngine != nil {
		return s.altEngine, opts, nil
	}
	if s.altErr != nil {
		if wait := s.retryInterval - s.now().Sub(s.altFailedAt); wait > 0 {
			s.logger.Warn("alternate OCR engine unavailable",
				"lang", s.altProfile.Language,
				"retry_in", wait.Round(time.Second),
				"error", s.altErr,
			)
			return nil, opts, unavailable(s.altErr)
		}
		s.logger.Info("Retrying alternate OCR engine initialization", "lang", s.altProfile.Language)
	}

	s.logger.Info("Initializing alternate OCR engine", "backend", s.altProfile.Backend, "lang", s.altProfile.Language)
	engine, err := s.factory(context.WithoutCancel(ctx), s.altProfile)
	if err != nil {
		s.altErr = err
		s.altFailedAt = s.now()
		s.logger.Error("Failed to initialize alternate OCR engine",
			"lang", s.altProfile.Language,
			"retry_in", s.retryInterval,
			"error", err,
		)
		return nil, opts, unavailable(err)
	}
	s.altEngine, s.altErr = engine, nil
	s.logger.Info("Alternate OCR engine initialized successfully", "lang", s.altProfile.Language)
	return engine, opts, nil
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears down every engine that was created.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Wait for an alternate init that is already running.
	s.altMu.Lock()
	alt := s.altEngine
	s.altMu.Unlock()

	var errs []error
	if s.defaultEngine != nil {
		if err := s.defaultEngine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close default engine: %w", err))
		}
	}
	if alt != nil {
		if err := alt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close alternate engine: %w", err))
		}
	}
	return errors.Join(errs...)
}

func unavailable(cause error) error {
	if cause == nil {
		return ErrEngineUnavailable
	}
	return fmt.Errorf("%w: %v", ErrEngineUnavailable, cause)
}
