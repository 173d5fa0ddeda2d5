// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/ironsheep/ocr-server/internal/imaging"
	"github.com/ironsheep/ocr-server/internal/ocr"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	OCR            *ocr.Service
	Preprocessor   imaging.Preprocessor
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type servicesKey struct{}

type loggerKey struct{}

type requestIDKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// OCRFrom extracts the OCR engine service from context.
func OCRFrom(ctx context.Context) *ocr.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.OCR
	}
	return nil
}

// WithLogger attaches a request-scoped logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the request-scoped logger, then the service logger,
// then slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// WithRequestID attaches the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request ID, or "" if none.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
