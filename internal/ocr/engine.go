package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"
)

// Backend names accepted in engine profiles.
const (
	BackendPaddle    = "paddle"
	BackendTesseract = "tesseract"
)

var (
	// ErrEngineUnavailable is returned when an engine failed to initialize.
	ErrEngineUnavailable = errors.New("OCR service not initialized")

	// ErrUnrecognizedResult is returned by the normalizer when a result does
	// not match either known output shape.
	ErrUnrecognizedResult = errors.New("unrecognized OCR result")
)

// Engine is an initialized OCR inference capability.
//
// Predict returns the model output as decoded JSON values: nil, or a list of
// pages where each page is either a map with parallel rec_texts/rec_scores/
// rec_boxes arrays or a legacy nested list of [box, [text, score]] detections.
// Normalize turns that into segments.
//
// Implementations must allow concurrent Predict calls.
type Engine interface {
	// Name returns the backend identifier (e.g., "paddle").
	Name() string

	// Language returns the model language the engine was created for.
	Language() string

	// Predict runs detection and recognition on img.
	Predict(ctx context.Context, img image.Image, params Params) (any, error)

	// Close releases engine resources.
	Close() error
}

// Params are the detection and recognition tuning knobs passed to every
// inference call.
type Params struct {
	UseTextlineOrientation    bool
	UseDocOrientationClassify bool
	UseDocUnwarping           bool

	// TextDetThresh is the pixel threshold of the detection probability map.
	TextDetThresh float64
	// TextDetBoxThresh is the average score a detected box needs to be kept.
	TextDetBoxThresh float64
	// TextRecScoreThresh drops recognized lines scoring below it.
	TextRecScoreThresh float64
	// TextDetLimitSideLen caps the side selected by TextDetLimitType.
	TextDetLimitSideLen int
	// TextDetLimitType is "max" or "min".
	TextDetLimitType string
	// TextDetUnclipRatio expands detected text regions.
	TextDetUnclipRatio float64
}

// DefaultParams returns recall-oriented settings for dense, small-font
// images: lower detection and recognition thresholds than the model
// defaults, a large maximum side length and a wider unclip ratio.
func DefaultParams() Params {
	return Params{
		UseTextlineOrientation:    true,
		UseDocOrientationClassify: true,
		UseDocUnwarping:           false,
		TextDetThresh:             0.3,
		TextDetBoxThresh:          0.5,
		TextRecScoreThresh:        0.3,
		TextDetLimitSideLen:       10000,
		TextDetLimitType:          "max",
		TextDetUnclipRatio:        1.8,
	}
}

// Profile selects and configures one engine.
type Profile struct {
	// Backend is BackendPaddle or BackendTesseract.
	Backend string
	// URL is the base URL of the Paddle serving process.
	URL string
	// Language is the model language ("japan", "ch", "en", ...).
	Language string
	// Timeout bounds a single inference call.
	Timeout time.Duration
	// ReadyTimeout bounds the readiness probe during initialization.
	ReadyTimeout time.Duration
	// TessdataPrefix overrides the Tesseract data directory.
	TessdataPrefix string
	// SortByPosition orders recognized lines top to bottom before joining.
	SortByPosition bool
}

// Factory creates and initializes an engine for a profile.
type Factory func(ctx context.Context, profile Profile) (Engine, error)

// NewEngine is the default Factory. It dispatches on profile.Backend.
func NewEngine(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, profile Profile) (Engine, error) {
		switch profile.Backend {
		case BackendPaddle, "":
			return NewPaddleEngine(ctx, PaddleConfig{
				BaseURL:      profile.URL,
				Language:     profile.Language,
				Timeout:      profile.Timeout,
				ReadyTimeout: profile.ReadyTimeout,
				Logger:       logger,
			})
		case BackendTesseract:
			return NewTesseractEngine(TesseractConfig{
				Language:       profile.Language,
				TessdataPrefix: profile.TessdataPrefix,
			})
		default:
			return nil, fmt.Errorf("unknown OCR backend: %s", profile.Backend)
		}
	}
}
