// Package imaging turns uploaded image bytes into decoded images ready for OCR.
//
// The package covers the small amount of pixel handling the OCR server does
// itself: decoding uploads, describing them for logs, encoding them for
// transport to an inference engine, and an optional preprocessing stage.
// Detection and recognition are left to the engine.
//
// # Supported Formats
//
// Decode accepts every format registered with the standard image package:
//   - PNG, JPEG, GIF (standard library)
//   - BMP, TIFF, WebP (golang.org/x/image)
//
// Bytes that none of the registered decoders accept produce an error wrapping
// ErrInvalidImage. Callers map that to a client error.
//
// # Coordinate System
//
// Coordinates follow the Go image convention: (0,0) is the top-left corner,
// X increases rightward and Y increases downward. OCR engines report text
// positions in the same space, which is what allows top-to-bottom ordering of
// recognized lines.
//
// # Preprocessing
//
// Preprocessor is disabled by default. Recognition models generally do better
// on the original pixels, so the stage only exists for deployments that feed
// very small crops. When enabled it can:
//   - upscale images whose short side is below MinSide (Lanczos)
//   - adjust contrast
//   - sharpen
//
// # Thread Safety
//
// All functions are stateless. A Preprocessor value is read-only after
// construction and may be shared between goroutines.
package imaging
