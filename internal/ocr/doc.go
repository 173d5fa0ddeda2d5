// Package ocr wraps external OCR inference engines and normalizes their output.
//
// Detection and recognition are delegated entirely to an engine. This package
// owns three things around that call:
//
//   - engine lifecycle (Service): one shared default-language engine created
//     at startup, and an alternate-language engine created on first use
//     and retried after an interval if that fails
//   - result normalization (Normalize): the model library has emitted two
//     incompatible output shapes across versions; both become []Segment
//   - response building (BuildResponse): optional top-to-bottom ordering,
//     script-aware joining, and mean confidence
//
// # Backends
//
//   - "paddle": a PaddleOCR serving process reached over HTTP. One process
//     per language. Readiness is probed with retries at initialization.
//   - "tesseract": Tesseract in-process via gosseract. Requires the language's
//     traineddata to be installed (apt-get install tesseract-ocr-jpn, ...).
//
// Both backends return the same dict page shape, so normalization does not
// depend on the backend.
//
// # Result Shapes
//
// Dict pages (current model versions):
//
//	[{"rec_texts": ["...", ...], "rec_scores": [0.98, ...], "rec_boxes": [[x1, y1, x2, y2], ...]}]
//
// Legacy nested detections:
//
//	[[[[[x1, y1], [x2, y2], [x3, y3], [x4, y4]], ["...", 0.98]], ...]]
//
// # Error Handling
//
//   - ErrEngineUnavailable: the engine failed to initialize; callers answer 503
//   - ErrUnrecognizedResult: the result could not be parsed; BuildResponse
//     logs it and returns an empty Response instead of failing
//
// Errors from Predict itself are returned wrapped and are the caller's to map.
package ocr
