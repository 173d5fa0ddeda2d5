// Package server implements the HTTP front end of the OCR service.
//
// The server accepts image uploads, runs them through an OCR engine owned by
// an ocr.Service, and answers with a simplified JSON payload. Routes are
// declared once as api.Endpoint values in the endpoints subpackage; the same
// values produce the "ocr-server api ..." CLI commands.
//
// # Routes
//
//   - GET /: status, reports whether the default engine initialized
//   - POST /ocr: recognize with the default-language engine
//   - POST /ocr-chinese: recognize with the alternate-language engine, which
//     is created on first use and orders lines top to bottom
//
// Uploads are multipart/form-data with the image in the "file" field.
//
// # Responses
//
// Success:
//
//	{"text": "...", "confidence": 0.93, "blocks": 4}
//
// When the engine returns nothing usable the same shape carries a message:
//
//	{"text": "", "confidence": 0, "blocks": 0, "message": "No text detected - result is None"}
//
// Errors use a single detail field:
//
//	{"detail": "Invalid image file"}
//
// # Status Codes
//
//   - 400: missing file field, malformed form, or bytes that do not decode
//   - 413: upload larger than the configured limit
//   - 500: the engine call failed, or a handler panicked
//   - 503: the engine for the route failed to initialize
//
// A result that cannot be parsed is not an error: it is logged and answered
// with an empty result.
//
// # Middleware
//
// Every request passes through, outermost first:
//   - request ID: X-Request-ID is echoed or generated, and a logger carrying
//     it is placed in the request context
//   - access log: one line per request with status and duration
//   - panic recovery
//   - CORS: any origin, credentials allowed, preflight answered directly
//
// # Lifecycle
//
//	srv, err := server.New(server.Config{Service: svc, Port: 8000})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // blocks until ctx is cancelled
//
// Start shuts down gracefully when ctx is cancelled and closes the OCR
// engines after in-flight requests finish.
package server
