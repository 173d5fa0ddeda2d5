package ocr

import (
	"fmt"
	"log/slog"
	"strings"
)

// previewRunes bounds the text preview written to logs.
const previewRunes = 150

// Response is the simplified OCR payload returned to clients.
type Response struct {
	// Text is all segments joined (see Join).
	Text string `json:"text" yaml:"text"`
	// Confidence is the mean segment score, 0 when no segments were found.
	Confidence float64 `json:"confidence" yaml:"confidence"`
	// Blocks is the number of non-empty segments.
	Blocks int `json:"blocks" yaml:"blocks"`
	// Message explains an empty result when the engine returned nothing usable.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Join combines segment texts.
//
// If any segment contains a space the text is from a space-delimited script
// and segments are joined with single spaces. Otherwise they are concatenated
// directly, which is how dense CJK lines read.
func Join(segments []Segment) string {
	texts := make([]string, len(segments))
	spaced := false
	for i, s := range segments {
		texts[i] = s.Text
		if strings.Contains(s.Text, " ") {
			spaced = true
		}
	}
	if spaced {
		return strings.Join(texts, " ")
	}
	return strings.Join(texts, "")
}

// Summarize builds a Response from segments.
func Summarize(segments []Segment) Response {
	if len(segments) == 0 {
		return Response{}
	}

	var total float64
	for _, s := range segments {
		total += s.Score
	}

	return Response{
		Text:       Join(segments),
		Confidence: total / float64(len(segments)),
		Blocks:     len(segments),
	}
}

// BuildResponse normalizes a raw engine result and summarizes it.
//
// Parameters:
//   - raw: The engine result as returned by Engine.Predict.
//   - opts: Normalization options of the engine's profile.
//   - logger: Receives result diagnostics. Nil means slog.Default().
//
// Returns:
//   - Response: Never fails. Text, mean Confidence and Blocks on success.
//
// # Empty Results
//
// A nil result yields Message "No text detected - result is None". A result
// that is not a non-empty list yields "No text detected - invalid result
// format: <shape>". A result that cannot be parsed is logged at error level
// and yields an empty Response without a message.
func BuildResponse(raw any, opts NormalizeOptions, logger *slog.Logger) Response {
	if logger == nil {
		logger = slog.Default()
	}

	if raw == nil {
		logger.Warn("OCR result is None")
		return Response{Message: "No text detected - result is None"}
	}

	pages, ok := raw.([]any)
	if !ok || len(pages) == 0 {
		shape := shapeName(raw)
		logger.Warn("OCR result is empty or invalid format", "shape", shape)
		return Response{Message: fmt.Sprintf("No text detected - invalid result format: %s", shape)}
	}

	logger.Debug("OCR result received", "pages", len(pages), "first_page", shapeName(pages[0]))

	segments, err := Normalize(raw, opts)
	if err != nil {
		logger.Error("Error parsing OCR result", "error", err, "pages", len(pages))
		segments = nil
	}

	for i, s := range segments {
		logger.Debug("recognized segment", "index", i, "text", s.Text, "confidence", s.Score)
	}

	resp := Summarize(segments)
	logger.Info("OCR completed",
		"blocks", resp.Blocks,
		"length", len([]rune(resp.Text)),
		"preview", preview(resp.Text),
	)
	if resp.Blocks == 0 {
		logger.Warn("No text extracted from result", "pages", len(pages))
	}
	return resp
}

func preview(text string) string {
	if text == "" {
		return "empty"
	}
	r := []rune(text)
	if len(r) > previewRunes {
		return string(r[:previewRunes])
	}
	return text
}
