package ocr

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// missingScore is used when a dict page has fewer scores than texts.
	missingScore = 0.5
	// fallbackTextScore is used for the single-text dict page fallback.
	fallbackTextScore = 0.9
)

// Segment is one recognized text span.
type Segment struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	// Position is the top vertical coordinate of the text box, if known.
	Position *float64 `json:"position,omitempty"`
}

// NormalizeOptions controls segment extraction.
type NormalizeOptions struct {
	// SortByPosition orders each page's segments by Position, top to bottom.
	// Segments without a position sort as if at 0.
	SortByPosition bool
}

// Normalize converts a model result into segments.
//
// Parameters:
//   - raw: The decoded engine result. It must be a list of pages.
//   - opts: Whether each page is ordered top to bottom by box position.
//
// Returns:
//   - []Segment: Recognized text spans in page order. Empty texts are skipped
//     and no confidence filtering is applied.
//   - error: Wraps ErrUnrecognizedResult when raw is not a list or a value
//     inside a page is malformed. No segments are returned with it.
//
// # Page Shapes
//
// Dict pages carry parallel arrays:
//
//	{"rec_texts": ["a", "b"], "rec_scores": [0.9, 0.8], "rec_boxes": [...]}
//
// A missing score counts as 0.5. While nothing has been collected, a dict page
// without usable rec_texts may carry a single "text" (and optional
// "confidence", default 0.9) instead.
//
// Legacy pages are lists of detections:
//
//	[[box, ["a", 0.9]], [box, ["b", 0.8]]]
//
// Detections grouped one level deeper by line are also read. A pair whose
// first element is not a string is never treated as text. Pages of any other
// type are ignored.
func Normalize(raw any, opts NormalizeOptions) (segments []Segment, err error) {
	defer func() {
		if r := recover(); r != nil {
			segments = nil
			err = fmt.Errorf("%w: %v", ErrUnrecognizedResult, r)
		}
	}()

	pages, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected list of pages, got %s", ErrUnrecognizedResult, shapeName(raw))
	}

	for _, page := range pages {
		var pageSegments []Segment
		switch p := page.(type) {
		case map[string]any:
			pageSegments, err = dictPageSegments(p, opts, len(segments) == 0)
		case []any:
			pageSegments, err = legacyPageSegments(p, opts)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedResult, err)
		}
		segments = append(segments, pageSegments...)
	}

	return segments, nil
}

// dictPageSegments reads the parallel arrays of a dict page.
// allowFallback enables the single "text" key form used by older results;
// it only applies while nothing has been collected yet.
func dictPageSegments(page map[string]any, opts NormalizeOptions, allowFallback bool) ([]Segment, error) {
	texts := asList(page["rec_texts"])
	scores := asList(page["rec_scores"])
	var boxes []any
	if opts.SortByPosition {
		boxes = asList(page["rec_boxes"])
	}

	segments := make([]Segment, 0, len(texts))
	for i, t := range texts {
		text := strings.TrimSpace(textValue(t))
		if text == "" {
			continue
		}

		score := missingScore
		if i < len(scores) {
			s, err := numberValue(scores[i])
			if err != nil {
				return nil, fmt.Errorf("rec_scores[%d]: %w", i, err)
			}
			score = s
		}

		seg := Segment{Text: text, Score: score}
		if i < len(boxes) {
			seg.Position = boxTop(boxes[i])
		}
		segments = append(segments, seg)
	}

	if opts.SortByPosition {
		sort.SliceStable(segments, func(a, b int) bool {
			return positionOf(segments[a]) < positionOf(segments[b])
		})
	}

	if len(segments) == 0 && allowFallback {
		if t, ok := page["text"]; ok {
			text := strings.TrimSpace(textValue(t))
			if text != "" {
				score := fallbackTextScore
				if c, ok := page["confidence"]; ok {
					s, err := numberValue(c)
					if err != nil {
						return nil, fmt.Errorf("confidence: %w", err)
					}
					score = s
				}
				segments = append(segments, Segment{Text: text, Score: score})
			}
		}
	}

	return segments, nil
}

// legacyPageSegments reads a page of [box, [text, confidence]] detections.
// Pages that group detections one level deeper (a list of lines, each a list
// of detections) are also accepted. A pair whose head is not a string is
// never taken as text.
func legacyPageSegments(page []any, opts NormalizeOptions) ([]Segment, error) {
	var segments []Segment
	add := func(det []any) error {
		pair := det[1].([]any)
		text := strings.TrimSpace(pair[0].(string))
		if text == "" {
			return nil
		}
		score, err := numberValue(pair[1])
		if err != nil {
			return fmt.Errorf("confidence for %q: %w", text, err)
		}
		seg := Segment{Text: text, Score: score}
		if opts.SortByPosition {
			seg.Position = boxTop(det[0])
		}
		segments = append(segments, seg)
		return nil
	}

	for _, entry := range page {
		if det, ok := legacyDetection(entry); ok {
			if err := add(det); err != nil {
				return nil, err
			}
			continue
		}
		line, ok := entry.([]any)
		if !ok {
			continue
		}
		for _, d := range line {
			if det, ok := legacyDetection(d); ok {
				if err := add(det); err != nil {
					return nil, err
				}
			}
		}
	}

	if opts.SortByPosition {
		sort.SliceStable(segments, func(a, b int) bool {
			return positionOf(segments[a]) < positionOf(segments[b])
		})
	}
	return segments, nil
}

// legacyDetection reports whether v has the [box, [text, confidence]] form
// with a string text.
func legacyDetection(v any) ([]any, bool) {
	det, ok := v.([]any)
	if !ok || len(det) < 2 {
		return nil, false
	}
	pair, ok := det[1].([]any)
	if !ok || len(pair) < 2 {
		return nil, false
	}
	if _, ok := pair[0].(string); !ok {
		return nil, false
	}
	return det, true
}

// boxTop returns the top-left vertical coordinate of a text box.
// Nested point lists ([[x1,y1],[x2,y2],...]) and flat coordinate lists
// ([x1,y1,x2,y2]) are both accepted. Anything else yields nil.
func boxTop(box any) *float64 {
	coords := asList(box)
	if len(coords) == 0 {
		return nil
	}

	if first := asList(coords[0]); first != nil {
		if len(first) < 2 {
			return nil
		}
		if y, err := numberValue(first[1]); err == nil {
			return &y
		}
		return nil
	}

	if len(coords) < 2 {
		return nil
	}
	if y, err := numberValue(coords[1]); err == nil {
		return &y
	}
	return nil
}

func positionOf(s Segment) float64 {
	if s.Position == nil {
		return 0
	}
	return *s.Position
}

// asList returns v as a slice if it is one. Typed slices produced by
// in-process engines are converted.
func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]any, len(l))
		for i, f := range l {
			out[i] = f
		}
		return out
	case [][]float64:
		out := make([]any, len(l))
		for i, f := range l {
			out[i] = asList(f)
		}
		return out
	default:
		return nil
	}
}

// textValue renders a recognized text value as a string. nil and false
// render as empty.
func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
		return "True"
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// numberValue converts a score value to float64.
func numberValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("score %q is not a number", n)
		}
		return f, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("score of type %s is not a number", shapeName(v))
	}
}

// shapeName describes the JSON shape of a value for logs and messages.
func shapeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	case string:
		return "string"
	case float64, float32, int, int64, json.Number:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}
