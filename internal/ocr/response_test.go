package ocr

import (
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func segs(texts ...string) []Segment {
	out := make([]Segment, len(texts))
	for i, t := range texts {
		out[i] = Segment{Text: t, Score: 1}
	}
	return out
}

func TestJoin(t *testing.T) {
	tests := []struct {
		name string
		in   []Segment
		want string
	}{
		{"dense script concatenates", segs("ABC", "DEF"), "ABCDEF"},
		{"any space switches to spaced join", segs("A B", "C"), "A B C"},
		{"cjk", segs("こんにちは", "世界"), "こんにちは世界"},
		{"single", segs("one"), "one"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Join(tt.in); got != tt.want {
				t.Errorf("Join: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	t.Run("mean confidence", func(t *testing.T) {
		resp := Summarize([]Segment{{Text: "a", Score: 0.9}, {Text: "b", Score: 0.7}})
		if math.Abs(resp.Confidence-0.8) > 1e-9 {
			t.Errorf("Confidence: got %v, want 0.8", resp.Confidence)
		}
		if resp.Blocks != 2 {
			t.Errorf("Blocks: got %d, want 2", resp.Blocks)
		}
		if resp.Text != "ab" {
			t.Errorf("Text: got %q, want ab", resp.Text)
		}
	})

	t.Run("no segments", func(t *testing.T) {
		resp := Summarize(nil)
		if resp.Text != "" || resp.Confidence != 0 || resp.Blocks != 0 {
			t.Errorf("expected zero response, got %+v", resp)
		}
	})
}

func TestBuildResponse(t *testing.T) {
	logger := quietLogger()

	tests := []struct {
		name        string
		raw         any
		opts        NormalizeOptions
		wantText    string
		wantBlocks  int
		wantMessage string
	}{
		{
			name:        "nil result",
			raw:         nil,
			wantMessage: "No text detected - result is None",
		},
		{
			name:        "empty list",
			raw:         []any{},
			wantMessage: "No text detected - invalid result format: list",
		},
		{
			name:        "dict instead of list",
			raw:         map[string]any{"rec_texts": []any{"x"}},
			wantMessage: "No text detected - invalid result format: dict",
		},
		{
			name:       "malformed pages degrade to empty",
			raw:        []any{map[string]any{"rec_texts": []any{"x"}, "rec_scores": []any{[]any{}}}},
			wantBlocks: 0,
		},
		{
			name:       "dict result",
			raw:        []any{map[string]any{"rec_texts": []any{"ABC", "DEF"}, "rec_scores": []any{0.5, 0.5}}},
			wantText:   "ABCDEF",
			wantBlocks: 2,
		},
		{
			name: "reordered by position",
			raw: []any{map[string]any{
				"rec_texts":  []any{"second", "first"},
				"rec_scores": []any{1.0, 1.0},
				"rec_boxes":  []any{[]any{0.0, 50.0, 1.0, 51.0}, []any{0.0, 10.0, 1.0, 11.0}},
			}},
			opts:       NormalizeOptions{SortByPosition: true},
			wantText:   "firstsecond",
			wantBlocks: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := BuildResponse(tt.raw, tt.opts, logger)
			if resp.Text != tt.wantText {
				t.Errorf("Text: got %q, want %q", resp.Text, tt.wantText)
			}
			if resp.Blocks != tt.wantBlocks {
				t.Errorf("Blocks: got %d, want %d", resp.Blocks, tt.wantBlocks)
			}
			if resp.Message != tt.wantMessage {
				t.Errorf("Message: got %q, want %q", resp.Message, tt.wantMessage)
			}
			if resp.Blocks == 0 && (resp.Confidence != 0 || resp.Text != "") {
				t.Errorf("empty result must have zero confidence and text, got %+v", resp)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	if got := preview(""); got != "empty" {
		t.Errorf("preview(empty): got %q", got)
	}
	long := strings.Repeat("字", 200)
	if got := []rune(preview(long)); len(got) != previewRunes {
		t.Errorf("preview length: got %d runes, want %d", len(got), previewRunes)
	}
}
