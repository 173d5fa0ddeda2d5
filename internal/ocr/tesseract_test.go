package ocr

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawText draws text on an image using basicfont
func drawText(img *image.RGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// renderLines renders lines of black text on white, scaled up by an integer
// factor so Tesseract has enough pixels per glyph.
func renderLines(lines []string, scale int) *image.RGBA {
	maxLen := 0
	for _, line := range lines {
		if len(line) > maxLen {
			maxLen = len(line)
		}
	}

	// basicfont.Face7x13 is 7 pixels wide, 13 pixels tall per character
	w := maxLen*7 + 40
	h := len(lines)*16 + 30

	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	for i, line := range lines {
		drawText(small, 20, 20+i*16, line, color.Black)
	}

	img := image.NewRGBA(image.Rect(0, 0, w*scale, h*scale))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := small.At(x, y)
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.Set(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}
	return img
}

// newEnglishEngine returns a Tesseract engine or skips when the runtime or
// the English language data is not installed.
func newEnglishEngine(t *testing.T) *TesseractEngine {
	t.Helper()
	e, err := NewTesseractEngine(TesseractConfig{Language: "en"})
	if err != nil {
		t.Skipf("Tesseract not available: %v", err)
	}
	return e
}

func TestTesseractLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"japan", "jpn"},
		{"ch", "chi_sim"},
		{"chinese_cht", "chi_tra"},
		{"en", "eng"},
		{"korean", "kor"},
		{"", "eng"},
		{"deu", "deu"},
	}

	for _, tt := range tests {
		if got := TesseractLanguage(tt.in); got != tt.want {
			t.Errorf("TesseractLanguage(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewTesseractEngine_MissingLanguage(t *testing.T) {
	_, err := NewTesseractEngine(TesseractConfig{Language: "invalid_language_code_xyz"})
	if err == nil {
		t.Error("expected an error for a language with no traineddata")
	}
}

func TestTesseractEngine_Identity(t *testing.T) {
	e := newEnglishEngine(t)
	defer e.Close()

	if e.Name() != BackendTesseract {
		t.Errorf("Name: got %q", e.Name())
	}
	if e.Language() != "en" {
		t.Errorf("Language: got %q", e.Language())
	}
	if e.Version() == "" {
		t.Error("Version should not be empty")
	}
}

func TestTesseractEngine_PredictShape(t *testing.T) {
	e := newEnglishEngine(t)
	defer e.Close()

	img := renderLines([]string{"HELLO WORLD"}, 4)
	raw, err := e.Predict(context.Background(), img, DefaultParams())
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	pages, ok := raw.([]any)
	if !ok || len(pages) != 1 {
		t.Fatalf("expected one page, got %#v", raw)
	}
	page, ok := pages[0].(map[string]any)
	if !ok {
		t.Fatalf("expected dict page, got %T", pages[0])
	}
	for _, key := range []string{"rec_texts", "rec_scores", "rec_boxes"} {
		if _, ok := page[key]; !ok {
			t.Errorf("page missing %s", key)
		}
	}
	if len(asList(page["rec_texts"])) != len(asList(page["rec_scores"])) {
		t.Error("rec_texts and rec_scores must be parallel")
	}

	resp := BuildResponse(raw, NormalizeOptions{SortByPosition: true}, quietLogger())
	t.Logf("Extracted text: %q (blocks %d, confidence %.2f)", resp.Text, resp.Blocks, resp.Confidence)
	if resp.Blocks > 0 && !strings.Contains(strings.ToUpper(resp.Text), "HELLO") {
		t.Logf("Warning: expected HELLO in %q", resp.Text)
	}
}

func TestTesseractEngine_MultiLineOrder(t *testing.T) {
	e := newEnglishEngine(t)
	defer e.Close()

	img := renderLines([]string{"LINE ONE", "LINE TWO", "LINE THREE"}, 3)
	raw, err := e.Predict(context.Background(), img, Params{})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	segments, err := Normalize(raw, NormalizeOptions{SortByPosition: true})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i := 1; i < len(segments); i++ {
		if positionOf(segments[i]) < positionOf(segments[i-1]) {
			t.Errorf("segments out of order at %d: %v < %v", i, positionOf(segments[i]), positionOf(segments[i-1]))
		}
	}
}

func TestTesseractEngine_ThresholdDropsLines(t *testing.T) {
	e := newEnglishEngine(t)
	defer e.Close()

	img := renderLines([]string{"THRESHOLD"}, 4)

	low, err := e.Predict(context.Background(), img, Params{TextRecScoreThresh: 0})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	high, err := e.Predict(context.Background(), img, Params{TextRecScoreThresh: 1.01})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	lowTexts := asList(low.([]any)[0].(map[string]any)["rec_texts"])
	highTexts := asList(high.([]any)[0].(map[string]any)["rec_texts"])
	if len(highTexts) != 0 {
		t.Errorf("threshold above 1 should drop every line, got %d", len(highTexts))
	}
	if len(highTexts) > len(lowTexts) {
		t.Errorf("higher threshold gave more lines: low=%d high=%d", len(lowTexts), len(highTexts))
	}
}

func TestTesseractEngine_CanceledContext(t *testing.T) {
	e := newEnglishEngine(t)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Predict(ctx, renderLines([]string{"X"}, 1), Params{}); err == nil {
		t.Error("expected an error for a canceled context")
	}
}
