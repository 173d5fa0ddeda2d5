package ocr

import (
	"context"
	"fmt"
	"image"
	"slices"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/ocr-server/internal/imaging"
)

// tesseractLanguages maps PaddleOCR language names onto Tesseract codes.
var tesseractLanguages = map[string]string{
	"japan":       "jpn",
	"ch":          "chi_sim",
	"chinese_cht": "chi_tra",
	"en":          "eng",
	"korean":      "kor",
}

// TesseractLanguage returns the Tesseract language code for a model language.
// Unknown names are assumed to already be Tesseract codes.
func TesseractLanguage(language string) string {
	if code, ok := tesseractLanguages[language]; ok {
		return code
	}
	if language == "" {
		return "eng"
	}
	return language
}

// TesseractConfig configures the in-process Tesseract engine.
type TesseractConfig struct {
	// Language is a model language or Tesseract code.
	Language string
	// TessdataPrefix is the directory holding *.traineddata files.
	// Empty means Tesseract's compiled-in default.
	TessdataPrefix string
}

// TesseractEngine runs OCR in-process through gosseract.
//
// A gosseract client is not safe for concurrent use, so Predict creates a
// client per call. Initialization only verifies that language data exists.
type TesseractEngine struct {
	language       string
	code           string
	tessdataPrefix string
	version        string
}

// NewTesseractEngine checks that Tesseract and the language data are usable.
//
// Returns an error if the traineddata file for the language is not installed.
// Language data is discovered through gosseract.GetAvailableLanguages, which
// reads the default tessdata directory; with a TessdataPrefix set the check is
// left to the first recognition call.
func NewTesseractEngine(cfg TesseractConfig) (*TesseractEngine, error) {
	code := TesseractLanguage(cfg.Language)

	if cfg.TessdataPrefix == "" {
		langs, err := gosseract.GetAvailableLanguages()
		if err != nil {
			return nil, fmt.Errorf("failed to list tesseract languages: %w", err)
		}
		if !slices.Contains(langs, code) {
			return nil, fmt.Errorf("tesseract language data %q not installed", code)
		}
	}

	client := gosseract.NewClient()
	version := client.Version()
	client.Close()

	return &TesseractEngine{
		language:       cfg.Language,
		code:           code,
		tessdataPrefix: cfg.TessdataPrefix,
		version:        version,
	}, nil
}

// Name returns the backend identifier.
func (e *TesseractEngine) Name() string { return BackendTesseract }

// Language returns the model language the engine was created for.
func (e *TesseractEngine) Language() string { return e.language }

// Version returns the linked Tesseract version.
func (e *TesseractEngine) Version() string { return e.version }

// Close is a no-op; clients are released after every call.
func (e *TesseractEngine) Close() error { return nil }

// Predict recognizes text lines and returns a single dict page.
//
// The page mirrors the PaddleOCR output keys so both backends share one
// normalizer:
//
//	{"rec_texts": [...], "rec_scores": [...], "rec_boxes": [[x1, y1, x2, y2], ...]}
//
// Tesseract reports confidence as 0-100; it is scaled to 0-1. Lines scoring
// below params.TextRecScoreThresh are dropped, matching what the Paddle
// runtime does with the same parameter. The detection parameters have no
// Tesseract equivalent and are ignored.
func (e *TesseractEngine) Predict(ctx context.Context, img image.Image, params Params) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}

	if err := client.SetLanguage(e.code); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	texts := make([]any, 0, len(boxes))
	scores := make([]any, 0, len(boxes))
	recBoxes := make([]any, 0, len(boxes))
	for _, box := range boxes {
		score := box.Confidence / 100.0
		if score < params.TextRecScoreThresh {
			continue
		}
		texts = append(texts, box.Word)
		scores = append(scores, score)
		recBoxes = append(recBoxes, []any{
			float64(box.Box.Min.X),
			float64(box.Box.Min.Y),
			float64(box.Box.Max.X),
			float64(box.Box.Max.Y),
		})
	}

	return []any{
		map[string]any{
			"rec_texts":  texts,
			"rec_scores": scores,
			"rec_boxes":  recBoxes,
		},
	}, nil
}
