package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tidwall/gjson"

	"github.com/ironsheep/ocr-server/internal/imaging"
)

const (
	// DefaultPaddleURL is where a local PaddleOCR serving process listens.
	DefaultPaddleURL = "http://127.0.0.1:8080"

	paddleHealthPath  = "/health"
	paddlePredictPath = "/ocr"
	paddleFileTypeImg = 1
)

// PaddleConfig holds configuration for the PaddleOCR serving client.
type PaddleConfig struct {
	BaseURL      string
	Language     string
	Timeout      time.Duration // Per inference call
	ReadyTimeout time.Duration // Readiness probe budget
	Logger       *slog.Logger
	HTTPClient   *http.Client
}

// PaddleEngine runs inference on a PaddleOCR serving process over HTTP.
//
// One serving process hosts one language pipeline, so each language gets its
// own PaddleEngine pointed at its own URL. The engine holds no per-request
// state and is safe for concurrent use.
type PaddleEngine struct {
	baseURL  string
	language string
	client   *http.Client
	logger   *slog.Logger
}

// paddleRequest is the body of a serving /ocr call.
type paddleRequest struct {
	File                      string  `json:"file"`
	FileType                  int     `json:"fileType"`
	UseDocOrientationClassify bool    `json:"useDocOrientationClassify"`
	UseDocUnwarping           bool    `json:"useDocUnwarping"`
	UseTextlineOrientation    bool    `json:"useTextlineOrientation"`
	TextDetLimitSideLen       int     `json:"textDetLimitSideLen"`
	TextDetLimitType          string  `json:"textDetLimitType"`
	TextDetThresh             float64 `json:"textDetThresh"`
	TextDetBoxThresh          float64 `json:"textDetBoxThresh"`
	TextDetUnclipRatio        float64 `json:"textDetUnclipRatio"`
	TextRecScoreThresh        float64 `json:"textRecScoreThresh"`
	Visualize                 bool    `json:"visualize"`
}

// NewPaddleEngine creates a client for a PaddleOCR serving process and waits
// for it to report healthy.
//
// Parameters:
//   - ctx: Bounds the readiness probe together with cfg.ReadyTimeout.
//   - cfg: Serving URL, language and timeouts. Zero values take defaults:
//     DefaultPaddleURL, 120s per inference call and 30s for readiness.
//
// Returns:
//   - *PaddleEngine: A ready engine, safe for concurrent use.
//   - error: Non-nil if the serving process did not answer its health check
//     within the readiness budget.
//
// # Readiness Probe
//
// The health endpoint is polled once per second with retry-go until it
// answers 200 or the budget runs out. A serving process that is still loading
// models therefore does not fail startup as long as it comes up in time.
func NewPaddleEngine(ctx context.Context, cfg PaddleConfig) (*PaddleEngine, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPaddleURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	e := &PaddleEngine{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		language: cfg.Language,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger.With("engine", BackendPaddle, "lang", cfg.Language),
	}

	if err := e.waitForReady(ctx, cfg.ReadyTimeout); err != nil {
		return nil, fmt.Errorf("paddle serving at %s not ready: %w", e.baseURL, err)
	}
	e.logger.Info("PaddleOCR engine ready", "url", e.baseURL)
	return e, nil
}

// Name returns the backend identifier.
func (e *PaddleEngine) Name() string { return BackendPaddle }

// Language returns the model language.
func (e *PaddleEngine) Language() string { return e.language }

// Close releases idle connections.
func (e *PaddleEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// waitForReady polls the serving health endpoint until it answers 200.
func (e *PaddleEngine) waitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := uint(timeout.Seconds())
	if attempts == 0 {
		attempts = 1
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+paddleHealthPath, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := e.client.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(1*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// Predict sends img to the serving process and returns the pages of the
// model output.
//
// Current serving versions answer with result.ocrResults[].prunedResult maps,
// which are returned as a list of dict pages. Older deployments put the raw
// nested-list output under result or results; that value is passed through
// untouched for the normalizer to interpret.
func (e *PaddleEngine) Predict(ctx context.Context, img image.Image, params Params) (any, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(paddleRequest{
		File:                      base64.StdEncoding.EncodeToString(data),
		FileType:                  paddleFileTypeImg,
		UseDocOrientationClassify: params.UseDocOrientationClassify,
		UseDocUnwarping:           params.UseDocUnwarping,
		UseTextlineOrientation:    params.UseTextlineOrientation,
		TextDetLimitSideLen:       params.TextDetLimitSideLen,
		TextDetLimitType:          params.TextDetLimitType,
		TextDetThresh:             params.TextDetThresh,
		TextDetBoxThresh:          params.TextDetBoxThresh,
		TextDetUnclipRatio:        params.TextDetUnclipRatio,
		TextRecScoreThresh:        params.TextRecScoreThresh,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+paddlePredictPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	e.logger.Debug("inference call finished",
		"status", resp.StatusCode,
		"bytes", len(respBody),
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference error (status %d): %s", resp.StatusCode, errorMessage(respBody))
	}

	return parsePaddleResponse(respBody)
}

// parsePaddleResponse extracts the page list from a serving response body.
func parsePaddleResponse(body []byte) (any, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("inference returned invalid JSON")
	}

	if code := gjson.GetBytes(body, "errorCode"); code.Exists() && code.Int() != 0 {
		return nil, fmt.Errorf("inference error %d: %s", code.Int(), gjson.GetBytes(body, "errorMsg").String())
	}

	if pages := gjson.GetBytes(body, "result.ocrResults.#.prunedResult"); pages.Exists() && pages.IsArray() {
		return pages.Value(), nil
	}

	for _, path := range []string{"result", "results"} {
		if r := gjson.GetBytes(body, path); r.Exists() {
			return r.Value(), nil
		}
	}

	return nil, nil
}

// errorMessage pulls a readable message out of an error response body.
func errorMessage(body []byte) string {
	for _, path := range []string{"errorMsg", "detail", "error"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
