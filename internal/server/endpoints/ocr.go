package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironsheep/ocr-server/internal/api"
	"github.com/ironsheep/ocr-server/internal/imaging"
	"github.com/ironsheep/ocr-server/internal/ocr"
	"github.com/ironsheep/ocr-server/internal/svcctx"
)

// DetailNotInitialized is returned with 503 when an engine is unavailable.
const DetailNotInitialized = "OCR service not initialized. Please check server logs and ensure PaddleOCR models are downloaded."

// multipartMemory is how much of a multipart form is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// OCREndpoint handles POST /ocr and POST /ocr-chinese.
//
// Both routes share one flow and differ only in the engine they use: the
// default-language engine for /ocr, the lazily created alternate-language
// engine for /ocr-chinese.
type OCREndpoint struct {
	// Alternate selects the alternate-language engine.
	Alternate bool
}

var _ api.Endpoint = (*OCREndpoint)(nil)

func (e *OCREndpoint) path() string {
	if e.Alternate {
		return "/ocr-chinese"
	}
	return "/ocr"
}

func (e *OCREndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", e.path(), e.handler
}

// RequiresInit is true for the default engine only; the alternate engine is
// created on first use.
func (e *OCREndpoint) RequiresInit() bool { return !e.Alternate }

func (e *OCREndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := svcctx.LoggerFrom(ctx)
	services := svcctx.ServicesFrom(ctx)
	if services == nil || services.OCR == nil {
		WriteError(w, http.StatusServiceUnavailable, DetailNotInitialized)
		return
	}

	var (
		engine ocr.Engine
		opts   ocr.NormalizeOptions
		err    error
	)
	if e.Alternate {
		engine, opts, err = services.OCR.Alternate(ctx)
	} else {
		engine, opts, err = services.OCR.Default()
	}
	if err != nil {
		logger.Error("OCR service not initialized - check server logs for initialization errors", "error", err)
		WriteError(w, http.StatusServiceUnavailable, DetailNotInitialized)
		return
	}

	data, filename, status, err := readUpload(w, r, services.MaxUploadBytes)
	if err != nil {
		logger.Warn("rejected upload", "status", status, "error", err)
		WriteError(w, status, err.Error())
		return
	}

	decoded, err := imaging.Decode(data)
	if err != nil {
		logger.Warn("image decode failed", "filename", filename, "bytes", len(data), "error", err)
		WriteError(w, http.StatusBadRequest, "Invalid image file")
		return
	}

	info := decoded.Info()
	logger.Info("Processing OCR",
		"engine", engine.Name(),
		"lang", engine.Language(),
		"filename", filename,
		"width", info.Width,
		"height", info.Height,
		"format", info.Format,
		"bytes", info.SizeBytes,
		"preprocess", services.Preprocessor.Enabled,
	)

	img := services.Preprocessor.Apply(decoded.Image)

	start := time.Now()
	raw, err := engine.Predict(ctx, img, services.OCR.Params())
	if err != nil {
		logger.Error("OCR error", "lang", engine.Language(), "error", err)
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("OCR processing failed: %v", err))
		return
	}
	logger.Debug("inference finished", "duration", time.Since(start))

	writeJSON(w, http.StatusOK, ocr.BuildResponse(raw, opts, logger))
}

// readUpload extracts the uploaded file bytes. On failure it returns the HTTP
// status to answer with.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, string, int, error) {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", uploadStatus(err), uploadError(err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(api.FileField)
	if err != nil {
		return nil, "", uploadStatus(err), uploadError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, header.Filename, uploadStatus(err), uploadError(err)
	}
	return data, header.Filename, http.StatusOK, nil
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, http.ErrMissingFile):
		return fmt.Errorf("missing form field %q", api.FileField)
	default:
		return fmt.Errorf("failed to parse form: %v", err)
	}
}

func (e *OCREndpoint) Command(getServerURL func() string) *cobra.Command {
	short := "Recognize text in an image with the default-language engine"
	if e.Alternate {
		short = "Recognize text in an image with the Chinese engine"
	}
	return &cobra.Command{
		Use:   e.path()[1:] + " <image>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ocr.Response
			if err := client.UploadFile(cmd.Context(), e.path(), args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
