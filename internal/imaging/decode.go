package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ErrInvalidImage is returned when uploaded bytes cannot be decoded as an image.
var ErrInvalidImage = errors.New("invalid image file")

// Decoded is an uploaded image after decoding.
type Decoded struct {
	// Image is the decoded pixel data.
	Image image.Image

	// Format is the name reported by the matching decoder ("png", "jpeg", ...).
	Format string

	// Size is the length of the original encoded payload in bytes.
	Size int
}

// Decode decodes raw image bytes using any registered format decoder.
//
// Parameters:
//   - data: The encoded image exactly as uploaded.
//
// Returns:
//   - *Decoded: The decoded image with its detected format.
//   - error: Wraps ErrInvalidImage if data is empty, unrecognized or corrupt,
//     or if the image has zero width or height.
//
// Decode never touches the filesystem; uploads are decoded from memory.
func Decode(data []byte) (*Decoded, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrInvalidImage)
	}

	return &Decoded{Image: img, Format: format, Size: len(data)}, nil
}

// ImageInfo contains metadata about a decoded upload.
//
// It is only used for logging; nothing downstream depends on it.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the decoder name: "png", "jpeg", "gif", "bmp", "tiff" or "webp".
	Format string `json:"format"`

	// ColorDepth indicates the bit depth per channel: "8-bit" or "16-bit".
	ColorDepth string `json:"color_depth"`

	// HasAlpha indicates whether the image has an alpha (transparency) channel.
	HasAlpha bool `json:"has_alpha"`

	// SizeBytes is the size of the encoded upload in bytes.
	SizeBytes int `json:"size_bytes"`
}

// Info describes a decoded image.
//
// # Color Depth Detection
//
// Color depth is determined by the Go image type:
//   - *image.RGBA64, *image.NRGBA64, *image.Gray16 -> "16-bit"
//   - All other types -> "8-bit"
func (d *Decoded) Info() ImageInfo {
	bounds := d.Image.Bounds()

	hasAlpha := false
	colorDepth := "8-bit"
	switch d.Image.(type) {
	case *image.RGBA, *image.NRGBA:
		hasAlpha = true
	case *image.RGBA64, *image.NRGBA64:
		hasAlpha = true
		colorDepth = "16-bit"
	case *image.Gray16:
		colorDepth = "16-bit"
	}

	return ImageInfo{
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Format:     d.Format,
		ColorDepth: colorDepth,
		HasAlpha:   hasAlpha,
		SizeBytes:  d.Size,
	}
}

// EncodePNG encodes an image as PNG for transport to an OCR engine.
//
// PNG is lossless, so whatever the upload format was, the engine sees exactly
// the decoded (and possibly preprocessed) pixels.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
