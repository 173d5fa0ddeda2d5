package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// DefaultMinSide is the short-side length below which images are upscaled.
const DefaultMinSide = 100

// Preprocessor applies optional enhancement before inference.
//
// The zero value is disabled and returns images untouched.
type Preprocessor struct {
	// Enabled turns the stage on. When false, Apply is a no-op.
	Enabled bool

	// MinSide is the minimum short-side length in pixels. Smaller images are
	// scaled up, preserving aspect ratio, so the short side equals MinSide.
	// Zero means DefaultMinSide.
	MinSide int

	// Contrast is a relative contrast change in the range -1 to 1.
	// Zero leaves contrast unchanged.
	Contrast float64

	// Sharpen applies a 3x3 sharpening kernel after the other steps.
	Sharpen bool
}

// Apply runs the configured steps and returns the resulting image.
//
// Steps run in a fixed order: upscale, contrast, sharpen. Steps that are not
// configured are skipped, so an enabled Preprocessor with default settings
// only ever upscales tiny images.
func (p Preprocessor) Apply(img image.Image) image.Image {
	if !p.Enabled {
		return img
	}

	minSide := p.MinSide
	if minSide <= 0 {
		minSide = DefaultMinSide
	}

	out := img
	b := out.Bounds()
	w, h := b.Dx(), b.Dy()
	short := w
	if h < short {
		short = h
	}
	if short > 0 && short < minSide {
		scale := float64(minSide) / float64(short)
		newW := int(float64(w)*scale + 0.5)
		newH := int(float64(h)*scale + 0.5)
		out = imaging.Resize(out, newW, newH, imaging.Lanczos)
	}

	if p.Contrast != 0 {
		out = adjust.Contrast(out, p.Contrast)
	}

	if p.Sharpen {
		out = effect.Sharpen(out)
	}

	return out
}
