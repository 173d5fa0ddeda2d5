package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestPreprocessor_DisabledIsNoop(t *testing.T) {
	src := solidImage(20, 20, color.Black)

	var p Preprocessor
	out := p.Apply(src)
	if out != image.Image(src) {
		t.Error("disabled preprocessor should return the input image unchanged")
	}
}

func TestPreprocessor_Upscale(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		minSide       int
		wantW, wantH  int
	}{
		{"short height", 50, 20, 100, 250, 100},
		{"short width", 10, 40, 100, 100, 400},
		{"default min side", 50, 50, 0, DefaultMinSide, DefaultMinSide},
		{"already large enough", 300, 200, 100, 300, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Preprocessor{Enabled: true, MinSide: tt.minSide}
			out := p.Apply(solidImage(tt.width, tt.height, color.White))

			b := out.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("dimensions: got %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPreprocessor_ContrastAndSharpenKeepSize(t *testing.T) {
	src := solidImage(120, 120, color.RGBA{128, 128, 128, 255})
	p := Preprocessor{Enabled: true, Contrast: 0.5, Sharpen: true}

	out := p.Apply(src)
	b := out.Bounds()
	if b.Dx() != 120 || b.Dy() != 120 {
		t.Errorf("dimensions: got %dx%d, want 120x120", b.Dx(), b.Dy())
	}
}

func TestPreprocessor_ContrastChangesPixels(t *testing.T) {
	src := solidImage(120, 120, color.RGBA{200, 200, 200, 255})
	p := Preprocessor{Enabled: true, Contrast: 0.8}

	out := p.Apply(src)
	r, _, _, _ := out.At(60, 60).RGBA()
	if r>>8 <= 200 {
		t.Errorf("expected contrast boost to brighten a light pixel, got %d", r>>8)
	}
}
