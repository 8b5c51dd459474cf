package encoder

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand/v2"
	"testing"

	"github.com/disintegration/imaging"
)

// noise returns a deterministic high-entropy image that compresses poorly.
func noise(w, h int) *image.NRGBA {
	r := rand.New(rand.NewPCG(1, 2))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.IntN(256))
	}
	return img
}

func flat(w, h int) *image.NRGBA {
	return imaging.New(w, h, color.NRGBA{R: 20, G: 90, B: 160, A: 255})
}

func sizeAt(t *testing.T, src image.Image, w, h, q int) int {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.Fill(src, w, h, imaging.Center, imaging.Lanczos)
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Len()
}

func testParams() Params {
	return Params{
		Width:           200,
		Height:          100,
		MaxBytes:        1 << 20,
		InitialQuality:  90,
		QualityStep:     10,
		MinQuality:      40,
		FallbackWidth:   100,
		FallbackHeight:  50,
		FallbackQuality: 70,
	}
}

func TestEncode_FitsAtInitialQuality_SingleAttempt(t *testing.T) {
	a, err := Encode(flat(400, 300), testParams())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if a.Attempts != 1 {
		t.Errorf("Attempts: got %d, want 1", a.Attempts)
	}
	if a.Quality != 90 {
		t.Errorf("Quality: got %d, want 90", a.Quality)
	}
	if a.Width != 200 || a.Height != 100 {
		t.Errorf("dimensions: got %dx%d, want 200x100", a.Width, a.Height)
	}
}

func TestEncode_OutputDecodesToExactCanvas(t *testing.T) {
	// Source aspect differs from target: fill must crop, not letterbox.
	a, err := Encode(flat(300, 900), testParams())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(a.Bytes))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 200 || cfg.Height != 100 {
		t.Errorf("decoded dimensions: got %dx%d, want 200x100", cfg.Width, cfg.Height)
	}
}

func TestEncode_StepsDownQuality(t *testing.T) {
	src := noise(200, 100)
	p := testParams()
	p.MaxBytes = sizeAt(t, src, 200, 100, 50)

	a, err := Encode(src, p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if a.Attempts < 2 {
		t.Errorf("Attempts: got %d, want >= 2", a.Attempts)
	}
	if a.Quality >= 90 || a.Quality < 50 {
		t.Errorf("Quality: got %d, want within [50, 90)", a.Quality)
	}
	if len(a.Bytes) > p.MaxBytes {
		t.Errorf("size %d exceeds budget %d", len(a.Bytes), p.MaxBytes)
	}
	if a.Width != 200 {
		t.Errorf("should not fall back to smaller canvas, got width %d", a.Width)
	}
}

func TestEncode_FallsBackToSmallerCanvas(t *testing.T) {
	src := noise(512, 512)
	p := Params{
		Width:           256,
		Height:          256,
		InitialQuality:  90,
		QualityStep:     10,
		MinQuality:      90,
		FallbackWidth:   64,
		FallbackHeight:  64,
		FallbackQuality: 90,
	}
	p.MaxBytes = sizeAt(t, src, 64, 64, 90)

	a, err := Encode(src, p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if a.Width != 64 || a.Height != 64 {
		t.Errorf("dimensions: got %dx%d, want 64x64", a.Width, a.Height)
	}
	if a.Attempts != 2 {
		t.Errorf("Attempts: got %d, want 2", a.Attempts)
	}
}

func TestEncode_UnreachableBudget(t *testing.T) {
	p := testParams()
	p.MaxBytes = 100 // smaller than any JPEG header

	a, err := Encode(noise(300, 300), p)
	if a != nil {
		t.Fatalf("expected no artifact, got %d bytes", len(a.Bytes))
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	var be *BudgetError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BudgetError, got %T", err)
	}
	if be.FinalSize <= p.MaxBytes {
		t.Errorf("FinalSize %d should exceed budget %d", be.FinalSize, p.MaxBytes)
	}
	// 90..40 on the primary canvas (6) + 70..40 on the fallback (4).
	if be.Attempts != 10 {
		t.Errorf("Attempts: got %d, want 10", be.Attempts)
	}
}

func TestEncode_NoFallback(t *testing.T) {
	p := testParams()
	p.FallbackWidth, p.FallbackHeight = 0, 0
	p.MaxBytes = 100

	_, err := Encode(noise(50, 50), p)
	var be *BudgetError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BudgetError, got %v", err)
	}
	if be.Attempts != 6 {
		t.Errorf("Attempts: got %d, want 6", be.Attempts)
	}
}

func TestEncode_StepOvershootClampsToFloor(t *testing.T) {
	p := testParams()
	p.QualityStep = 35 // 90, 55, then clamped to 40
	p.FallbackWidth, p.FallbackHeight = 0, 0
	p.MaxBytes = 100

	_, err := Encode(noise(50, 50), p)
	var be *BudgetError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BudgetError, got %v", err)
	}
	if be.Attempts != 3 {
		t.Errorf("Attempts: got %d, want 3", be.Attempts)
	}
}

func TestEncode_EmptySource(t *testing.T) {
	if _, err := Encode(image.NewNRGBA(image.Rect(0, 0, 0, 0)), testParams()); err == nil {
		t.Error("expected error for empty source")
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero width", func(p *Params) { p.Width = 0 }},
		{"zero budget", func(p *Params) { p.MaxBytes = 0 }},
		{"zero step", func(p *Params) { p.QualityStep = 0 }},
		{"quality over 100", func(p *Params) { p.InitialQuality = 101 }},
		{"min above initial", func(p *Params) { p.MinQuality = 95 }},
		{"half fallback", func(p *Params) { p.FallbackHeight = 0 }},
		{"fallback quality below floor", func(p *Params) { p.FallbackQuality = 10 }},
	}

	if err := testParams().Validate(); err != nil {
		t.Fatalf("base params invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPresets_Valid(t *testing.T) {
	if err := CardParams(1200, 630, 960, 504, 300<<10).Validate(); err != nil {
		t.Errorf("CardParams: %v", err)
	}
	if err := AvatarParams(400, 300, 60<<10).Validate(); err != nil {
		t.Errorf("AvatarParams: %v", err)
	}
}
