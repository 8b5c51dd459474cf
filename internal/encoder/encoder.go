package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ErrBudgetExceeded is matched by every *BudgetError.
var ErrBudgetExceeded = errors.New("encoded image exceeds byte budget")

// ContentType is the MIME type of every artifact produced by Encode.
const ContentType = "image/jpeg"

// BudgetError is returned when no rung of the ladder fits the budget.
type BudgetError struct {
	FinalSize int // size in bytes of the last (smallest) attempt
	Budget    int
	Attempts  int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("encoded image exceeds byte budget: %d > %d bytes after %d attempts", e.FinalSize, e.Budget, e.Attempts)
}

func (e *BudgetError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// Params configures one call site of the encoder.
type Params struct {
	Width    int
	Height   int
	MaxBytes int

	InitialQuality int
	QualityStep    int
	MinQuality     int

	// FallbackWidth/FallbackHeight select the smaller canvas tried once the
	// primary ladder bottoms out. Zero disables the fallback.
	FallbackWidth   int
	FallbackHeight  int
	FallbackQuality int
}

// Artifact is an encoded image that fits its budget.
type Artifact struct {
	Bytes    []byte
	Width    int
	Height   int
	Quality  int
	Attempts int
}

// CardParams returns the ladder used for match result cards.
func CardParams(width, height, fallbackWidth, fallbackHeight, maxBytes int) Params {
	return Params{
		Width:           width,
		Height:          height,
		MaxBytes:        maxBytes,
		InitialQuality:  90,
		QualityStep:     10,
		MinQuality:      40,
		FallbackWidth:   fallbackWidth,
		FallbackHeight:  fallbackHeight,
		FallbackQuality: 75,
	}
}

// AvatarParams returns the ladder used for square profile photos.
func AvatarParams(size, fallbackSize, maxBytes int) Params {
	return Params{
		Width:           size,
		Height:          size,
		MaxBytes:        maxBytes,
		InitialQuality:  85,
		QualityStep:     10,
		MinQuality:      35,
		FallbackWidth:   fallbackSize,
		FallbackHeight:  fallbackSize,
		FallbackQuality: 70,
	}
}

func (p Params) hasFallback() bool {
	return p.FallbackWidth > 0 && p.FallbackHeight > 0
}

// Validate reports parameter combinations that would make the ladder
// meaningless or unbounded.
func (p Params) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("encoder: invalid dimensions %dx%d", p.Width, p.Height)
	case p.MaxBytes <= 0:
		return fmt.Errorf("encoder: max bytes must be positive, got %d", p.MaxBytes)
	case p.QualityStep <= 0:
		return fmt.Errorf("encoder: quality step must be positive, got %d", p.QualityStep)
	case !validQuality(p.InitialQuality) || !validQuality(p.MinQuality):
		return fmt.Errorf("encoder: qualities must be within 1..100")
	case p.MinQuality > p.InitialQuality:
		return fmt.Errorf("encoder: min quality %d above initial quality %d", p.MinQuality, p.InitialQuality)
	case (p.FallbackWidth > 0) != (p.FallbackHeight > 0):
		return fmt.Errorf("encoder: fallback needs both width and height")
	case p.hasFallback() && (!validQuality(p.FallbackQuality) || p.FallbackQuality < p.MinQuality):
		return fmt.Errorf("encoder: fallback quality %d must be within %d..100", p.FallbackQuality, p.MinQuality)
	}
	return nil
}

func validQuality(q int) bool {
	return q >= 1 && q <= 100
}

// Encode crops src to cover the target canvas and encodes it as JPEG at the
// highest quality on the ladder that fits p.MaxBytes:
//
//	Width x Height:                 InitialQuality, -QualityStep ... MinQuality
//	FallbackWidth x FallbackHeight: FallbackQuality, -QualityStep ... MinQuality
//
// The first rung that fits wins. If none fit, a *BudgetError is returned;
// over-budget bytes are never returned.
func Encode(src image.Image, p Params) (*Artifact, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if src == nil || src.Bounds().Empty() {
		return nil, errors.New("encoder: empty source image")
	}

	var (
		buf      bytes.Buffer
		attempts int
		lastSize int
	)

	ladder := func(w, h, start int) (*Artifact, error) {
		img := imaging.Fill(src, w, h, imaging.Center, imaging.Lanczos)
		for q := start; ; q -= p.QualityStep {
			if q < p.MinQuality {
				q = p.MinQuality
			}
			buf.Reset()
			attempts++
			if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
				return nil, fmt.Errorf("encode jpeg %dx%d q%d: %w", w, h, q, err)
			}
			lastSize = buf.Len()
			if lastSize <= p.MaxBytes {
				return &Artifact{
					Bytes:    bytes.Clone(buf.Bytes()),
					Width:    w,
					Height:   h,
					Quality:  q,
					Attempts: attempts,
				}, nil
			}
			if q == p.MinQuality {
				return nil, nil
			}
		}
	}

	a, err := ladder(p.Width, p.Height, p.InitialQuality)
	if a != nil || err != nil {
		return a, err
	}
	if p.hasFallback() {
		a, err := ladder(p.FallbackWidth, p.FallbackHeight, p.FallbackQuality)
		if a != nil || err != nil {
			return a, err
		}
	}
	return nil, &BudgetError{FinalSize: lastSize, Budget: p.MaxBytes, Attempts: attempts}
}
