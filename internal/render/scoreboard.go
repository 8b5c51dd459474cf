package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/ryanbastic/go-scorecard/internal/match"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PhotoSource fetches stored profile photos by URL.
type PhotoSource interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Theme colors.
var (
	Background = color.NRGBA{R: 0x10, G: 0x1c, B: 0x2c, A: 0xff}
	Header     = color.NRGBA{R: 0x1f, G: 0x8a, B: 0x4c, A: 0xff}
	Text       = color.NRGBA{R: 0xf4, G: 0xf4, B: 0xf4, A: 0xff}
	Muted      = color.NRGBA{R: 0x8a, G: 0x96, B: 0xa8, A: 0xff}
	Winner     = color.NRGBA{R: 0xff, G: 0xd2, B: 0x3f, A: 0xff}
	Avatar     = color.NRGBA{R: 0x33, G: 0x44, B: 0x5c, A: 0xff}
)

var face = basicfont.Face7x13

// Layout is the card geometry for a canvas size.
type Layout struct {
	Header image.Rectangle
	Rows   [2]image.Rectangle
	Photos [2]image.Rectangle
	Footer image.Rectangle
	Pad    int
	SetW   int
}

// NewLayout computes the card geometry for a w x h canvas.
func NewLayout(w, h int) Layout {
	pad := max(h/24, 2)
	headerH := h / 5
	footerH := h / 8
	rowH := (h - headerH - footerH) / 2

	var l Layout
	l.Pad = pad
	l.SetW = max(h/6, 8)
	l.Header = image.Rect(0, 0, w, headerH)
	for i := range l.Rows {
		y0 := headerH + i*rowH
		l.Rows[i] = image.Rect(0, y0, w, y0+rowH)
		side := rowH - 2*pad
		l.Photos[i] = image.Rect(pad, y0+pad, pad+side, y0+pad+side)
	}
	l.Footer = image.Rect(0, h-footerH, w, h)
	return l
}

// Scoreboard draws a two-row result card: a title band, one row per side
// with photo, names and games per set, and a footer with the match date.
type Scoreboard struct {
	width  int
	height int
	photos PhotoSource
	logger *slog.Logger
}

// NewScoreboard creates a renderer for w x h cards. photos may be nil, in
// which case every player gets an initials placeholder.
func NewScoreboard(width, height int, photos PhotoSource, logger *slog.Logger) *Scoreboard {
	return &Scoreboard{width: width, height: height, photos: photos, logger: logger}
}

// Render draws m. It fails with match.ErrInvalidState when m lacks the
// minimum cast.
func (s *Scoreboard) Render(ctx context.Context, m *match.Match) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.CheckRenderable(); err != nil {
		return nil, err
	}

	l := NewLayout(s.width, s.height)
	canvas := imaging.New(s.width, s.height, Background)
	canvas = imaging.Paste(canvas, imaging.New(l.Header.Dx(), l.Header.Dy(), Header), l.Header.Min)

	title := m.Title
	if title == "" {
		title = "Match result"
	}
	canvas = drawText(canvas, title, l.Header.Min.X+l.Pad, l.Header.Min.Y+l.Header.Dy()/4, l.Header.Dy()/2, Text)

	for side := 0; side < 2; side++ {
		canvas = s.drawRow(ctx, canvas, l, m, side)
	}

	if m.PlayedAt != nil {
		date := m.PlayedAt.Format("2 Jan 2006")
		canvas = drawText(canvas, date, l.Footer.Min.X+l.Pad, l.Footer.Min.Y+l.Footer.Dy()/4, l.Footer.Dy()/2, Muted)
	}
	return canvas, nil
}

func (s *Scoreboard) drawRow(ctx context.Context, canvas *image.NRGBA, l Layout, m *match.Match, side int) *image.NRGBA {
	row := l.Rows[side]
	photo := l.Photos[side]
	players := m.Side(side)

	canvas = imaging.Paste(canvas, s.thumbnail(ctx, players, photo.Dx()), photo.Min)

	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.DisplayName)
	}
	textH := row.Dy() / 4
	nameX := photo.Max.X + l.Pad
	canvas = drawText(canvas, strings.Join(names, " / "), nameX, row.Min.Y+(row.Dy()-textH)/2, textH, Text)

	// Sets are right-aligned, last set nearest the edge.
	for i, set := range m.Scores {
		x := row.Max.X - l.Pad - (len(m.Scores)-i)*l.SetW
		games, other, tb := set.A, set.B, set.TiebreakA
		if side == 1 {
			games, other, tb = set.B, set.A, set.TiebreakB
		}
		col := Text
		if games > other {
			col = Winner
		}
		gamesH := row.Dy() / 3
		canvas = drawText(canvas, strconv.Itoa(games), x, row.Min.Y+(row.Dy()-gamesH)/2, gamesH, col)
		if tb != nil {
			canvas = drawText(canvas, strconv.Itoa(*tb), x+gamesH, row.Min.Y+(row.Dy()-gamesH)/2, gamesH/2, Muted)
		}
	}
	return canvas
}

// thumbnail returns a size x size image for a side: the first player's photo
// when it can be fetched and decoded, otherwise an initials placeholder.
func (s *Scoreboard) thumbnail(ctx context.Context, players []match.Participant, size int) image.Image {
	if s.photos != nil {
		for _, p := range players {
			if p.PhotoURL == "" {
				continue
			}
			img, err := s.fetchPhoto(ctx, p.PhotoURL)
			if err != nil {
				s.logger.Warn("card photo unavailable, using placeholder", "player_id", p.PlayerID, "error", err)
				break
			}
			return imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
		}
	}

	ph := imaging.New(size, size, Avatar)
	var initials strings.Builder
	for _, p := range players {
		if r := []rune(strings.TrimSpace(p.DisplayName)); len(r) > 0 {
			initials.WriteRune(r[0])
		}
	}
	text := strings.ToUpper(initials.String())
	if text == "" {
		return ph
	}
	textH := size / 3
	textW := textH * len(text) * face.Advance / face.Height
	return drawText(ph, text, (size-textW)/2, (size-textH)/2, textH, Text)
}

func (s *Scoreboard) fetchPhoto(ctx context.Context, url string) (image.Image, error) {
	data, err := s.photos.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch photo: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	return img, nil
}

// drawText draws text with its top-left corner at (x, y), scaled to a line
// height of h pixels.
func drawText(dst *image.NRGBA, text string, x, y, h int, col color.Color) *image.NRGBA {
	if text == "" || h <= 0 {
		return dst
	}
	w := font.MeasureString(face, text).Ceil()
	small := image.NewNRGBA(image.Rect(0, 0, w, face.Height))
	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	scaled := imaging.Resize(small, w*h/face.Height, h, imaging.NearestNeighbor)
	return imaging.Overlay(dst, scaled, image.Pt(x, y), 1.0)
}
