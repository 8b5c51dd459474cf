package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/ryanbastic/go-scorecard/internal/artifact"
	"github.com/ryanbastic/go-scorecard/internal/encoder"
	"github.com/ryanbastic/go-scorecard/internal/metrics"
)

var (
	// ErrInvalidImage is returned when an upload cannot be decoded.
	ErrInvalidImage = errors.New("invalid image")

	// ErrTooLarge is returned when an upload exceeds the size ceiling.
	ErrTooLarge = errors.New("image upload too large")
)

// PlayerStore persists the photo URL of a player.
type PlayerStore interface {
	SetPlayerPhoto(ctx context.Context, playerID, url string) error
}

// Photo is a stored, budgeted profile photo.
type Photo struct {
	URL      string
	Bytes    int
	Width    int
	Height   int
	Quality  int
	Attempts int
}

// Service turns uploaded images into budgeted square profile photos.
type Service struct {
	players   PlayerStore
	artifacts artifact.Store
	params    encoder.Params
	maxUpload int64
	logger    *slog.Logger
}

// NewService creates a Service. Uploads larger than maxUpload bytes are
// rejected with ErrTooLarge.
func NewService(players PlayerStore, artifacts artifact.Store, params encoder.Params, maxUpload int64, logger *slog.Logger) (*Service, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("avatar params: %w", err)
	}
	return &Service{
		players:   players,
		artifacts: artifacts,
		params:    params,
		maxUpload: maxUpload,
		logger:    logger,
	}, nil
}

// Key returns a fresh artifact key for a player's photo. Keys are never
// reused across uploads.
func Key(playerID string) string {
	return fmt.Sprintf("avatars/%s/%s.jpg", playerID, uuid.NewString())
}

// Ingest decodes r (honouring EXIF orientation), encodes it within the avatar
// budget, stores it and records its URL on the player.
func (s *Service) Ingest(ctx context.Context, playerID string, r io.Reader) (*Photo, error) {
	lr := &io.LimitedReader{R: r, N: s.maxUpload + 1}
	src, err := imaging.Decode(lr, imaging.AutoOrientation(true))
	if lr.N <= 0 {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxUpload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	art, err := encoder.Encode(src, s.params)
	if err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	metrics.Encoded("avatar", art.Attempts, len(art.Bytes))

	url, err := s.artifacts.Put(ctx, Key(playerID), art.Bytes, encoder.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store avatar: %w", err)
	}
	if err := s.players.SetPlayerPhoto(ctx, playerID, url); err != nil {
		return nil, err
	}

	s.logger.Info("avatar stored",
		"player_id", playerID,
		"bytes", len(art.Bytes),
		"width", art.Width,
		"quality", art.Quality,
		"attempts", art.Attempts,
	)
	return &Photo{
		URL:      url,
		Bytes:    len(art.Bytes),
		Width:    art.Width,
		Height:   art.Height,
		Quality:  art.Quality,
		Attempts: art.Attempts,
	}, nil
}
