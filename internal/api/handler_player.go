package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-scorecard/internal/avatar"
	"github.com/ryanbastic/go-scorecard/internal/match"
)

// PlayerStore is the subset of storage.MatchStore used by player routes.
type PlayerStore interface {
	CreatePlayer(ctx context.Context, displayName string) (*match.Player, error)
	GetPlayer(ctx context.Context, playerID string) (*match.Player, error)
}

// AvatarService stores profile photos. Satisfied by *avatar.Service.
type AvatarService interface {
	Ingest(ctx context.Context, playerID string, r io.Reader) (*avatar.Photo, error)
}

// --- Huma Input/Output types ---

type CreatePlayerBody struct {
	DisplayName string `json:"display_name" doc:"Name shown on cards" minLength:"1" maxLength:"80"`
}

type CreatePlayerInput struct {
	Body CreatePlayerBody
}

type PlayerOutput struct {
	Body *match.Player
}

type GetPlayerInput struct {
	PlayerID string `path:"player_id" doc:"Player ID"`
}

type UploadPhotoInput struct {
	PlayerID string `path:"player_id" doc:"Player ID"`
	RawBody  []byte `contentType:"image/jpeg"`
}

type PhotoResponse struct {
	URL      string `json:"url" doc:"Stored photo URL"`
	Bytes    int    `json:"bytes" doc:"Encoded size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Quality  int    `json:"quality" doc:"JPEG quality used"`
	Attempts int    `json:"attempts" doc:"Encode attempts made"`
}

type UploadPhotoOutput struct {
	Body PhotoResponse
}

// PlayerHandler serves players and their profile photos.
type PlayerHandler struct {
	store     PlayerStore
	avatars   AvatarService
	maxUpload int64
	logger    *slog.Logger
}

func NewPlayerHandler(store PlayerStore, avatars AvatarService, maxUpload int64, logger *slog.Logger) *PlayerHandler {
	return &PlayerHandler{store: store, avatars: avatars, maxUpload: maxUpload, logger: logger}
}

func registerPlayerRoutes(api huma.API, h *PlayerHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-player",
		Method:        http.MethodPost,
		Path:          "/v1/players",
		Summary:       "Create a player",
		Tags:          []string{"players"},
		DefaultStatus: http.StatusCreated,
	}, h.CreatePlayer)
	huma.Register(api, huma.Operation{
		OperationID: "get-player",
		Method:      http.MethodGet,
		Path:        "/v1/players/{player_id}",
		Summary:     "Get a player",
		Tags:        []string{"players"},
	}, h.GetPlayer)
	huma.Register(api, huma.Operation{
		OperationID:  "upload-player-photo",
		Method:       http.MethodPut,
		Path:         "/v1/players/{player_id}/photo",
		Summary:      "Upload a profile photo",
		Tags:         []string{"players"},
		MaxBodyBytes: h.maxUpload,
	}, h.UploadPhoto)
}

func (h *PlayerHandler) CreatePlayer(ctx context.Context, input *CreatePlayerInput) (*PlayerOutput, error) {
	p, err := h.store.CreatePlayer(ctx, input.Body.DisplayName)
	if err != nil {
		return nil, toHTTPError(h.logger, "player", err)
	}
	return &PlayerOutput{Body: p}, nil
}

func (h *PlayerHandler) GetPlayer(ctx context.Context, input *GetPlayerInput) (*PlayerOutput, error) {
	p, err := h.store.GetPlayer(ctx, input.PlayerID)
	if err != nil {
		return nil, toHTTPError(h.logger.With("player_id", input.PlayerID), "player", err)
	}
	return &PlayerOutput{Body: p}, nil
}

func (h *PlayerHandler) UploadPhoto(ctx context.Context, input *UploadPhotoInput) (*UploadPhotoOutput, error) {
	logger := h.logger.With("player_id", input.PlayerID)
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("empty image")
	}
	if _, err := h.store.GetPlayer(ctx, input.PlayerID); err != nil {
		return nil, toHTTPError(logger, "player", err)
	}

	photo, err := h.avatars.Ingest(ctx, input.PlayerID, bytes.NewReader(input.RawBody))
	if err != nil {
		return nil, toHTTPError(logger, "player", err)
	}
	return &UploadPhotoOutput{Body: PhotoResponse{
		URL:      photo.URL,
		Bytes:    photo.Bytes,
		Width:    photo.Width,
		Height:   photo.Height,
		Quality:  photo.Quality,
		Attempts: photo.Attempts,
	}}, nil
}
