package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-scorecard/internal/match"
	"github.com/ryanbastic/go-scorecard/internal/storage"
	"github.com/ryanbastic/go-scorecard/internal/trigger"
)

// MatchStore is the subset of storage.MatchStore used by match routes.
type MatchStore interface {
	CreateMatch(ctx context.Context, req storage.CreateMatchRequest) (*match.Match, error)
	LoadMatch(ctx context.Context, matchID string) (*match.Match, error)
	UpdateScores(ctx context.Context, matchID string, scores []match.SetScore) error
}

// --- Huma Input/Output types ---

type ParticipantBody struct {
	PlayerID string `json:"player_id" doc:"Player ID" minLength:"1"`
	Side     int    `json:"side" doc:"0 or 1"`
}

type CreateMatchBody struct {
	Title        string            `json:"title" doc:"Match title"`
	PlayedAt     *time.Time        `json:"played_at,omitempty" doc:"When the match was played"`
	Scores       []match.SetScore  `json:"scores" doc:"Games per set"`
	Participants []ParticipantBody `json:"participants" doc:"Players and their sides"`
}

type CreateMatchInput struct {
	Body CreateMatchBody
}

type MatchOutput struct {
	Body *match.Match
}

type GetMatchInput struct {
	MatchID string `path:"match_id" doc:"Match ID"`
}

type UpdateScoreBody struct {
	Scores []match.SetScore `json:"scores" doc:"Games per set"`
}

type UpdateScoreInput struct {
	MatchID string `path:"match_id" doc:"Match ID"`
	Body    UpdateScoreBody
}

// MatchHandler serves match records and score updates.
type MatchHandler struct {
	store    MatchStore
	triggers *trigger.Registry
	logger   *slog.Logger
}

func NewMatchHandler(store MatchStore, triggers *trigger.Registry, logger *slog.Logger) *MatchHandler {
	if triggers == nil {
		triggers = trigger.NewRegistry()
	}
	return &MatchHandler{store: store, triggers: triggers, logger: logger}
}

func registerMatchRoutes(api huma.API, h *MatchHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-match",
		Method:        http.MethodPost,
		Path:          "/v1/matches",
		Summary:       "Create a match",
		Tags:          []string{"matches"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateMatch)
	huma.Register(api, huma.Operation{
		OperationID: "get-match",
		Method:      http.MethodGet,
		Path:        "/v1/matches/{match_id}",
		Summary:     "Get a match",
		Tags:        []string{"matches"},
	}, h.GetMatch)
	huma.Register(api, huma.Operation{
		OperationID: "update-score",
		Method:      http.MethodPut,
		Path:        "/v1/matches/{match_id}/score",
		Summary:     "Replace the score of a match",
		Tags:        []string{"matches"},
	}, h.UpdateScore)
}

func (h *MatchHandler) CreateMatch(ctx context.Context, input *CreateMatchInput) (*MatchOutput, error) {
	body := input.Body
	if err := match.ValidateScores(body.Scores); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	seats := make([]match.Participant, len(body.Participants))
	refs := make([]storage.ParticipantRef, len(body.Participants))
	for i, p := range body.Participants {
		seats[i] = match.Participant{PlayerID: p.PlayerID, Side: p.Side}
		refs[i] = storage.ParticipantRef{PlayerID: p.PlayerID, Side: p.Side}
	}
	if err := match.ValidateSides(seats); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	m, err := h.store.CreateMatch(ctx, storage.CreateMatchRequest{
		Title:        body.Title,
		PlayedAt:     body.PlayedAt,
		Scores:       body.Scores,
		Participants: refs,
	})
	if err != nil {
		if errors.Is(err, storage.ErrPlayerNotFound) {
			return nil, huma.Error422UnprocessableEntity("unknown player")
		}
		return nil, toHTTPError(h.logger, "match", err)
	}
	h.logger.Info("match created", "match_id", m.ID, "participants", len(m.Participants))
	return &MatchOutput{Body: m}, nil
}

func (h *MatchHandler) GetMatch(ctx context.Context, input *GetMatchInput) (*MatchOutput, error) {
	m, err := h.store.LoadMatch(ctx, input.MatchID)
	if err != nil {
		return nil, toHTTPError(h.logger.With("match_id", input.MatchID), "match", err)
	}
	return &MatchOutput{Body: m}, nil
}

// UpdateScore stores the new score and fires trigger.ScoreUpdated before
// responding, so the stored card is already invalid when this returns. A
// build still drawing the old score cannot record its card afterwards.
func (h *MatchHandler) UpdateScore(ctx context.Context, input *UpdateScoreInput) (*MatchOutput, error) {
	logger := h.logger.With("match_id", input.MatchID)
	if err := match.ValidateScores(input.Body.Scores); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if err := h.store.UpdateScores(ctx, input.MatchID, input.Body.Scores); err != nil {
		return nil, toHTTPError(logger, "match", err)
	}
	if err := h.triggers.Fire(ctx, trigger.ScoreUpdated, input.MatchID); err != nil {
		logger.Error("score update handlers failed", "error", err)
		return nil, huma.Error503ServiceUnavailable("score saved but card invalidation failed")
	}

	m, err := h.store.LoadMatch(ctx, input.MatchID)
	if err != nil {
		return nil, toHTTPError(logger, "match", err)
	}
	logger.Info("score updated", "sets", len(m.Scores))
	return &MatchOutput{Body: m}, nil
}
