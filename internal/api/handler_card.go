package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-scorecard/internal/card"
	"github.com/ryanbastic/go-scorecard/internal/encoder"
	"github.com/ryanbastic/go-scorecard/internal/match"
)

// CardService serves result cards. Satisfied by *card.Cache.
type CardService interface {
	Get(ctx context.Context, matchID string, forceRefresh bool) (*card.Card, error)
	Meta(ctx context.Context, matchID string) (match.CardMeta, error)
}

// --- Huma Input/Output types ---

type GetCardInput struct {
	MatchID string `path:"match_id" doc:"Match ID"`
	Refresh bool   `query:"refresh" doc:"Rebuild the card even if a stored one is valid"`
}

type GetCardOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	ETag         string `header:"ETag"`
	LastModified string `header:"Last-Modified"`
	CardVersion  string `header:"X-Card-Version"`
	CardCache    string `header:"X-Card-Cache" doc:"hit, built or joined"`
	Body         []byte
}

type GetCardMetaInput struct {
	MatchID string `path:"match_id" doc:"Match ID"`
}

type CardMetaResponse struct {
	MatchID     string     `json:"match_id" doc:"Match ID"`
	URL         string     `json:"url,omitempty" doc:"Stored card URL; empty when the card is stale or missing"`
	Version     int64      `json:"version" doc:"Number of successful builds"`
	GeneratedAt *time.Time `json:"generated_at,omitempty" doc:"Time of the last successful build"`
	Valid       bool       `json:"valid" doc:"Whether a stored card is current"`
}

type GetCardMetaOutput struct {
	Body CardMetaResponse
}

// CardHandler serves match result cards.
type CardHandler struct {
	cards  CardService
	maxAge time.Duration
	logger *slog.Logger
}

func NewCardHandler(cards CardService, maxAge time.Duration, logger *slog.Logger) *CardHandler {
	return &CardHandler{cards: cards, maxAge: maxAge, logger: logger}
}

func registerCardRoutes(api huma.API, h *CardHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-card",
		Method:      http.MethodGet,
		Path:        "/v1/matches/{match_id}/card",
		Summary:     "Get the result card of a match",
		Tags:        []string{"cards"},
	}, h.GetCard)
	huma.Register(api, huma.Operation{
		OperationID: "get-card-meta",
		Method:      http.MethodGet,
		Path:        "/v1/matches/{match_id}/card/meta",
		Summary:     "Get card cache metadata of a match",
		Tags:        []string{"cards"},
	}, h.GetCardMeta)
}

func (h *CardHandler) GetCard(ctx context.Context, input *GetCardInput) (*GetCardOutput, error) {
	c, err := h.cards.Get(ctx, input.MatchID, input.Refresh)
	if err != nil {
		return nil, toHTTPError(h.logger.With("match_id", input.MatchID), "match", err)
	}

	out := &GetCardOutput{
		ContentType:  encoder.ContentType,
		CacheControl: fmt.Sprintf("public, max-age=%d", int(h.maxAge.Seconds())),
		ETag:         fmt.Sprintf("%q", "v"+strconv.FormatInt(c.Version, 10)),
		CardVersion:  strconv.FormatInt(c.Version, 10),
		CardCache:    c.Outcome,
		Body:         c.Bytes,
	}
	if c.Superseded {
		// Drawn from a score that has since changed; the version number
		// will be reused by the next build.
		out.CacheControl = "no-store"
		out.ETag = ""
	}
	if !c.GeneratedAt.IsZero() {
		out.LastModified = c.GeneratedAt.UTC().Format(http.TimeFormat)
	}
	return out, nil
}

func (h *CardHandler) GetCardMeta(ctx context.Context, input *GetCardMetaInput) (*GetCardMetaOutput, error) {
	meta, err := h.cards.Meta(ctx, input.MatchID)
	if err != nil {
		return nil, toHTTPError(h.logger.With("match_id", input.MatchID), "match", err)
	}
	return &GetCardMetaOutput{Body: CardMetaResponse{
		MatchID:     input.MatchID,
		URL:         meta.URL,
		Version:     meta.Version,
		GeneratedAt: meta.GeneratedAt,
		Valid:       meta.HasCard(),
	}}, nil
}
