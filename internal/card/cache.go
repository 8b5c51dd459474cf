package card

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/ryanbastic/go-scorecard/internal/artifact"
	"github.com/ryanbastic/go-scorecard/internal/build"
	"github.com/ryanbastic/go-scorecard/internal/encoder"
	"github.com/ryanbastic/go-scorecard/internal/match"
	"github.com/ryanbastic/go-scorecard/internal/metrics"
)

var (
	// ErrRenderFailure wraps errors returned by the Renderer.
	ErrRenderFailure = errors.New("card render failed")

	// ErrEncodeFailure is returned when the rendered card cannot be encoded
	// within its byte budget.
	ErrEncodeFailure = errors.New("card encode failed")

	// ErrStorageFailure wraps artifact and record store errors.
	ErrStorageFailure = errors.New("card storage failed")
)

// RecordStore holds match records and their card cache metadata.
type RecordStore interface {
	LoadMatch(ctx context.Context, matchID string) (*match.Match, error)
	ReadCacheMeta(ctx context.Context, matchID string) (match.CardMeta, error)
	WriteCacheMeta(ctx context.Context, matchID string, meta match.CardMeta, scoreRevision int64) error
	ClearCardURL(ctx context.Context, matchID string) error
}

// Renderer draws an unbudgeted card image for a match.
// Must be free of side effects.
type Renderer interface {
	Render(ctx context.Context, m *match.Match) (image.Image, error)
}

// Card is a stored card and the metadata that identifies it.
type Card struct {
	Bytes       []byte
	URL         string
	Version     int64
	GeneratedAt time.Time

	// ScoreRevision is the score revision the card was drawn from.
	ScoreRevision int64

	// Superseded is set when the score changed while the card was being
	// built. Such a card is not recorded for the match and has no URL.
	Superseded bool

	// Outcome is metrics.OutcomeHit, OutcomeBuilt or OutcomeJoined.
	Outcome string
}

// Key returns the artifact key of a card version.
func Key(matchID string, version int64) string {
	return fmt.Sprintf("cards/%s/v%d.jpg", matchID, version)
}

// Cache serves match cards, building them at most once concurrently per match.
type Cache struct {
	records   RecordStore
	artifacts artifact.Store
	renderer  Renderer
	params    encoder.Params
	builds    *build.Coordinator[*Card]
	logger    *slog.Logger

	encode func(image.Image, encoder.Params) (*encoder.Artifact, error)
	now    func() time.Time
}

// NewCache creates a Cache. It returns an error if params are invalid.
func NewCache(
	records RecordStore,
	artifacts artifact.Store,
	renderer Renderer,
	params encoder.Params,
	builds *build.Coordinator[*Card],
	logger *slog.Logger,
) (*Cache, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("card params: %w", err)
	}
	return &Cache{
		records:   records,
		artifacts: artifacts,
		renderer:  renderer,
		params:    params,
		builds:    builds,
		logger:    logger,
		encode:    encoder.Encode,
		now:       time.Now,
	}, nil
}

// Get returns the card for a match. A stored card is served unless
// forceRefresh is set; otherwise the caller starts or joins the match's
// build.
func (c *Cache) Get(ctx context.Context, matchID string, forceRefresh bool) (*Card, error) {
	m, err := c.records.LoadMatch(ctx, matchID)
	if err != nil {
		metrics.CardRequest(metrics.OutcomeError)
		return nil, recordErr("load match", err)
	}
	if err := m.CheckRenderable(); err != nil {
		metrics.CardRequest(metrics.OutcomeError)
		return nil, err
	}

	if !forceRefresh && m.Card.HasCard() {
		card, err := c.fetch(ctx, m)
		if err == nil {
			metrics.CardRequest(metrics.OutcomeHit)
			c.logger.Debug("card cache hit", "match_id", matchID, "card_version", card.Version)
			return card, nil
		}
		if !errors.Is(err, artifact.ErrNotFound) {
			metrics.CardRequest(metrics.OutcomeError)
			return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}
		c.logger.Warn("card artifact missing, rebuilding", "match_id", matchID, "card_url", m.Card.URL)
	}

	card, role, err := c.builds.Do(ctx, matchID, c.buildFunc(matchID))
	if err == nil && card.ScoreRevision < m.ScoreRevision {
		// Joined a build that started before the score this read saw.
		// That build has settled, so the next one loads the current record.
		c.logger.Info("joined build predates score update, rebuilding",
			"match_id", matchID,
			"build_revision", card.ScoreRevision,
			"score_revision", m.ScoreRevision,
		)
		card, role, err = c.builds.Do(ctx, matchID, c.buildFunc(matchID))
	}
	if err != nil {
		metrics.CardRequest(metrics.OutcomeError)
		return nil, err
	}

	out := *card
	out.Outcome = metrics.OutcomeBuilt
	if role == build.Joined {
		out.Outcome = metrics.OutcomeJoined
	}
	metrics.CardRequest(out.Outcome)
	return &out, nil
}

// Meta returns the card cache metadata of a match without building.
func (c *Cache) Meta(ctx context.Context, matchID string) (match.CardMeta, error) {
	meta, err := c.records.ReadCacheMeta(ctx, matchID)
	if err != nil {
		return match.CardMeta{}, recordErr("read cache meta", err)
	}
	return meta, nil
}

// InFlight returns the number of builds currently running.
func (c *Cache) InFlight() int {
	return c.builds.InFlight()
}

func (c *Cache) fetch(ctx context.Context, m *match.Match) (*Card, error) {
	data, err := c.artifacts.Get(ctx, m.Card.URL)
	if err != nil {
		return nil, err
	}
	card := &Card{
		Bytes:         data,
		URL:           m.Card.URL,
		Version:       m.Card.Version,
		ScoreRevision: m.ScoreRevision,
		Outcome:       metrics.OutcomeHit,
	}
	if m.Card.GeneratedAt != nil {
		card.GeneratedAt = *m.Card.GeneratedAt
	}
	return card, nil
}

// buildFunc renders, encodes and stores the match's current state. The
// record is updated only after the artifact is fully written, so a failure
// at any step leaves the previous card metadata in place. The update is
// refused if the score changed after the build loaded it; the card is then
// returned to its waiters marked Superseded and never cached.
func (c *Cache) buildFunc(matchID string) build.Func[*Card] {
	return func(ctx context.Context) (*Card, error) {
		settle := metrics.BuildStarted()
		logger := c.logger.With("match_id", matchID)

		// Builds always target the record as of build start.
		m, err := c.records.LoadMatch(ctx, matchID)
		if err != nil {
			settle(metrics.BuildStorageError)
			return nil, recordErr("load match", err)
		}
		if err := m.CheckRenderable(); err != nil {
			settle(metrics.BuildRenderError)
			return nil, err
		}
		logger.Info("card build started", "card_version", m.Card.Version+1)

		img, err := c.renderer.Render(ctx, m)
		if err != nil {
			settle(metrics.BuildRenderError)
			logger.Error("card render failed", "error", err)
			if errors.Is(err, match.ErrNotFound) || errors.Is(err, match.ErrInvalidState) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrRenderFailure, err)
		}

		art, err := c.encode(img, c.params)
		if err != nil {
			settle(metrics.BuildEncodeError)
			logger.Error("card encode failed", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrEncodeFailure, err)
		}
		metrics.Encoded("card", art.Attempts, len(art.Bytes))

		version := m.Card.Version + 1
		url, err := c.artifacts.Put(ctx, Key(matchID, version), art.Bytes, encoder.ContentType)
		if err != nil {
			settle(metrics.BuildStorageError)
			logger.Error("card artifact put failed", "card_version", version, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}

		now := c.now().UTC()
		card := &Card{
			Bytes:         art.Bytes,
			URL:           url,
			Version:       version,
			GeneratedAt:   now,
			ScoreRevision: m.ScoreRevision,
		}
		meta := match.CardMeta{URL: url, Version: version, GeneratedAt: &now}
		if err := c.records.WriteCacheMeta(ctx, matchID, meta, m.ScoreRevision); err != nil {
			if errors.Is(err, match.ErrScoreChanged) {
				settle(metrics.BuildSuperseded)
				logger.Info("card superseded by score update, not cached",
					"card_version", version,
					"score_revision", m.ScoreRevision,
				)
				card.Superseded = true
				card.URL = ""
				return card, nil
			}
			settle(metrics.BuildStorageError)
			logger.Error("card meta write failed", "card_version", version, "error", err)
			return nil, recordErr("write cache meta", err)
		}

		settle(metrics.BuildSuccess)
		logger.Info("card built",
			"card_version", version,
			"bytes", len(art.Bytes),
			"width", art.Width,
			"height", art.Height,
			"quality", art.Quality,
			"attempts", art.Attempts,
		)
		return card, nil
	}
}

// recordErr passes match.ErrNotFound through and classifies everything else
// as a storage failure.
func recordErr(op string, err error) error {
	if errors.Is(err, match.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}
