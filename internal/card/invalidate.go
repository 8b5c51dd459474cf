package card

import (
	"context"
	"log/slog"

	"github.com/ryanbastic/go-scorecard/internal/metrics"
	"github.com/ryanbastic/go-scorecard/internal/trigger"
)

// URLClearer clears the stored card URL of a match.
type URLClearer interface {
	ClearCardURL(ctx context.Context, matchID string) error
}

// Invalidator marks a match's card stale after its score changes.
type Invalidator struct {
	records URLClearer
	logger  *slog.Logger
}

// NewInvalidator creates an Invalidator.
func NewInvalidator(records URLClearer, logger *slog.Logger) *Invalidator {
	return &Invalidator{records: records, logger: logger}
}

// Invalidate clears the card URL so the next read rebuilds. Version and
// generation time are left for the next successful build to advance.
// Invalidating a match with no card is a no-op.
func (i *Invalidator) Invalidate(ctx context.Context, matchID string) error {
	if err := i.records.ClearCardURL(ctx, matchID); err != nil {
		return recordErr("clear card url", err)
	}
	metrics.Invalidated()
	i.logger.Info("card invalidated", "match_id", matchID)
	return nil
}

// Registration subscribes Invalidate to score updates.
func (i *Invalidator) Registration() trigger.Registration {
	return trigger.Registration{Event: trigger.ScoreUpdated, Handler: i.Invalidate}
}
