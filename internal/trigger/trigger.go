package trigger

import "context"

// ScoreUpdated fires after a match's score fields change.
const ScoreUpdated = "score_updated"

// HandlerFunc is invoked synchronously for a match event.
// Must be idempotent; may be called more than once for the same change.
type HandlerFunc func(ctx context.Context, matchID string) error

// Registration ties an event name to a handler.
type Registration struct {
	Event   string
	Handler HandlerFunc
}
