package match

import (
	"errors"
	"fmt"
	"time"
)

// MinParticipants is the smallest cast a match card can be drawn for.
const MinParticipants = 2

var (
	// ErrNotFound is returned when no match (or player) exists for an ID.
	ErrNotFound = errors.New("match not found")

	// ErrInvalidState is returned when a match cannot be rendered as-is,
	// e.g. it has fewer than MinParticipants participants.
	ErrInvalidState = errors.New("invalid match state")

	// ErrScoreChanged is returned when card metadata is written for a score
	// revision that is no longer current.
	ErrScoreChanged = errors.New("match score changed")
)

// Player is a person who can take part in matches.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Participant is a player seated on one side of a match.
type Participant struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Side        int    `json:"side"`
}

// SetScore holds the games won by each side in one set. Tiebreak points are
// only present for sets decided by a tiebreak.
type SetScore struct {
	A         int  `json:"a"`
	B         int  `json:"b"`
	TiebreakA *int `json:"tiebreak_a,omitempty"`
	TiebreakB *int `json:"tiebreak_b,omitempty"`
}

// CardMeta is the cache metadata of a match's result card.
// An empty URL means there is no valid card.
type CardMeta struct {
	URL         string     `json:"url,omitempty"`
	Version     int64      `json:"version"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// HasCard reports whether the metadata points at a stored card.
func (m CardMeta) HasCard() bool {
	return m.URL != ""
}

// Match is a played (or in-progress) match and its card metadata.
// ScoreRevision increases by one on every score update.
type Match struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	PlayedAt      *time.Time    `json:"played_at,omitempty"`
	Scores        []SetScore    `json:"scores"`
	Participants  []Participant `json:"participants"`
	Card          CardMeta      `json:"card"`
	ScoreRevision int64         `json:"score_revision"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Side returns the participants seated on the given side, in seating order.
func (m *Match) Side(side int) []Participant {
	var out []Participant
	for _, p := range m.Participants {
		if p.Side == side {
			out = append(out, p)
		}
	}
	return out
}

// CheckRenderable returns ErrInvalidState if the match lacks the minimum cast.
func (m *Match) CheckRenderable() error {
	if len(m.Participants) < MinParticipants {
		return fmt.Errorf("%w: %d participants, need at least %d", ErrInvalidState, len(m.Participants), MinParticipants)
	}
	return nil
}

// ValidateScores rejects negative values and half-specified tiebreaks.
func ValidateScores(sets []SetScore) error {
	for i, s := range sets {
		if s.A < 0 || s.B < 0 {
			return fmt.Errorf("set %d: games must be non-negative", i+1)
		}
		if (s.TiebreakA == nil) != (s.TiebreakB == nil) {
			return fmt.Errorf("set %d: tiebreak must be given for both sides", i+1)
		}
		if s.TiebreakA != nil && (*s.TiebreakA < 0 || *s.TiebreakB < 0) {
			return fmt.Errorf("set %d: tiebreak points must be non-negative", i+1)
		}
	}
	return nil
}

// ValidateSides checks participant sides are 0 or 1 and that no player is
// seated twice.
func ValidateSides(ps []Participant) error {
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		if p.Side != 0 && p.Side != 1 {
			return fmt.Errorf("participant %s: side must be 0 or 1, got %d", p.PlayerID, p.Side)
		}
		if seen[p.PlayerID] {
			return fmt.Errorf("participant %s: seated more than once", p.PlayerID)
		}
		seen[p.PlayerID] = true
	}
	return nil
}
