package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ryanbastic/go-scorecard/internal/match"
)

var (
	// ErrVersionConflict is returned by WriteCacheMeta when the stored card
	// version is not the one immediately preceding the new version.
	ErrVersionConflict = errors.New("card version conflict")

	// ErrPlayerNotFound is returned when a player lookup finds no matching row.
	ErrPlayerNotFound = errors.New("player not found")
)

// ParticipantRef seats an existing player on a side of a new match.
type ParticipantRef struct {
	PlayerID string
	Side     int
}

// CreateMatchRequest describes a new match.
type CreateMatchRequest struct {
	Title        string
	PlayedAt     *time.Time
	Scores       []match.SetScore
	Participants []ParticipantRef
}

// Page is one page of match IDs from a keyset scan.
type Page struct {
	MatchIDs   []string
	NextCursor string
	HasMore    bool
}

// MatchStore is the primary storage interface for matches, players and card
// cache metadata.
type MatchStore interface {
	CreatePlayer(ctx context.Context, displayName string) (*match.Player, error)
	GetPlayer(ctx context.Context, playerID string) (*match.Player, error)

	// SetPlayerPhoto stores the URL of a player's encoded profile photo.
	SetPlayerPhoto(ctx context.Context, playerID, url string) error

	// CreateMatch inserts a match and its participants atomically.
	CreateMatch(ctx context.Context, req CreateMatchRequest) (*match.Match, error)

	// LoadMatch returns a match with participants and card metadata as of
	// one consistent snapshot.
	LoadMatch(ctx context.Context, matchID string) (*match.Match, error)

	// UpdateScores replaces the score fields of a match and bumps its score
	// revision. It does not touch card metadata.
	UpdateScores(ctx context.Context, matchID string, scores []match.SetScore) error

	ReadCacheMeta(ctx context.Context, matchID string) (match.CardMeta, error)

	// WriteCacheMeta stores URL, version and generation time in one update.
	// It succeeds only if the stored version is meta.Version-1 and the
	// score revision is still scoreRevision; otherwise it returns
	// match.ErrScoreChanged or ErrVersionConflict.
	WriteCacheMeta(ctx context.Context, matchID string, meta match.CardMeta, scoreRevision int64) error

	// ClearCardURL nulls the card URL, leaving version and generation time.
	ClearCardURL(ctx context.Context, matchID string) error

	// ListUncachedMatches pages through matches that have no card, oldest first.
	ListUncachedMatches(ctx context.Context, cursor string, limit int) (*Page, error)

	Ping(ctx context.Context) error
}
