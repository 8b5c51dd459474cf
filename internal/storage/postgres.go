package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-scorecard/internal/match"
)

// foreignKeyViolation is the SQLSTATE raised when a participant references a
// missing player.
const foreignKeyViolation = "23503"

// PostgresStore implements MatchStore using PostgreSQL.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresStore creates a MatchStore on pool.
// queryTimeout sets the per-query context deadline; zero means no timeout.
func NewPostgresStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		queryTimeout: queryTimeout,
	}
}

// withTimeout derives a child context with the configured query timeout.
// If queryTimeout is zero, the parent context is returned unchanged.
func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

// parseID maps malformed IDs to notFound; no row can have them.
func parseID(id string, notFound error) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, notFound
	}
	return u, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreatePlayer(ctx context.Context, displayName string) (*match.Player, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p := match.Player{ID: uuid.NewString(), DisplayName: displayName}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO players (id, display_name) VALUES ($1, $2)
	`, p.ID, p.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("create player: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetPlayer(ctx context.Context, playerID string) (*match.Player, error) {
	id, err := parseID(playerID, ErrPlayerNotFound)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var p match.Player
	err = s.pool.QueryRow(ctx, `
		SELECT id::text, display_name, COALESCE(photo_url, '')
		FROM players
		WHERE id = $1
	`, id).Scan(&p.ID, &p.DisplayName, &p.PhotoURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("get player: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) SetPlayerPhoto(ctx context.Context, playerID, url string) error {
	id, err := parseID(playerID, ErrPlayerNotFound)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE players SET photo_url = $2, updated_at = now() WHERE id = $1
	`, id, url)
	if err != nil {
		return fmt.Errorf("set player photo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

func (s *PostgresStore) CreateMatch(ctx context.Context, req CreateMatchRequest) (*match.Match, error) {
	scores := req.Scores
	if scores == nil {
		scores = []match.SetScore{}
	}
	body, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("marshal scores: %w", err)
	}

	tctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(tctx)
	if err != nil {
		return nil, fmt.Errorf("create match begin: %w", err)
	}
	defer tx.Rollback(tctx)

	matchID := uuid.New()
	_, err = tx.Exec(tctx, `
		INSERT INTO matches (id, title, played_at, scores) VALUES ($1, $2, $3, $4)
	`, matchID, req.Title, req.PlayedAt, json.RawMessage(body))
	if err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}

	for seat, p := range req.Participants {
		playerID, err := parseID(p.PlayerID, ErrPlayerNotFound)
		if err != nil {
			return nil, fmt.Errorf("participant %q: %w", p.PlayerID, err)
		}
		_, err = tx.Exec(tctx, `
			INSERT INTO match_participants (match_id, player_id, side, seat) VALUES ($1, $2, $3, $4)
		`, matchID, playerID, p.Side, seat)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
				return nil, fmt.Errorf("participant %q: %w", p.PlayerID, ErrPlayerNotFound)
			}
			return nil, fmt.Errorf("add participant: %w", err)
		}
	}

	if err := tx.Commit(tctx); err != nil {
		return nil, fmt.Errorf("create match commit: %w", err)
	}
	return s.LoadMatch(ctx, matchID.String())
}

func (s *PostgresStore) LoadMatch(ctx context.Context, matchID string) (*match.Match, error) {
	id, err := parseID(matchID, match.ErrNotFound)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// Both reads share one snapshot so participants and card metadata agree.
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("load match begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		m       match.Match
		scores  []byte
		cardURL *string
	)
	err = tx.QueryRow(ctx, `
		SELECT id::text, title, played_at, scores, card_url, card_version, card_generated_at,
			score_revision, created_at, updated_at
		FROM matches
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Title, &m.PlayedAt, &scores, &cardURL, &m.Card.Version, &m.Card.GeneratedAt,
		&m.ScoreRevision, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, match.ErrNotFound
		}
		return nil, fmt.Errorf("load match: %w", err)
	}
	if err := json.Unmarshal(scores, &m.Scores); err != nil {
		return nil, fmt.Errorf("load match scores: %w", err)
	}
	if cardURL != nil {
		m.Card.URL = *cardURL
	}

	rows, err := tx.Query(ctx, `
		SELECT p.id::text, p.display_name, COALESCE(p.photo_url, ''), mp.side
		FROM match_participants mp
		JOIN players p ON p.id = mp.player_id
		WHERE mp.match_id = $1
		ORDER BY mp.side, mp.seat
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p match.Participant
		if err := rows.Scan(&p.PlayerID, &p.DisplayName, &p.PhotoURL, &p.Side); err != nil {
			return nil, fmt.Errorf("load participants scan: %w", err)
		}
		m.Participants = append(m.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load participants rows: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) UpdateScores(ctx context.Context, matchID string, scores []match.SetScore) error {
	id, err := parseID(matchID, match.ErrNotFound)
	if err != nil {
		return err
	}
	if scores == nil {
		scores = []match.SetScore{}
	}
	body, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE matches
		SET scores = $2, score_revision = score_revision + 1, updated_at = now()
		WHERE id = $1
	`, id, json.RawMessage(body))
	if err != nil {
		return fmt.Errorf("update scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return match.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ReadCacheMeta(ctx context.Context, matchID string) (match.CardMeta, error) {
	id, err := parseID(matchID, match.ErrNotFound)
	if err != nil {
		return match.CardMeta{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		meta    match.CardMeta
		cardURL *string
	)
	err = s.pool.QueryRow(ctx, `
		SELECT card_url, card_version, card_generated_at FROM matches WHERE id = $1
	`, id).Scan(&cardURL, &meta.Version, &meta.GeneratedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return match.CardMeta{}, match.ErrNotFound
		}
		return match.CardMeta{}, fmt.Errorf("read cache meta: %w", err)
	}
	if cardURL != nil {
		meta.URL = *cardURL
	}
	return meta, nil
}

func (s *PostgresStore) WriteCacheMeta(ctx context.Context, matchID string, meta match.CardMeta, scoreRevision int64) error {
	id, err := parseID(matchID, match.ErrNotFound)
	if err != nil {
		return err
	}
	if meta.URL == "" {
		return errors.New("write cache meta: empty card url")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE matches
		SET card_url = $2, card_version = $3, card_generated_at = $4
		WHERE id = $1 AND card_version = $3 - 1 AND score_revision = $5
	`, id, meta.URL, meta.Version, meta.GeneratedAt, scoreRevision)
	if err != nil {
		return fmt.Errorf("write cache meta: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current int64
	err = s.pool.QueryRow(ctx, `SELECT score_revision FROM matches WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return match.ErrNotFound
		}
		return fmt.Errorf("write cache meta: %w", err)
	}
	if current != scoreRevision {
		return fmt.Errorf("%w: revision %d, now %d", match.ErrScoreChanged, scoreRevision, current)
	}
	return fmt.Errorf("%w: version %d", ErrVersionConflict, meta.Version)
}

func (s *PostgresStore) ClearCardURL(ctx context.Context, matchID string) error {
	id, err := parseID(matchID, match.ErrNotFound)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE matches SET card_url = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear card url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return match.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListUncachedMatches(ctx context.Context, cursor string, limit int) (*Page, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// Default limit if not specified or negative
	if limit <= 0 {
		limit = 100
	}

	var after Cursor
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		after = c
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, created_at
		FROM matches
		WHERE card_url IS NULL AND (created_at, id) > ($1, $2)
		ORDER BY created_at, id
		LIMIT $3
	`, after.CreatedAt, after.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list uncached matches: %w", err)
	}
	defer rows.Close()

	page := &Page{}
	var last Cursor
	for rows.Next() {
		if err := rows.Scan(&last.ID, &last.CreatedAt); err != nil {
			return nil, fmt.Errorf("list uncached matches scan: %w", err)
		}
		page.MatchIDs = append(page.MatchIDs, last.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list uncached matches rows: %w", err)
	}

	// A full page may have more rows behind it.
	if len(page.MatchIDs) == limit {
		page.NextCursor = last.Encode()
		page.HasMore = true
	}
	return page, nil
}
