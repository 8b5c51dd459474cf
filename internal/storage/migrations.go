package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id           UUID PRIMARY KEY,
		display_name TEXT NOT NULL,
		photo_url    TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id                UUID PRIMARY KEY,
		title             TEXT NOT NULL DEFAULT '',
		played_at         TIMESTAMPTZ,
		scores            JSONB NOT NULL DEFAULT '[]',
		card_url          TEXT,
		card_version      BIGINT NOT NULL DEFAULT 0,
		card_generated_at TIMESTAMPTZ,
		score_revision    BIGINT NOT NULL DEFAULT 0,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE matches ADD COLUMN IF NOT EXISTS score_revision BIGINT NOT NULL DEFAULT 0`,
	`CREATE TABLE IF NOT EXISTS match_participants (
		match_id  UUID NOT NULL REFERENCES matches (id) ON DELETE CASCADE,
		player_id UUID NOT NULL REFERENCES players (id),
		side      SMALLINT NOT NULL CHECK (side IN (0, 1)),
		seat      SMALLINT NOT NULL,

		PRIMARY KEY (match_id, player_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_participants_player
		ON match_participants (player_id)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_uncached
		ON matches (created_at, id) WHERE card_url IS NULL`,
}

// RunMigrations creates the players, matches and match_participants tables.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for i, ddl := range schema {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
