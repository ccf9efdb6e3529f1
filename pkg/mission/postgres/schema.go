// Package postgres provides a PostgreSQL-backed implementation of
// [mission.Store] using a [pgxpool.Pool].
//
// Mission records live in the missions table; the append-only conversation
// history lives in mission_utterances, ordered by its BIGSERIAL id.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlMissions = `
CREATE TABLE IF NOT EXISTS missions (
    id                 TEXT         PRIMARY KEY,
    topic              TEXT         NOT NULL DEFAULT '',
    summary            TEXT         NOT NULL DEFAULT '',
    proof_sentences    TEXT[]       NOT NULL DEFAULT '{}',
    speakers           JSONB        NOT NULL DEFAULT '[]',
    initial_listeners  INTEGER      NOT NULL,
    awakened_listeners INTEGER      NOT NULL DEFAULT 0,
    dialogue_prompt    TEXT         NOT NULL DEFAULT '',
    status             TEXT         NOT NULL DEFAULT 'ready',
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlUtterances = `
CREATE TABLE IF NOT EXISTS mission_utterances (
    id          BIGSERIAL    PRIMARY KEY,
    mission_id  TEXT         NOT NULL REFERENCES missions (id) ON DELETE CASCADE,
    speaker     TEXT         NOT NULL DEFAULT '',
    text        TEXT         NOT NULL DEFAULT '',
    kind        TEXT         NOT NULL,
    at          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_mission_utterances_mission_id
    ON mission_utterances (mission_id, id);
`

// Migrate creates the mission tables if they do not exist. It is idempotent
// and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlMissions, ddlUtterances} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
