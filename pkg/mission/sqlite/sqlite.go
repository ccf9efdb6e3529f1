// Package sqlite provides a single-file [mission.Store] backed by SQLite via
// the pure-Go modernc.org/sqlite driver. It suits single-node deployments and
// local development where running PostgreSQL is overkill.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/MrWong99/radiomirchi/pkg/mission"
)

var _ mission.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS missions (
    id                 TEXT    PRIMARY KEY,
    topic              TEXT    NOT NULL DEFAULT '',
    summary            TEXT    NOT NULL DEFAULT '',
    proof_sentences    TEXT    NOT NULL DEFAULT '[]',
    speakers           TEXT    NOT NULL DEFAULT '[]',
    initial_listeners  INTEGER NOT NULL,
    awakened_listeners INTEGER NOT NULL DEFAULT 0,
    dialogue_prompt    TEXT    NOT NULL DEFAULT '',
    status             TEXT    NOT NULL DEFAULT 'ready',
    created_at         TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS mission_utterances (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    mission_id TEXT    NOT NULL REFERENCES missions (id) ON DELETE CASCADE,
    speaker    TEXT    NOT NULL DEFAULT '',
    text       TEXT    NOT NULL DEFAULT '',
    kind       TEXT    NOT NULL,
    at         TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mission_utterances_mission_id
    ON mission_utterances (mission_id, id);
`

// Store is a SQLite-backed mission store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database file at path and applies
// the schema. WAL journaling and foreign keys are enabled on every
// connection.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Get implements [mission.Store].
func (s *Store) Get(ctx context.Context, id string) (*mission.Mission, error) {
	const q = `
		SELECT id, topic, summary, proof_sentences, speakers, initial_listeners,
		       awakened_listeners, dialogue_prompt, status, created_at
		FROM   missions WHERE id = ?`

	var (
		m               mission.Mission
		proof, speakers string
		status, created string
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&m.ID, &m.Topic, &m.Summary, &proof, &speakers,
		&m.InitialListeners, &m.AwakenedListeners, &m.DialoguePrompt, &status, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mission.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get mission: %w", err)
	}
	if err := json.Unmarshal([]byte(proof), &m.ProofSentences); err != nil {
		return nil, fmt.Errorf("sqlite store: decode proof sentences: %w", err)
	}
	if err := json.Unmarshal([]byte(speakers), &m.Speakers); err != nil {
		return nil, fmt.Errorf("sqlite store: decode speakers: %w", err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("sqlite store: decode created_at: %w", err)
	}
	m.Status = mission.Status(status)
	return &m, nil
}

// Put implements [mission.Store]. An existing mission is updated in place and
// keeps its history.
func (s *Store) Put(ctx context.Context, m *mission.Mission) error {
	if m == nil || m.ID == "" {
		return errors.New("sqlite store: put: mission id must not be empty")
	}
	proofSrc := m.ProofSentences
	if proofSrc == nil {
		proofSrc = []string{}
	}
	proof, err := json.Marshal(proofSrc)
	if err != nil {
		return fmt.Errorf("sqlite store: encode proof sentences: %w", err)
	}
	speakersSrc := m.Speakers
	if speakersSrc == nil {
		speakersSrc = []mission.Speaker{}
	}
	speakers, err := json.Marshal(speakersSrc)
	if err != nil {
		return fmt.Errorf("sqlite store: encode speakers: %w", err)
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	status := m.Status
	if status == "" {
		status = mission.StatusReady
	}

	const q = `
		INSERT INTO missions
		    (id, topic, summary, proof_sentences, speakers, initial_listeners,
		     awakened_listeners, dialogue_prompt, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		    topic              = excluded.topic,
		    summary            = excluded.summary,
		    proof_sentences    = excluded.proof_sentences,
		    speakers           = excluded.speakers,
		    initial_listeners  = excluded.initial_listeners,
		    awakened_listeners = excluded.awakened_listeners,
		    dialogue_prompt    = excluded.dialogue_prompt,
		    status             = excluded.status`

	_, err = s.db.ExecContext(ctx, q,
		m.ID, m.Topic, m.Summary, string(proof), string(speakers), m.InitialListeners,
		m.AwakenedListeners, m.DialoguePrompt, string(status), created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: put mission: %w", err)
	}
	return nil
}

// AppendUtterance implements [mission.Store].
func (s *Store) AppendUtterance(ctx context.Context, id string, u mission.Utterance) error {
	const q = `
		INSERT INTO mission_utterances (mission_id, speaker, text, kind, at)
		SELECT ?, ?, ?, ?, ?
		WHERE  EXISTS (SELECT 1 FROM missions WHERE id = ?)`

	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	res, err := s.db.ExecContext(ctx, q, id, u.Speaker, u.Text, string(u.Kind), at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("sqlite store: append utterance: %w", err)
	}
	return notFoundIfNone(res)
}

// History implements [mission.Store].
func (s *Store) History(ctx context.Context, id string) ([]mission.Utterance, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM missions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mission.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: lookup mission: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT speaker, text, kind, at FROM mission_utterances WHERE mission_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: history: %w", err)
	}
	defer rows.Close()

	var history []mission.Utterance
	for rows.Next() {
		var (
			u        mission.Utterance
			kind, at string
		)
		if err := rows.Scan(&u.Speaker, &u.Text, &kind, &at); err != nil {
			return nil, fmt.Errorf("sqlite store: scan history: %w", err)
		}
		u.Kind = mission.Kind(kind)
		if u.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("sqlite store: decode utterance time: %w", err)
		}
		history = append(history, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: history rows: %w", err)
	}
	return history, nil
}

// SetAwakened implements [mission.Store].
func (s *Store) SetAwakened(ctx context.Context, id string, n int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE missions SET awakened_listeners = ? WHERE id = ?`, n, id)
	if err != nil {
		return fmt.Errorf("sqlite store: set awakened: %w", err)
	}
	return notFoundIfNone(res)
}

// Ping implements [mission.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [mission.Store].
func (s *Store) Close() error {
	return s.db.Close()
}

func notFoundIfNone(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store: rows affected: %w", err)
	}
	if n == 0 {
		return mission.ErrNotFound
	}
	return nil
}
