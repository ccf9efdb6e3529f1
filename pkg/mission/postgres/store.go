package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/radiomirchi/pkg/mission"
)

// Compile-time interface check.
var _ mission.Store = (*Store)(nil)

// Store is the PostgreSQL-backed mission store. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a connection pool to the database at dsn, pings it and
// runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Get implements [mission.Store].
func (s *Store) Get(ctx context.Context, id string) (*mission.Mission, error) {
	const q = `
		SELECT id, topic, summary, proof_sentences, speakers, initial_listeners,
		       awakened_listeners, dialogue_prompt, status, created_at
		FROM   missions
		WHERE  id = $1`

	var (
		m        mission.Mission
		speakers []byte
		status   string
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&m.ID, &m.Topic, &m.Summary, &m.ProofSentences, &speakers,
		&m.InitialListeners, &m.AwakenedListeners, &m.DialoguePrompt, &status, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, mission.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get mission: %w", err)
	}
	if err := json.Unmarshal(speakers, &m.Speakers); err != nil {
		return nil, fmt.Errorf("postgres store: decode speakers: %w", err)
	}
	m.Status = mission.Status(status)
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

// Put implements [mission.Store]. Existing rows are updated in place so the
// mission's history survives.
func (s *Store) Put(ctx context.Context, m *mission.Mission) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("postgres store: put: mission id must not be empty")
	}
	speakers, err := json.Marshal(m.Speakers)
	if err != nil {
		return fmt.Errorf("postgres store: encode speakers: %w", err)
	}
	proof := m.ProofSentences
	if proof == nil {
		proof = []string{}
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	status := m.Status
	if status == "" {
		status = mission.StatusReady
	}

	const q = `
		INSERT INTO missions
		    (id, topic, summary, proof_sentences, speakers, initial_listeners,
		     awakened_listeners, dialogue_prompt, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    topic              = EXCLUDED.topic,
		    summary            = EXCLUDED.summary,
		    proof_sentences    = EXCLUDED.proof_sentences,
		    speakers           = EXCLUDED.speakers,
		    initial_listeners  = EXCLUDED.initial_listeners,
		    awakened_listeners = EXCLUDED.awakened_listeners,
		    dialogue_prompt    = EXCLUDED.dialogue_prompt,
		    status             = EXCLUDED.status`

	_, err = s.pool.Exec(ctx, q,
		m.ID, m.Topic, m.Summary, proof, string(speakers), m.InitialListeners,
		m.AwakenedListeners, m.DialoguePrompt, string(status), created,
	)
	if err != nil {
		return fmt.Errorf("postgres store: put mission: %w", err)
	}
	return nil
}

// AppendUtterance implements [mission.Store].
func (s *Store) AppendUtterance(ctx context.Context, id string, u mission.Utterance) error {
	const q = `
		INSERT INTO mission_utterances (mission_id, speaker, text, kind, at)
		SELECT $1, $2, $3, $4, $5
		WHERE  EXISTS (SELECT 1 FROM missions WHERE id = $1)`

	at := u.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, q, id, u.Speaker, u.Text, string(u.Kind), at)
	if err != nil {
		return fmt.Errorf("postgres store: append utterance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mission.ErrNotFound
	}
	return nil
}

// History implements [mission.Store].
func (s *Store) History(ctx context.Context, id string) ([]mission.Utterance, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}

	const q = `
		SELECT speaker, text, kind, at
		FROM   mission_utterances
		WHERE  mission_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres store: history: %w", err)
	}
	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (mission.Utterance, error) {
		var (
			u    mission.Utterance
			kind string
		)
		if err := row.Scan(&u.Speaker, &u.Text, &kind, &u.At); err != nil {
			return mission.Utterance{}, err
		}
		u.Kind = mission.Kind(kind)
		u.At = u.At.UTC()
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan history: %w", err)
	}
	return history, nil
}

// SetAwakened implements [mission.Store].
func (s *Store) SetAwakened(ctx context.Context, id string, n int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE missions SET awakened_listeners = $2 WHERE id = $1`, id, n)
	if err != nil {
		return fmt.Errorf("postgres store: set awakened: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mission.ErrNotFound
	}
	return nil
}

// Ping implements [mission.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [mission.Store]. It releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) exists(ctx context.Context, id string) error {
	var ok bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM missions WHERE id = $1)`, id).Scan(&ok); err != nil {
		return fmt.Errorf("postgres store: lookup mission: %w", err)
	}
	if !ok {
		return mission.ErrNotFound
	}
	return nil
}
