// Package events publishes session lifecycle events to NATS so that other
// services (score boards, moderation, analytics) can follow a broadcast
// without touching the session engine.
//
// Subjects are "<prefix>.session.started", ".ended", ".line_spoken" and
// ".user_turn"; payloads are JSON [Event] values.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/radiomirchi/internal/game"
	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when the configuration leaves the prefix empty.
const DefaultSubjectPrefix = "radiomirchi"

// Event types; also the last subject token.
const (
	TypeSessionStarted = "session.started"
	TypeSessionEnded   = "session.ended"
	TypeLineSpoken     = "session.line_spoken"
	TypeUserTurn       = "session.user_turn"
)

// Event is the JSON payload of every published message.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`

	Speaker           string `json:"speaker,omitempty"`
	Text              string `json:"text,omitempty"`
	AwakenedListeners *int   `json:"awakened_listeners,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Publisher sends one message. [*nats.Conn] implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// Config describes the NATS connection.
type Config struct {
	URL           string
	SubjectPrefix string
	Name          string
	Timeout       time.Duration
}

// Bus owns a NATS connection.
type Bus struct {
	conn *nats.Conn
	log  *slog.Logger
}

// Connect dials NATS.
func Connect(cfg Config, log *slog.Logger) (*Bus, error) {
	if cfg.URL == "" {
		return nil, errors.New("events: nats url must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "radiomirchi"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	conn, err := nats.Connect(cfg.URL, nats.Name(name), nats.Timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("events: connect to nats: %w", err)
	}
	log.Info("connected to NATS", "url", cfg.URL)
	return &Bus{conn: conn, log: log}, nil
}

// Conn returns the underlying connection.
func (b *Bus) Conn() *nats.Conn { return b.conn }

// Healthy reports whether the connection is up.
func (b *Bus) Healthy() bool {
	return b != nil && b.conn != nil && b.conn.Status() == nats.CONNECTED
}

// Close drains pending messages and closes the connection.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	b.log.Info("closing NATS connection")
	if err := b.conn.Drain(); err != nil {
		b.log.Warn("nats drain failed", "err", err)
	}
	b.conn.Close()
}

// ── Observer ─────────────────────────────────────────────────────────────────

// Observer publishes the lifecycle notifications of [game.Session]. Publish
// errors are logged and never reach the session.
type Observer struct {
	game.NopObserver

	pub    Publisher
	prefix string
	log    *slog.Logger
	now    func() time.Time
}

var _ game.Observer = (*Observer)(nil)

// NewObserver returns an observer publishing under prefix.
func NewObserver(pub Publisher, prefix string, log *slog.Logger) *Observer {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &Observer{pub: pub, prefix: prefix, log: log, now: time.Now}
}

func (o *Observer) publish(e Event) {
	e.At = o.now().UTC()
	data, err := json.Marshal(e)
	if err != nil {
		o.log.Error("marshal event", "type", e.Type, "err", err)
		return
	}
	subject := o.prefix + "." + e.Type
	if err := o.pub.Publish(subject, data); err != nil {
		o.log.Warn("publish event", "subject", subject, "session_id", e.SessionID, "err", err)
	}
}

func (o *Observer) SessionStarted(id string) {
	o.publish(Event{Type: TypeSessionStarted, SessionID: id})
}

func (o *Observer) SessionEnded(id string, err error) {
	e := Event{Type: TypeSessionEnded, SessionID: id}
	if err != nil {
		e.Error = err.Error()
	}
	o.publish(e)
}

func (o *Observer) LineSpoken(id string, line mission.DialogueLine, _ int, awakened int) {
	o.publish(Event{Type: TypeLineSpoken, SessionID: id, Speaker: line.Speaker, Text: line.Text, AwakenedListeners: &awakened})
}

func (o *Observer) UserTurn(id string, transcript string) {
	o.publish(Event{Type: TypeUserTurn, SessionID: id, Speaker: mission.UserSpeaker, Text: transcript})
}
