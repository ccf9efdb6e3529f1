package mission

import (
	"context"
	"fmt"
	"time"
)

// Store persists missions and their conversation history.
//
// Implementations must be safe for concurrent use. History is append-only:
// History returns utterances in the order they were appended.
type Store interface {
	// Get returns the mission with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Mission, error)

	// Put creates or replaces a mission record. Existing history is kept.
	Put(ctx context.Context, m *Mission) error

	// AppendUtterance appends u to the history of mission id.
	AppendUtterance(ctx context.Context, id string, u Utterance) error

	// History returns the ordered history of mission id.
	History(ctx context.Context, id string) ([]Utterance, error)

	// SetAwakened stores the awakened listener count of mission id.
	SetAwakened(ctx context.Context, id string, n int) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Context is a read/append handle onto one mission's conversation. It holds
// no private copy of the history, so every reader sees the store's state.
type Context struct {
	store Store
	id    string
	now   func() time.Time
}

// Bind returns a Context for mission id backed by store.
func Bind(store Store, id string) *Context {
	return &Context{store: store, id: id, now: time.Now}
}

// ID returns the bound mission ID.
func (c *Context) ID() string { return c.id }

// Append adds u to the history, stamping At when it is zero.
func (c *Context) Append(ctx context.Context, u Utterance) error {
	if u.At.IsZero() {
		u.At = c.now().UTC()
	}
	if err := c.store.AppendUtterance(ctx, c.id, u); err != nil {
		return fmt.Errorf("mission: append %s utterance: %w", u.Kind, err)
	}
	return nil
}

// History returns the ordered history.
func (c *Context) History(ctx context.Context) ([]Utterance, error) {
	h, err := c.store.History(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("mission: read history: %w", err)
	}
	return h, nil
}

// SetAwakened persists the awakened listener count.
func (c *Context) SetAwakened(ctx context.Context, n int) error {
	if err := c.store.SetAwakened(ctx, c.id, n); err != nil {
		return fmt.Errorf("mission: set awakened: %w", err)
	}
	return nil
}
