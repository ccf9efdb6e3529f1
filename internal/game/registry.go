package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Factory builds the session for one connection. It may perform I/O (loading
// the mission, binding stores); the registry never holds its lock while it
// runs.
type Factory interface {
	NewSession(ctx context.Context, sessionID string, t Transport) (*Session, error)
}

// FactoryFunc adapts a function to [Factory].
type FactoryFunc func(ctx context.Context, sessionID string, t Transport) (*Session, error)

// NewSession implements [Factory].
func (f FactoryFunc) NewSession(ctx context.Context, sessionID string, t Transport) (*Session, error) {
	return f(ctx, sessionID, t)
}

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithOnRemove registers a hook called exactly once per session after it has
// been removed from the table. err is what the session's Run returned.
func WithOnRemove(fn func(sessionID string, err error)) RegistryOption {
	return func(r *Registry) { r.onRemove = fn }
}

// WithRegistryLogger sets the registry's logger. Defaults to slog.Default().
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// Registry is the process-wide table of live sessions, keyed by session ID.
// At most one session per ID exists at any time. It is safe for concurrent
// use and is passed explicitly to whatever accepts connections.
type Registry struct {
	factory  Factory
	onRemove func(sessionID string, err error)
	log      *slog.Logger

	root   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*registryEntry
	wg       sync.WaitGroup
}

type registryEntry struct {
	transport Transport
	session   *Session // nil while the factory runs
	cancel    context.CancelFunc
	once      sync.Once
}

// NewRegistry returns an empty registry that builds sessions with factory.
func NewRegistry(factory Factory, opts ...RegistryOption) *Registry {
	root, cancel := context.WithCancel(context.Background())
	r := &Registry{
		factory:  factory,
		log:      slog.Default(),
		root:     root,
		cancel:   cancel,
		sessions: make(map[string]*registryEntry),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register creates the session for sessionID and starts its control loop on
// its own goroutine. It fails with [ErrDuplicateSession] when the ID is
// already active; the ID is reserved before the factory runs, so concurrent
// connects for one ID cannot both succeed. A registration still in its
// factory when [Registry.CloseAll] runs fails with [ErrRegistryClosed], and
// [Registry.Wait] waits for it. ctx bounds only the factory; the session
// lives until it ends, [Registry.Unregister] or [Registry.CloseAll].
func (r *Registry) Register(ctx context.Context, sessionID string, t Transport) (*Session, error) {
	entry := &registryEntry{transport: t}

	r.mu.Lock()
	if r.root.Err() != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("game: register %q: %w", sessionID, ErrRegistryClosed)
	}
	if _, exists := r.sessions[sessionID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("game: register %q: %w", sessionID, ErrDuplicateSession)
	}
	r.sessions[sessionID] = entry
	// Counted from the reservation so Wait covers a running factory.
	r.wg.Add(1)
	r.mu.Unlock()

	sess, err := r.factory.NewSession(ctx, sessionID, t)
	if err != nil {
		r.release(sessionID, entry)
		return nil, fmt.Errorf("game: register %q: %w", sessionID, err)
	}

	runCtx, cancel := context.WithCancel(r.root)
	r.mu.Lock()
	if r.root.Err() != nil {
		r.mu.Unlock()
		cancel()
		r.release(sessionID, entry)
		return nil, fmt.Errorf("game: register %q: %w", sessionID, ErrRegistryClosed)
	}
	entry.session = sess
	entry.cancel = cancel
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		err := sess.Run(runCtx)
		cancel()
		r.remove(sessionID, entry, err)
	}()

	r.log.Info("session registered", "session_id", sessionID)
	return sess, nil
}

// Unregister releases the transport of sessionID and cancels all of its
// in-flight work. The entry is removed once the session has stopped. It
// reports whether a running session was found.
func (r *Registry) Unregister(sessionID string) bool {
	r.mu.Lock()
	entry := r.sessions[sessionID]
	r.mu.Unlock()
	if entry == nil || entry.cancel == nil {
		return false
	}
	entry.cancel()
	_ = entry.transport.Close()
	return true
}

// Lookup returns the running session for sessionID.
func (r *Registry) Lookup(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.sessions[sessionID]
	if entry == nil || entry.session == nil {
		return nil, false
	}
	return entry.session, true
}

// Len returns the number of registered IDs, including reservations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll cancels every session and rejects further registrations.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.cancel()
	transports := make([]Transport, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.session != nil {
			transports = append(transports, e.transport)
		}
	}
	r.mu.Unlock()

	for _, t := range transports {
		_ = t.Close()
	}
}

// Wait blocks until every started session has been removed or ctx ends. It
// reports whether all sessions finished.
func (r *Registry) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// remove deletes entry and runs the hook, exactly once per entry.
func (r *Registry) remove(sessionID string, entry *registryEntry, err error) {
	entry.once.Do(func() {
		r.mu.Lock()
		if r.sessions[sessionID] == entry {
			delete(r.sessions, sessionID)
		}
		r.mu.Unlock()

		r.log.Info("session unregistered", "session_id", sessionID)
		if r.onRemove != nil {
			r.onRemove(sessionID, err)
		}
	})
}

// release drops a reservation that never started a session.
func (r *Registry) release(sessionID string, entry *registryEntry) {
	r.mu.Lock()
	if r.sessions[sessionID] == entry {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	r.wg.Done()
}
