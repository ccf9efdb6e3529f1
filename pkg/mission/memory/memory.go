// Package memory provides an in-memory implementation of [mission.Store].
//
// It is the default backend for local play and the store used by the session
// engine's tests. Data is lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/radiomirchi/pkg/mission"
)

// Compile-time assertion that Store satisfies mission.Store.
var _ mission.Store = (*Store)(nil)

// Store is a thread-safe, in-memory mission store. The zero value is ready to use.
type Store struct {
	mu       sync.RWMutex
	missions map[string]*mission.Mission
	history  map[string][]mission.Utterance
}

// New returns an initialised Store.
func New() *Store {
	return &Store{
		missions: make(map[string]*mission.Mission),
		history:  make(map[string][]mission.Utterance),
	}
}

func cloneMission(m *mission.Mission) *mission.Mission {
	c := *m
	c.ProofSentences = slices.Clone(m.ProofSentences)
	c.Speakers = slices.Clone(m.Speakers)
	return &c
}

// Get implements [mission.Store].
func (s *Store) Get(_ context.Context, id string) (*mission.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, mission.ErrNotFound
	}
	return cloneMission(m), nil
}

// Put implements [mission.Store].
func (s *Store) Put(_ context.Context, m *mission.Mission) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("memory store: put: mission id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missions == nil {
		s.missions = make(map[string]*mission.Mission)
	}
	s.missions[m.ID] = cloneMission(m)
	return nil
}

// AppendUtterance implements [mission.Store].
func (s *Store) AppendUtterance(_ context.Context, id string, u mission.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.missions[id]; !ok {
		return mission.ErrNotFound
	}
	if s.history == nil {
		s.history = make(map[string][]mission.Utterance)
	}
	s.history[id] = append(s.history[id], u)
	return nil
}

// History implements [mission.Store].
func (s *Store) History(_ context.Context, id string) ([]mission.Utterance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.missions[id]; !ok {
		return nil, mission.ErrNotFound
	}
	return slices.Clone(s.history[id]), nil
}

// SetAwakened implements [mission.Store].
func (s *Store) SetAwakened(_ context.Context, id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return mission.ErrNotFound
	}
	m.AwakenedListeners = n
	return nil
}

// Ping implements [mission.Store]. It always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements [mission.Store]. It is a no-op.
func (s *Store) Close() error { return nil }
