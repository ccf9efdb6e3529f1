package app

import (
	"context"
	"fmt"

	"github.com/MrWong99/radiomirchi/internal/dialogue"
	"github.com/MrWong99/radiomirchi/internal/game"
	"github.com/MrWong99/radiomirchi/internal/voice"
	"github.com/MrWong99/radiomirchi/pkg/mission"
)

// newSession is the registry's factory: it loads the mission behind
// sessionID and assembles the per-session collaborators around the shared
// providers. Sessions take the tuning current at connect time.
func (a *App) newSession(ctx context.Context, sessionID string, t game.Transport) (*game.Session, error) {
	m, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("app: load mission %q: %w", sessionID, err)
	}
	if m.Status != mission.StatusReady {
		return nil, fmt.Errorf("app: mission %q is %s: %w", sessionID, m.Status, mission.ErrNotReady)
	}

	tuning := a.Tuning()
	log := a.log.With("session_id", sessionID)

	genOpts := []dialogue.Option{dialogue.WithLogger(log)}
	if tuning.Temperature > 0 {
		genOpts = append(genOpts, dialogue.WithTemperature(tuning.Temperature))
	}
	if tuning.HistoryTokenBudget > 0 {
		genOpts = append(genOpts, dialogue.WithHistoryTokenBudget(tuning.HistoryTokenBudget))
	}
	gen, err := dialogue.New(a.providers.LLM, m, genOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: mission %q: %w", sessionID, err)
	}

	caster := voice.NewCaster(ctx, a.providers.TTS, m, a.catalogue, log)
	rec := voice.NewRecognizer(a.providers.STT, m, voice.WithRecognizerLogger(log))

	sess, err := game.NewSession(game.SessionConfig{
		ID:          sessionID,
		Mission:     m,
		Transport:   t,
		Generator:   gen,
		Synthesizer: a.providers.TTS,
		Recognizer:  rec,
		Context:     mission.Bind(a.store, sessionID),
		Voices:      caster.Voice,
		Tuning:      tuning.Tuning(),
		Logger:      log,
		Observer:    a.observers,
	})
	if err != nil {
		return nil, fmt.Errorf("app: mission %q: %w", sessionID, err)
	}
	return sess, nil
}
