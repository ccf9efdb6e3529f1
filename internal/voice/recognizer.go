package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/provider/stt"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// Audio format of the browser client's microphone stream.
const (
	ClientSampleRate = 16000
	ClientChannels   = 1
	DefaultLanguage  = "en-US"

	defaultFinishTimeout = 5 * time.Second
	hostNameBoost        = 2
)

// Recognizer runs one streaming recognition per user turn.
type Recognizer struct {
	stt           stt.Provider
	cfg           stt.StreamConfig
	finishTimeout time.Duration
	nameThreshold float64
	names         *NameCorrector
	log           *slog.Logger
}

// RecognizerOption configures a [Recognizer].
type RecognizerOption func(*Recognizer)

// WithLanguage overrides the recognition language.
func WithLanguage(lang string) RecognizerOption {
	return func(r *Recognizer) { r.cfg.Language = lang }
}

// WithFinishTimeout bounds how long the provider may take to flush its last
// results after the user released the talk button.
func WithFinishTimeout(d time.Duration) RecognizerOption {
	return func(r *Recognizer) { r.finishTimeout = d }
}

// WithNameThreshold sets the similarity a misheard phrase needs before it is
// rewritten to a host name.
func WithNameThreshold(t float64) RecognizerOption {
	return func(r *Recognizer) { r.nameThreshold = t }
}

// WithRecognizerLogger sets the logger.
func WithRecognizerLogger(l *slog.Logger) RecognizerOption {
	return func(r *Recognizer) { r.log = l }
}

// NewRecognizer returns a recognizer for m's sessions. The host names are
// passed to the provider as keyword hints.
func NewRecognizer(p stt.Provider, m *mission.Mission, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		stt: p,
		cfg: stt.StreamConfig{
			SampleRate: ClientSampleRate,
			Channels:   ClientChannels,
			Language:   DefaultLanguage,
		},
		finishTimeout: defaultFinishTimeout,
		log:           slog.Default(),
	}
	names := make([]string, 0, len(m.Speakers))
	for _, s := range m.Speakers {
		r.cfg.Keywords = append(r.cfg.Keywords, types.KeywordBoost{Keyword: s.Name, Boost: hostNameBoost})
		names = append(names, s.Name)
	}
	for _, o := range opts {
		o(r)
	}
	r.names = NewNameCorrector(names, r.nameThreshold)
	return r
}

// Recognize streams audio to the provider until the channel is closed, then
// returns the final transcripts joined by spaces. Audio keeps being drained
// when the stream cannot be opened or stops accepting chunks. A stream that
// fails to accept audio or to finish returns an error and no text, even when
// some finals already arrived.
func (r *Recognizer) Recognize(ctx context.Context, audio <-chan []byte) (string, error) {
	h, err := r.stt.StartStream(ctx, r.cfg)
	if err != nil {
		drain(ctx, audio)
		return "", fmt.Errorf("voice: start stream: %w", err)
	}

	collected := make(chan []string, 1)
	go func() {
		var parts []string
		for t := range h.Finals() {
			if s := strings.TrimSpace(t.Text); s != "" {
				parts = append(parts, s)
			}
		}
		collected <- parts
	}()

	var sendErr error
loop:
	for {
		select {
		case <-ctx.Done():
			_ = h.Close()
			<-collected
			return "", ctx.Err()
		case chunk, ok := <-audio:
			if !ok {
				break loop
			}
			if sendErr != nil {
				continue
			}
			if err := h.SendAudio(chunk); err != nil {
				sendErr = err
				r.log.Warn("stt send failed, dropping rest of turn", "err", err)
			}
		}
	}

	fctx, cancel := context.WithTimeout(ctx, r.finishTimeout)
	finishErr := h.Finish(fctx)
	cancel()
	if finishErr != nil {
		// Finish may give up before closing Finals.
		_ = h.Close()
	}
	parts := <-collected

	// A broken stream yields nothing rather than a partial turn.
	if finishErr != nil {
		if len(parts) > 0 {
			r.log.Warn("stt finish failed, discarding partial transcript", "err", finishErr, "finals", len(parts))
		}
		return "", fmt.Errorf("voice: finish stream: %w", finishErr)
	}
	if sendErr != nil {
		if len(parts) > 0 {
			r.log.Warn("stt send failed, discarding partial transcript", "err", sendErr, "finals", len(parts))
		}
		return "", fmt.Errorf("voice: send audio: %w", sendErr)
	}

	text := strings.Join(parts, " ")
	if fixed := r.names.Correct(text); fixed != text {
		r.log.Debug("corrected host names in transcript", "heard", text, "corrected", fixed)
		text = fixed
	}
	return text, nil
}

func drain(ctx context.Context, audio <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-audio:
			if !ok {
				return
			}
		}
	}
}
