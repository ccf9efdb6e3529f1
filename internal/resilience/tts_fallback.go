package resilience

import (
	"context"

	"github.com/MrWong99/radiomirchi/pkg/provider/tts"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// TTSFailover is a [tts.Provider] that fails over across synthesis backends.
// Only starting a stream fails over; once audio flows, a stream error is the
// relay's to handle since part of the line has already played.
type TTSFailover struct {
	*Failover[tts.Provider]
}

var _ tts.Provider = (*TTSFailover)(nil)

// NewTTSFailover returns a failover with primary as the preferred backend.
func NewTTSFailover(name string, primary tts.Provider, cfg FailoverConfig) *TTSFailover {
	return &TTSFailover{NewFailover(name, primary, cfg)}
}

// Synthesize starts a stream on the first healthy backend.
func (f *TTSFailover) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (tts.Stream, error) {
	return Call(ctx, f.Failover, func(ctx context.Context, p tts.Provider) (tts.Stream, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices lists the voices of the first healthy backend.
func (f *TTSFailover) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return Call(ctx, f.Failover, func(ctx context.Context, p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
