package resilience

import (
	"context"

	"github.com/MrWong99/radiomirchi/pkg/provider/stt"
)

// STTFailover is an [stt.Provider] that fails over across recognition
// backends when a stream cannot be opened.
type STTFailover struct {
	*Failover[stt.Provider]
}

var _ stt.Provider = (*STTFailover)(nil)

// NewSTTFailover returns a failover with primary as the preferred backend.
func NewSTTFailover(name string, primary stt.Provider, cfg FailoverConfig) *STTFailover {
	return &STTFailover{NewFailover(name, primary, cfg)}
}

// StartStream opens a stream on the first healthy backend.
func (f *STTFailover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return Call(ctx, f.Failover, func(ctx context.Context, p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
