package observe

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/radiomirchi/internal/game"
	"github.com/MrWong99/radiomirchi/pkg/mission"
)

// Session end reasons recorded on [Metrics.SessionsEnded].
const (
	ReasonClosed     = "closed"
	ReasonDisconnect = "disconnect"
	ReasonCancelled  = "cancelled"
	ReasonError      = "error"
)

// EndReason classifies the error a session finished with.
func EndReason(err error) string {
	switch {
	case err == nil:
		return ReasonClosed
	case errors.Is(err, game.ErrTransportDisconnect):
		return ReasonDisconnect
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	default:
		return ReasonError
	}
}

// SessionObserver records session lifecycle notifications as metrics.
type SessionObserver struct {
	game.NopObserver
	m *Metrics
}

var _ game.Observer = (*SessionObserver)(nil)

// NewSessionObserver returns a [game.Observer] that feeds m.
func NewSessionObserver(m *Metrics) *SessionObserver {
	return &SessionObserver{m: m}
}

func (o *SessionObserver) SessionStarted(string) {
	o.m.ActiveSessions.Add(context.Background(), 1)
}

func (o *SessionObserver) SessionEnded(_ string, err error) {
	ctx := context.Background()
	o.m.ActiveSessions.Add(ctx, -1)
	o.m.SessionsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", EndReason(err))))
}

func (o *SessionObserver) LineSpoken(_ string, _ mission.DialogueLine, chunks, _ int) {
	ctx := context.Background()
	o.m.RecordLine(ctx, OutcomeSpoken)
	o.m.AudioChunks.Add(ctx, int64(chunks))
}

func (o *SessionObserver) LineSkipped(string, mission.DialogueLine, error) {
	o.m.RecordLine(context.Background(), OutcomeSkipped)
}

func (o *SessionObserver) LineInterrupted(string, mission.DialogueLine) {
	o.m.RecordLine(context.Background(), OutcomeInterrupted)
}

func (o *SessionObserver) UserTurn(_ string, transcript string) {
	outcome := "speech"
	if strings.TrimSpace(transcript) == "" {
		outcome = "silence"
	}
	o.m.UserTurns.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (o *SessionObserver) GenerationFailed(string, *game.GenerationError) {
	o.m.GenerationFailures.Add(context.Background(), 1)
}

func (o *SessionObserver) InvalidSignal(_ string, err *game.InvalidSignalError) {
	o.m.InvalidSignals.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("action", string(err.Action))))
}

func (o *SessionObserver) AudioDropped(string) {
	o.m.DroppedAudio.Add(context.Background(), 1)
}
