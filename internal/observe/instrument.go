package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/radiomirchi/pkg/provider/llm"
	"github.com/MrWong99/radiomirchi/pkg/provider/stt"
	"github.com/MrWong99/radiomirchi/pkg/provider/tts"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

// Provider kinds used as the "kind" attribute.
const (
	KindLLM = "llm"
	KindSTT = "stt"
	KindTTS = "tts"
)

// call wraps one provider request in a span, records its latency on h and
// counts it. The returned func must be called with the request's error.
func (m *Metrics) call(ctx context.Context, h metric.Float64Histogram, kind, provider, op string) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	}
	ctx, span := StartSpan(ctx, kind+"."+op, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		defer span.End()
		h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		status := "ok"
		if err != nil {
			status = "error"
			FailSpan(span, err)
			m.RecordProviderError(ctx, provider, kind)
		}
		m.RecordProviderRequest(ctx, provider, kind, status)
	}
}

// ── LLM ──────────────────────────────────────────────────────────────────────

type instrumentedLLM struct {
	llm.Provider
	name string
	m    *Metrics
}

// InstrumentLLM returns p wrapped so that every completion is traced and
// measured under the given provider name.
func InstrumentLLM(p llm.Provider, name string, m *Metrics) llm.Provider {
	return &instrumentedLLM{Provider: p, name: name, m: m}
}

func (p *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, done := p.m.call(ctx, p.m.LLMDuration, KindLLM, p.name, "complete")
	resp, err := p.Provider.Complete(ctx, req)
	done(err)
	return resp, err
}

// ── TTS ──────────────────────────────────────────────────────────────────────

type instrumentedTTS struct {
	tts.Provider
	name string
	m    *Metrics
}

// InstrumentTTS returns p wrapped so that every synthesis start is traced and
// measured. Errors reported on the stream after it opened are not counted.
func InstrumentTTS(p tts.Provider, name string, m *Metrics) tts.Provider {
	return &instrumentedTTS{Provider: p, name: name, m: m}
}

func (p *instrumentedTTS) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (tts.Stream, error) {
	ctx, done := p.m.call(ctx, p.m.TTSDuration, KindTTS, p.name, "synthesize")
	s, err := p.Provider.Synthesize(ctx, text, voice)
	done(err)
	return s, err
}

// ── STT ──────────────────────────────────────────────────────────────────────

type instrumentedSTT struct {
	stt.Provider
	name string
	m    *Metrics
}

// InstrumentSTT returns p wrapped so that stream starts and the final flush
// of every stream are traced and measured.
func InstrumentSTT(p stt.Provider, name string, m *Metrics) stt.Provider {
	return &instrumentedSTT{Provider: p, name: name, m: m}
}

func (p *instrumentedSTT) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	h, err := p.Provider.StartStream(ctx, cfg)
	if err != nil {
		p.m.RecordProviderError(ctx, p.name, KindSTT)
		p.m.RecordProviderRequest(ctx, p.name, KindSTT, "error")
		return nil, err
	}
	return &instrumentedHandle{SessionHandle: h, p: p}, nil
}

type instrumentedHandle struct {
	stt.SessionHandle
	p *instrumentedSTT
}

// Finish measures the time from end of audio to the last final.
func (h *instrumentedHandle) Finish(ctx context.Context) error {
	ctx, done := h.p.m.call(ctx, h.p.m.STTDuration, KindSTT, h.p.name, "finish")
	err := h.SessionHandle.Finish(ctx)
	done(err)
	return err
}
