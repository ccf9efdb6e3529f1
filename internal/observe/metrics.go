// Package observe provides application-wide observability primitives for
// Radio Mirchi: OpenTelemetry metrics, distributed tracing, trace-aware
// logging, provider instrumentation and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus through the bridge set up by [InitProvider]. Tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/radiomirchi"

// Line outcomes recorded on [Metrics.Lines].
const (
	OutcomeSpoken      = "spoken"
	OutcomeSkipped     = "skipped"
	OutcomeInterrupted = "interrupted"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Provider latency ---

	// LLMDuration tracks dialogue generation latency per provider.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks the time until a synthesis stream is open.
	TTSDuration metric.Float64Histogram

	// STTDuration tracks the time from the end of a user turn until the last
	// transcript arrived.
	STTDuration metric.Float64Histogram

	// ProviderRequests counts provider calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls by provider and kind.
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by provider and
	// target state.
	BreakerTransitions metric.Int64Counter

	// --- Sessions ---

	// ActiveSessions tracks the number of live broadcast sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SessionsEnded counts finished sessions by reason.
	SessionsEnded metric.Int64Counter

	// Lines counts host lines by outcome (spoken, skipped, interrupted).
	Lines metric.Int64Counter

	// AudioChunks counts audio chunks relayed to clients.
	AudioChunks metric.Int64Counter

	// UserTurns counts completed user turns by outcome (speech, silence).
	UserTurns metric.Int64Counter

	// GenerationFailures counts failed batch generations.
	GenerationFailures metric.Int64Counter

	// InvalidSignals counts client signals rejected in the current state.
	InvalidSignals metric.Int64Counter

	// DroppedAudio counts inbound audio frames dropped by a backed-up
	// recognizer.
	DroppedAudio metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by method and
	// route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for speech
// and language provider latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMDuration, err = m.Float64Histogram("radiomirchi.llm.duration",
		metric.WithDescription("Latency of dialogue generation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("radiomirchi.tts.duration",
		metric.WithDescription("Latency until a synthesis stream is open."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("radiomirchi.stt.duration",
		metric.WithDescription("Latency from end of user audio to final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("radiomirchi.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "radiomirchi.provider.requests", "Total provider calls by provider, kind, and status."},
		{&met.ProviderErrors, "radiomirchi.provider.errors", "Total provider errors by provider and kind."},
		{&met.BreakerTransitions, "radiomirchi.breaker.transitions", "Circuit breaker state changes by provider and state."},
		{&met.SessionsEnded, "radiomirchi.sessions.ended", "Finished sessions by reason."},
		{&met.Lines, "radiomirchi.lines", "Host lines by outcome."},
		{&met.AudioChunks, "radiomirchi.audio.chunks", "Audio chunks relayed to clients."},
		{&met.UserTurns, "radiomirchi.user_turns", "Completed user turns by outcome."},
		{&met.GenerationFailures, "radiomirchi.generation.failures", "Failed dialogue batch generations."},
		{&met.InvalidSignals, "radiomirchi.invalid_signals", "Client signals rejected by action."},
		{&met.DroppedAudio, "radiomirchi.audio.dropped", "Inbound audio frames dropped by a backed-up recognizer."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("radiomirchi.active_sessions",
		metric.WithDescription("Number of live broadcast sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Call it after [InitProvider] so
// the instruments bind to the exporting provider. Panics if instrument
// creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest records one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}

// RecordLine records a host line outcome.
func (m *Metrics) RecordLine(ctx context.Context, outcome string) {
	m.Lines.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
