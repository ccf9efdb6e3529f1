package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestCorrelationID(t *testing.T) {
	t.Parallel()
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	tp, _ := newTestTracerProvider(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "session")
	defer span.End()
	if got, want := CorrelationID(ctx), span.SpanContext().TraceID().String(); got != want {
		t.Errorf("CorrelationID = %q, want %q", got, want)
	}
}

// Not parallel: swaps the global tracer provider.
func TestStartSpan_FailSpan(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	_, ok := StartSpan(context.Background(), "tts.synthesize")
	FailSpan(ok, nil)
	ok.End()

	_, failed := StartSpan(context.Background(), "llm.complete")
	FailSpan(failed, errors.New("quota exceeded"))
	failed.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code == codes.Error {
		t.Errorf("span %q marked failed by a nil error", spans[0].Name)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "quota exceeded" {
		t.Errorf("span %q status = %+v", spans[1].Name, spans[1].Status)
	}
	if len(spans[1].Events) == 0 {
		t.Error("failed span has no error event")
	}
}

func TestWithTrace(t *testing.T) {
	t.Parallel()
	tp, _ := newTestTracerProvider(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "ws")
	defer span.End()

	l, buf := bufferLogger()
	WithTrace(l, ctx).Info("session started")

	out := buf.String()
	if want := "trace_id=" + span.SpanContext().TraceID().String(); !strings.Contains(out, want) {
		t.Errorf("log output missing %q: %s", want, out)
	}
	if !strings.Contains(out, "span_id=") {
		t.Errorf("log output missing span_id: %s", out)
	}
}

func TestWithTrace_NoSpan(t *testing.T) {
	t.Parallel()
	l, buf := bufferLogger()
	if got := WithTrace(l, context.Background()); got != l {
		t.Error("logger without a span should be returned unchanged")
	}
	l.Info("plain")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("unexpected trace_id: %s", buf.String())
	}
	if WithTrace(nil, context.Background()) == nil {
		t.Error("nil logger should fall back to slog.Default")
	}
}
