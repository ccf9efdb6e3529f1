package observe

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// missionPathValue is the path wildcard naming the mission of a session route.
const missionPathValue = "mission_id"

// responseTracker remembers the status a handler answered with. Hijacking is
// forwarded so WebSocket upgrades work behind [Middleware].
type responseTracker struct {
	http.ResponseWriter
	status   int
	upgraded bool
}

func (rt *responseTracker) WriteHeader(code int) {
	rt.status = code
	rt.ResponseWriter.WriteHeader(code)
}

func (rt *responseTracker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rt.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("observe: %T does not support hijacking", rt.ResponseWriter)
	}
	conn, brw, err := hj.Hijack()
	if err != nil {
		return nil, nil, err
	}
	rt.upgraded = true
	rt.status = http.StatusSwitchingProtocols
	return conn, brw, nil
}

func (rt *responseTracker) Flush() {
	if f, ok := rt.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (rt *responseTracker) Unwrap() http.ResponseWriter { return rt.ResponseWriter }

// routeOf returns the path part of the pattern the mux matched for r.
func routeOf(r *http.Request) string {
	route := r.Pattern
	if _, path, ok := strings.Cut(route, " "); ok {
		route = path
	}
	if route == "" {
		return "unmatched"
	}
	return route
}

// Middleware traces, times and logs every request.
//
// Incoming W3C trace context is continued, the trace ID is echoed as
// X-Correlation-ID, and the request duration is recorded on
// [Metrics.HTTPRequestDuration] by method and matched route. Session routes
// carry the mission ID on the span and the log line. A WebSocket request is
// measured for the lifetime of the connection. Responses of 500 and above
// mark the span as failed.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			// The mux records its match on the request it is handed.
			r = r.WithContext(ctx)
			rt := &responseTracker{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rt, r)
			elapsed := time.Since(start)

			route := routeOf(r)
			mission := r.PathValue(missionPathValue)
			span.SetName("HTTP " + r.Method + " " + route)
			span.SetAttributes(semconv.HTTPRoute(route), semconv.HTTPResponseStatusCode(rt.status))
			if mission != "" {
				span.SetAttributes(attribute.String("radiomirchi.mission_id", mission))
			}

			level := slog.LevelInfo
			if rt.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rt.status))
				level = slog.LevelWarn
			}

			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
			))

			attrs := []slog.Attr{
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", rt.status),
				slog.Duration("duration", elapsed),
			}
			if mission != "" {
				attrs = append(attrs, slog.String("mission_id", mission))
			}
			if rt.upgraded {
				attrs = append(attrs, slog.Bool("upgraded", true))
			}
			slog.LogAttrs(ctx, level, "request completed", attrs...)
		})
	}
}
