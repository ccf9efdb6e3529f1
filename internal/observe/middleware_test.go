package observe

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// harness routes requests through Middleware in front of a mux that mirrors
// the broadcast server's routes. Tests using it swap the global tracer
// provider and must not run in parallel.
type harness struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
	seen    map[string]string // path -> correlation ID seen by the handler
}

// testSetup returns metrics bound to a manual reader and installs an
// in-memory tracer provider for the duration of the test.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return m, reader, exp
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	m, reader, exp := testSetup(t)
	h := &harness{reader: reader, spans: exp, seen: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/ws/{mission_id}", func(w http.ResponseWriter, r *http.Request) {
		h.seen[r.URL.Path] = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		h.seen[r.URL.Path] = CorrelationID(r.Context())
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	h.handler = Middleware(m)(mux)
	return h
}

func (h *harness) get(path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) lastSpan(t *testing.T) sdktrace.ReadOnlySpan {
	t.Helper()
	spans := h.spans.GetSpans().Snapshots()
	if len(spans) == 0 {
		t.Fatal("no span recorded")
	}
	return spans[len(spans)-1]
}

func spanAttr(s sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_CorrelationID(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/api/v1/ws/moon-cheese", nil)
	cid := h.seen["/api/v1/ws/moon-cheese"]
	if len(cid) != 32 {
		t.Fatalf("correlation ID %q, want 32 hex chars", cid)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != cid {
		t.Errorf("X-Correlation-ID = %q, want %q", got, cid)
	}

	const parent = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec = h.get("/readyz", http.Header{"Traceparent": {"00-" + parent + "-00f067aa0ba902b7-01"}})
	if h.seen["/readyz"] != parent {
		t.Errorf("continued trace ID = %q, want %q", h.seen["/readyz"], parent)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != parent {
		t.Errorf("X-Correlation-ID = %q, want %q", got, parent)
	}
}

func TestMiddleware_Spans(t *testing.T) {
	tests := []struct {
		path       string
		wantName   string
		wantStatus int64
		wantErr    bool
		wantMission string
	}{
		{"/api/v1/ws/moon-cheese", "HTTP GET /api/v1/ws/{mission_id}", 200, false, "moon-cheese"},
		{"/readyz", "HTTP GET /readyz", 503, true, ""},
		{"/boom", "HTTP GET /boom", 502, true, ""},
		{"/nowhere", "HTTP GET unmatched", 404, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			h := newHarness(t)
			h.get(tt.path, nil)
			s := h.lastSpan(t)

			if s.Name() != tt.wantName {
				t.Errorf("name = %q, want %q", s.Name(), tt.wantName)
			}
			if v, _ := spanAttr(s, "http.response.status_code"); v.AsInt64() != tt.wantStatus {
				t.Errorf("status attribute = %d, want %d", v.AsInt64(), tt.wantStatus)
			}
			if failed := s.Status().Code == codes.Error; failed != tt.wantErr {
				t.Errorf("span failed = %v, want %v", failed, tt.wantErr)
			}
			v, ok := spanAttr(s, "radiomirchi.mission_id")
			if tt.wantMission == "" && ok {
				t.Errorf("unexpected mission attribute %q", v.AsString())
			}
			if tt.wantMission != "" && v.AsString() != tt.wantMission {
				t.Errorf("mission attribute = %q, want %q", v.AsString(), tt.wantMission)
			}
		})
	}
}

func TestMiddleware_DurationByRoute(t *testing.T) {
	h := newHarness(t)
	for _, p := range []string{"/api/v1/ws/a", "/api/v1/ws/b", "/nowhere"} {
		h.get(p, nil)
	}

	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "radiomirchi.http.request.duration")
	if met == nil {
		t.Fatal("duration histogram not exported")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T", met.Data)
	}
	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value("route")
		counts[route.AsString()] += dp.Count
	}
	if counts["/api/v1/ws/{mission_id}"] != 2 || counts["unmatched"] != 1 {
		t.Errorf("counts by route = %v", counts)
	}
}

// upgradeWriter is a recorder whose connection can be taken over.
type upgradeWriter struct {
	*httptest.ResponseRecorder
	conn net.Conn
}

func (w *upgradeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.conn, bufio.NewReadWriter(bufio.NewReader(w.conn), bufio.NewWriter(w.conn)), nil
}

func TestMiddleware_Upgrade(t *testing.T) {
	h := newHarness(t)
	server, client := net.Pipe()
	t.Cleanup(func() { _ = server.Close(); _ = client.Close() })

	var got net.Conn
	handler := Middleware(mustMetrics(t))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		if err != nil {
			t.Errorf("Hijack: %v", err)
			return
		}
		got = conn
	}))
	handler.ServeHTTP(&upgradeWriter{ResponseRecorder: httptest.NewRecorder(), conn: server},
		httptest.NewRequest(http.MethodGet, "/api/v1/ws/moon-cheese", nil))

	if got != server {
		t.Fatal("handler did not receive the underlying connection")
	}
	if v, _ := spanAttr(h.lastSpan(t), "http.response.status_code"); v.AsInt64() != http.StatusSwitchingProtocols {
		t.Errorf("status attribute = %d, want 101", v.AsInt64())
	}
}

func TestMiddleware_UpgradeUnsupported(t *testing.T) {
	newHarness(t)
	handler := Middleware(mustMetrics(t))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, _, err := w.(http.Hijacker).Hijack(); err == nil {
			t.Error("expected an error from a writer without hijack support")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/ws/x", nil))
}

func mustMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}
