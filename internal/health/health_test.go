package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func pass(context.Context) error { return nil }

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

// probe serves path through a mux with h registered and decodes the reply.
func probe(t *testing.T, h *Handler, req *http.Request) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", req.URL.Path, err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "missions", Check: failWith("database is locked")})
	h.SetDraining(true)

	code, body := probe(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("liveness = %d %q, want 200 ok", code, body.Status)
	}
	if len(body.Checks) != 0 {
		t.Errorf("liveness ran checks: %v", body.Checks)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		draining   bool
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "store and events up",
			checkers: []Checker{
				{Name: "missions", Check: pass},
				{Name: "events", Check: pass},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"missions": "ok", "events": "ok"},
		},
		{
			name: "store down",
			checkers: []Checker{
				{Name: "missions", Check: failWith("connection refused")},
				{Name: "events", Check: pass},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"missions": "fail: connection refused", "events": "ok"},
		},
		{
			name: "everything down",
			checkers: []Checker{
				{Name: "missions", Check: failWith("timeout")},
				{Name: "events", Check: failWith("nats: no servers available")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"missions": "fail: timeout", "events": "fail: nats: no servers available"},
		},
		{
			name:       "draining with healthy store",
			checkers:   []Checker{{Name: "missions", Check: pass}},
			draining:   true,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "draining",
			wantChecks: map[string]string{"missions": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New(tt.checkers...)
			h.SetDraining(tt.draining)

			code, body := probe(t, h, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %v", body.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_DrainingCanBeLifted(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "missions", Check: pass})
	h.SetDraining(true)
	h.SetDraining(false)

	if code, _ := probe(t, h, httptest.NewRequest(http.MethodGet, "/readyz", nil)); code != http.StatusOK {
		t.Fatalf("code = %d, want 200", code)
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx)
	code, body := probe(t, h, req)
	if code != http.StatusServiceUnavailable || body.Checks["slow"] != "fail: "+context.Canceled.Error() {
		t.Fatalf("got %d %v", code, body.Checks)
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()
	// Each check waits for the other; sequential evaluation would time out.
	a, b := make(chan struct{}), make(chan struct{})
	wait := func(mine, other chan struct{}) func(context.Context) error {
		return func(ctx context.Context) error {
			close(mine)
			select {
			case <-other:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	h := New(
		Checker{Name: "a", Check: wait(a, b)},
		Checker{Name: "b", Check: wait(b, a)},
	)
	if code, body := probe(t, h, httptest.NewRequest(http.MethodGet, "/readyz", nil)); code != http.StatusOK {
		t.Fatalf("code = %d, want 200: %v", code, body.Checks)
	}
}
