package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newBreaker(cfg BreakerConfig) (*CircuitBreaker, *clock) {
	cfg.Logger = quiet
	cb := NewCircuitBreaker(cfg)
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	cb.now = c.now
	return cb, c
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestBreakerState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    BreakerState
		want string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half-open"},
		{BreakerState(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("BreakerState(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{Name: "tts"})
	if cb.cfg.FailureThreshold != DefaultFailureThreshold {
		t.Errorf("FailureThreshold = %d, want %d", cb.cfg.FailureThreshold, DefaultFailureThreshold)
	}
	if cb.cfg.Cooldown != DefaultCooldown {
		t.Errorf("Cooldown = %v, want %v", cb.cfg.Cooldown, DefaultCooldown)
	}
	if cb.cfg.Probes != DefaultProbes {
		t.Errorf("Probes = %d, want %d", cb.cfg.Probes, DefaultProbes)
	}
	if cb.Name() != "tts" {
		t.Errorf("Name() = %q, want tts", cb.Name())
	}
	if cb.State() != BreakerClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(BreakerConfig{FailureThreshold: 3})
	ctx := context.Background()

	for i := range 3 {
		if err := cb.Do(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want errBoom", i, err)
		}
	}
	if cb.State() != BreakerOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("fn ran while breaker open")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(BreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	_ = cb.Do(ctx, fail)
	_ = cb.Do(ctx, succeed)
	_ = cb.Do(ctx, fail)
	if cb.State() != BreakerClosed {
		t.Fatalf("State() = %v, want closed: failures are not consecutive", cb.State())
	}
}

func TestCircuitBreaker_CancelledCallsAreNeutral(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(BreakerConfig{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()
	var (
		mu          sync.Mutex
		transitions []BreakerState
	)
	cb, clk := newBreaker(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		Probes:           2,
		OnStateChange: func(_ string, _, to BreakerState) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	})
	ctx := context.Background()

	_ = cb.Do(ctx, fail)
	clk.advance(59 * time.Second)
	if cb.State() != BreakerOpen {
		t.Fatalf("State() before cooldown = %v, want open", cb.State())
	}
	clk.advance(time.Second)
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("State() after cooldown = %v, want half-open", cb.State())
	}

	if err := cb.Do(ctx, succeed); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("State() after one probe = %v, want half-open", cb.State())
	}
	if err := cb.Do(ctx, succeed); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("State() after probes = %v, want closed", cb.State())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []BreakerState{BreakerOpen, BreakerHalfOpen, BreakerClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	cb, clk := newBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Second})
	ctx := context.Background()

	for range 3 {
		_ = cb.Do(ctx, fail)
	}
	clk.advance(time.Second)
	if err := cb.Do(ctx, fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v, want errBoom", err)
	}
	if cb.State() != BreakerOpen {
		t.Fatalf("State() = %v, want open after failed probe", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()
	cb, clk := newBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Second, Probes: 1})
	ctx := context.Background()

	_ = cb.Do(ctx, fail)
	clk.advance(time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Do(ctx, func(context.Context) error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe

	if err := cb.Do(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second concurrent probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(BreakerConfig{FailureThreshold: 1})
	_ = cb.Do(context.Background(), fail)
	cb.Reset()
	if cb.State() != BreakerClosed {
		t.Fatalf("State() = %v, want closed", cb.State())
	}
	if err := cb.Do(context.Background(), succeed); err != nil {
		t.Fatalf("Do after Reset: %v", err)
	}
}
