// Package resilience keeps a failing speech or language provider from taking
// the broadcast down with it.
//
// [CircuitBreaker] stops calling a provider after repeated failures and probes
// it again after a cooldown. [Failover] tries an ordered list of providers of
// the same kind, each behind its own breaker; [LLMFailover], [TTSFailover] and
// [STTFailover] wrap it for the three provider interfaces. [Backoff] computes
// capped exponential retry delays for the session's own retry loops.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Do] while the breaker rejects
// calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// BreakerState is the operating mode of a [CircuitBreaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls until the cooldown has passed.
	BreakerOpen

	// BreakerHalfOpen lets a limited number of probe calls through.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second
	DefaultProbes           = 2
)

// BreakerConfig tunes a [CircuitBreaker]. Zero fields take the defaults.
type BreakerConfig struct {
	// Name labels the breaker in logs and hooks, usually the provider name.
	Name string

	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold int

	// Cooldown is how long an open breaker waits before probing.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close
	// again; it is also the number of probes admitted at once.
	Probes int

	// OnStateChange, if set, is called after every state change while the
	// breaker's lock is held.
	OnStateChange func(name string, from, to BreakerState)

	Logger *slog.Logger
}

// CircuitBreaker is a three-state breaker around one provider. Calls whose
// context was cancelled count neither as failure nor as success, so session
// teardown never trips a breaker.
type CircuitBreaker struct {
	cfg BreakerConfig
	log *slog.Logger
	now func() time.Time

	mu             sync.Mutex
	state          BreakerState
	failures       int
	openedAt       time.Time
	probesInFlight int
	probeSuccesses int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Probes <= 0 {
		cfg.Probes = DefaultProbes
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &CircuitBreaker{
		cfg: cfg,
		log: log.With("breaker", cfg.Name),
		now: time.Now,
	}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Do runs fn if the breaker admits the call and records its outcome. It
// returns [ErrCircuitOpen] without calling fn while the breaker is open or its
// probe slots are taken.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(probe, err, ctx.Err() != nil && err != nil)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		cb.probesInFlight = 0
		cb.probeSuccesses = 0
		cb.setState(BreakerHalfOpen)
	}
	if cb.state == BreakerHalfOpen {
		if cb.probesInFlight >= cb.cfg.Probes {
			return false, ErrCircuitOpen
		}
		cb.probesInFlight++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error, cancelled bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probesInFlight--
		// A stale probe from a previous half-open phase changes nothing.
		if cb.state != BreakerHalfOpen {
			return
		}
	}
	switch {
	case cancelled:
	case err != nil && probe:
		cb.trip()
	case err != nil:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.trip()
		}
	case probe:
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.cfg.Probes {
			cb.failures = 0
			cb.setState(BreakerClosed)
		}
	default:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.log.Warn("circuit breaker opened", "consecutive_failures", cb.failures, "cooldown", cb.cfg.Cooldown)
	cb.setState(BreakerOpen)
}

func (cb *CircuitBreaker) setState(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to != BreakerOpen {
		cb.log.Info("circuit breaker state changed", "from", from, "to", to)
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cooldown has passed
// reports [BreakerHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probesInFlight = 0
	cb.probeSuccesses = 0
	cb.setState(BreakerClosed)
}
