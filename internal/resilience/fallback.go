package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every provider of a [Failover] failed or was
// skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FailoverConfig configures a [Failover].
type FailoverConfig struct {
	// Breaker is the template for each provider's breaker; Name is replaced
	// by the provider name.
	Breaker BreakerConfig

	// OnFailure, if set, is called for every failed attempt that was not a
	// cancellation, including rejections by an open breaker.
	OnFailure func(provider string, err error)

	Logger *slog.Logger
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Failover holds a primary provider and ordered fallbacks of the same kind,
// each behind its own [CircuitBreaker]. Providers must all be added before the
// first call.
type Failover[T any] struct {
	members []member[T]
	cfg     FailoverConfig
	log     *slog.Logger
}

// NewFailover returns a failover whose first choice is primary.
func NewFailover[T any](name string, primary T, cfg FailoverConfig) *Failover[T] {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	f := &Failover[T]{cfg: cfg, log: log}
	f.Add(name, primary)
	return f
}

// Add appends a fallback tried after every provider added before it.
func (f *Failover[T]) Add(name string, provider T) {
	bc := f.cfg.Breaker
	bc.Name = name
	if bc.Logger == nil {
		bc.Logger = f.log
	}
	f.members = append(f.members, member[T]{name: name, value: provider, breaker: NewCircuitBreaker(bc)})
}

// Primary returns the first provider.
func (f *Failover[T]) Primary() T { return f.members[0].value }

// Names returns the provider names in the order they are tried.
func (f *Failover[T]) Names() []string {
	out := make([]string, len(f.members))
	for i, m := range f.members {
		out[i] = m.name
	}
	return out
}

// States returns each provider's breaker state keyed by name.
func (f *Failover[T]) States() map[string]BreakerState {
	out := make(map[string]BreakerState, len(f.members))
	for _, m := range f.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// Call runs fn against each provider of f in order until one succeeds. A
// cancelled ctx stops the walk and returns the context error. When every
// provider fails the error wraps [ErrAllFailed] and each attempt's error.
func Call[T, R any](ctx context.Context, f *Failover[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, m := range f.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var result R
		err := m.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			result, err = fn(ctx, m.value)
			return err
		})
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if errors.Is(err, ErrCircuitOpen) {
			f.log.Debug("provider skipped, circuit open", "provider", m.name)
		} else {
			f.log.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
		if f.cfg.OnFailure != nil {
			f.cfg.OnFailure(m.name, err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
