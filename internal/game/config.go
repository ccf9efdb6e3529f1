package game

import (
	"errors"
	"fmt"
	"time"
)

// Default tuning values.
const (
	DefaultLowWatermark         = 2
	DefaultHighWatermark        = 4
	DefaultBatchSize            = 5
	DefaultWaitTimeout          = 10 * time.Second
	DefaultSynthesisRetries     = 2
	DefaultSynthesisBackoff     = 250 * time.Millisecond
	DefaultGenerationBackoff    = 500 * time.Millisecond
	DefaultGenerationMaxBackoff = 10 * time.Second
	DefaultRecognizerBuffer     = 64
)

// Config tunes one session. Zero fields take the defaults above.
type Config struct {
	// LowWatermark starts a background refill when the queue length after a
	// dequeue is at or below it. Must be at least 1.
	LowWatermark int

	// HighWatermark keeps refills chaining while the queue is shorter.
	HighWatermark int

	// BatchSize is the number of lines requested per refill.
	BatchSize int

	// WaitTimeout bounds how long the session waits for the user after a
	// line before recording that the user spoke nothing.
	WaitTimeout time.Duration

	// BargeIn lets start_speech interrupt a line that is being spoken.
	BargeIn bool

	// SynthesisRetries is the number of retries after a failed synthesis
	// attempt that sent no audio. Negative disables retries.
	SynthesisRetries int

	SynthesisBackoff     time.Duration
	GenerationBackoff    time.Duration
	GenerationMaxBackoff time.Duration

	// RecognizerBuffer is the number of inbound audio frames buffered for the
	// recognizer before frames are dropped.
	RecognizerBuffer int
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.LowWatermark == 0 {
		c.LowWatermark = DefaultLowWatermark
	}
	if c.HighWatermark == 0 {
		c.HighWatermark = max(DefaultHighWatermark, c.LowWatermark+1)
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	switch {
	case c.SynthesisRetries == 0:
		c.SynthesisRetries = DefaultSynthesisRetries
	case c.SynthesisRetries < 0:
		c.SynthesisRetries = 0
	}
	if c.SynthesisBackoff == 0 {
		c.SynthesisBackoff = DefaultSynthesisBackoff
	}
	if c.GenerationBackoff == 0 {
		c.GenerationBackoff = DefaultGenerationBackoff
	}
	if c.GenerationMaxBackoff == 0 {
		c.GenerationMaxBackoff = DefaultGenerationMaxBackoff
	}
	if c.RecognizerBuffer == 0 {
		c.RecognizerBuffer = DefaultRecognizerBuffer
	}
	return c
}

// Validate reports every invalid field after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	var errs []error
	if c.LowWatermark < 1 {
		errs = append(errs, fmt.Errorf("low_watermark must be at least 1, got %d", c.LowWatermark))
	}
	if c.HighWatermark <= c.LowWatermark {
		errs = append(errs, fmt.Errorf("high_watermark %d must exceed low_watermark %d", c.HighWatermark, c.LowWatermark))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.WaitTimeout < 0 {
		errs = append(errs, fmt.Errorf("wait_timeout must not be negative, got %s", c.WaitTimeout))
	}
	if c.RecognizerBuffer < 1 {
		errs = append(errs, fmt.Errorf("recognizer_buffer must be positive, got %d", c.RecognizerBuffer))
	}
	if c.GenerationMaxBackoff < c.GenerationBackoff {
		errs = append(errs, fmt.Errorf("generation_max_backoff %s is below generation_backoff %s", c.GenerationMaxBackoff, c.GenerationBackoff))
	}
	return errors.Join(errs...)
}
