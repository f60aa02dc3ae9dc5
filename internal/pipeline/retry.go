package pipeline

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig parameterizes one bounded exponential-backoff policy.
// The submission path and the batch-status poll loop each get their own
// instance so a retry storm on one never eats the other's budget.
type BackoffConfig struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxAttempts     int
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	return c
}

// newBackoff builds a fresh policy per call chain. MaxAttempts counts
// total attempts, so a bound of N allows N-1 retries after the first
// try.
func newBackoff(cfg BackoffConfig) backoff.BackOff {
	cfg = cfg.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.Multiplier = cfg.Multiplier
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1))
}
