// Package retry is the retry harness for calls that cross a process
// boundary. The workers wrap their Agent calls in it (AgentConfig);
// StoreConfig and ToolConfig are defined, but Run Store calls and the
// suppression lookup are not routed through this harness. Every error is
// retryable here; callers that need to stop retrying early return a
// *backoff.PermanentError.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config tunes the exponential backoff applied to a single operation kind.
type Config struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	ExponentialBase float64
	MaxDelay        time.Duration
}

// Default configs per operation kind, per the retry table: Agent=3, Run
// Store=5, Tool Gateway=3, common base_delay/exponential_base/cap.
var (
	AgentConfig = Config{MaxAttempts: 3, BaseDelay: time.Second, ExponentialBase: 2, MaxDelay: 60 * time.Second}
	StoreConfig = Config{MaxAttempts: 5, BaseDelay: time.Second, ExponentialBase: 2, MaxDelay: 60 * time.Second}
	ToolConfig  = Config{MaxAttempts: 3, BaseDelay: time.Second, ExponentialBase: 2, MaxDelay: 60 * time.Second}
)

func (c Config) backoff() backoff.BackOff {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     c.BaseDelay,
		RandomizationFactor: 0.1,
		Multiplier:          c.ExponentialBase,
		MaxInterval:         c.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	return backoff.WithMaxRetries(eb, uint64(c.MaxAttempts-1))
}

// Do runs op, retrying on any error (no classification, per the harness
// contract) up to cfg.MaxAttempts times with exponential backoff. label
// identifies the operation in logs ("agent_call", "store_claim", ...).
// op may return a *backoff.PermanentError to stop retrying early.
func Do(ctx context.Context, cfg Config, label string, op func(ctx context.Context) error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op(ctx)
		if err != nil {
			slog.Warn("retry attempt failed", "operation", label, "attempt", attempt, "max_attempts", cfg.MaxAttempts, "error", err)
		}
		return err
	}

	err := backoff.Retry(wrapped, backoff.WithContext(cfg.backoff(), ctx))
	if err != nil {
		slog.Error("operation exhausted retries", "operation", label, "attempts", attempt, "error", err)
		return err
	}
	if attempt > 1 {
		slog.Info("operation succeeded after retry", "operation", label, "attempts", attempt)
	}
	return nil
}

// DoValue is Do's generic counterpart for operations that return a value.
func DoValue[T any](ctx context.Context, cfg Config, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, label, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
