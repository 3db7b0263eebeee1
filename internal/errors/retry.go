/**
 * Retry Logic with Exponential Backoff
 *
 * Implements the exponential schedule used by the classifier to estimate
 * recovery time, by the dispatcher to suspend backoff retries, and by
 * maintenance to retry transient storage failures.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-02
 */

package errors

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig configures the exponential backoff behavior.
type BackoffConfig struct {
	// InitialInterval is the initial retry interval
	InitialInterval time.Duration

	// MaxInterval is the maximum retry interval
	MaxInterval time.Duration

	// Multiplier is the factor by which the retry interval increases
	Multiplier float64

	// MaxElapsedTime is the maximum total time for all retries
	MaxElapsedTime time.Duration

	// RandomizationFactor adds jitter to prevent thundering herd
	RandomizationFactor float64
}

// DefaultBackoffConfig provides sensible defaults for exponential backoff.
var DefaultBackoffConfig = &BackoffConfig{
	InitialInterval:     1 * time.Second,
	MaxInterval:         60 * time.Second,
	Multiplier:          2.0,
	MaxElapsedTime:      15 * time.Minute,
	RandomizationFactor: 0,
}

// BackoffDelay returns initial * multiplier^attempt capped at the max interval.
// Attempt is zero-based. Jitter is applied after capping when configured.
func BackoffDelay(config *BackoffConfig, attempt int) time.Duration {
	if config == nil {
		config = DefaultBackoffConfig
	}
	if attempt < 0 {
		attempt = 0
	}

	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	backoff := float64(config.InitialInterval) * math.Pow(multiplier, float64(attempt))
	if config.MaxInterval > 0 && backoff > float64(config.MaxInterval) {
		backoff = float64(config.MaxInterval)
	}

	if config.RandomizationFactor > 0 {
		delta := config.RandomizationFactor * backoff
		backoff = backoff - delta + rand.Float64()*2*delta
	}

	return time.Duration(backoff)
}

// Wait blocks for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExponentialBackoff implements exponential backoff with jitter.
type ExponentialBackoff struct {
	startTime time.Time
	config    *BackoffConfig
	attempt   int
}

// NewExponentialBackoff creates a new exponential backoff instance.
func NewExponentialBackoff(config *BackoffConfig) *ExponentialBackoff {
	if config == nil {
		config = DefaultBackoffConfig
	}

	return &ExponentialBackoff{
		config:    config,
		startTime: time.Now(),
	}
}

// NextBackOff returns the next backoff duration, or -1 once the
// elapsed budget is spent.
func (eb *ExponentialBackoff) NextBackOff() time.Duration {
	if eb.config.MaxElapsedTime > 0 && time.Since(eb.startTime) >= eb.config.MaxElapsedTime {
		return -1
	}

	interval := BackoffDelay(eb.config, eb.attempt)
	eb.attempt++

	return interval
}

// RetryOperation executes an operation with exponential backoff retry.
func RetryOperation(
	ctx context.Context,
	operation func() error,
	config *BackoffConfig,
	shouldRetry func(error) bool,
) error {
	backoff := NewExponentialBackoff(config)

	for {
		err := operation()
		if err == nil {
			return nil
		}

		if !shouldRetry(err) {
			return err
		}

		interval := backoff.NextBackOff()
		if interval < 0 {
			return err
		}

		if waitErr := Wait(ctx, interval); waitErr != nil {
			return waitErr
		}
	}
}
