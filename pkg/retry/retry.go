// Package retry provides the bounded retry scheduler with exponential
// backoff used around every caskstore object operation.
package retry

import (
	"context"
	stderr "errors"
	"math"
	"math/rand"
	"time"

	"github.com/caskstore/caskstore/pkg/errors"
)

// Config defines retry behavior for one store.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// BaseDelay is the backoff delay before the first retry.
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Jitter adds a uniform random component in [0, delay] to each sleep.
	Jitter bool `yaml:"jitter" json:"jitter"`

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns a sensible default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// Retryer executes operations under the configured retry policy.
// Retryable failures are absorbed and retried with backoff; fatal failures
// return immediately. Each Do call carries independent retry state.
type Retryer struct {
	config Config
}

// New creates a Retryer, applying defaults for zero values.
func New(config Config) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	return &Retryer{config: config}
}

// Do executes fn with retry logic and no cancellation.
func (r *Retryer) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), func(ctx context.Context) error {
		return fn()
	})
}

// DoWithContext executes fn under the retry policy. Once ctx is canceled no
// further attempts are scheduled.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return errors.New(errors.ErrCodeOperationCanceled, "operation canceled").
				WithCause(ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		if attempt < r.config.MaxAttempts-1 {
			delay := r.calculateDelay(attempt)
			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt+1, err, delay)
			}

			select {
			case <-ctx.Done():
				return errors.New(errors.ErrCodeOperationCanceled, "operation canceled during backoff").
					WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return errors.Newf(errors.ErrCodeRetryExhausted,
		"retries exhausted after %d attempts", r.config.MaxAttempts).
		WithCause(lastErr)
}

// shouldRetry distinguishes retryable failures from fatal ones.
func shouldRetry(err error) bool {
	var se *errors.StoreError
	if stderr.As(err, &se) {
		return se.Retryable
	}
	// Unclassified errors are treated as fatal; the store client classifies
	// every transport failure before it reaches the scheduler.
	return false
}

// calculateDelay computes min(maxDelay, baseDelay * 2^attempt) plus uniform
// jitter in [0, delay] when enabled.
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	d := time.Duration(delay)
	if r.config.Jitter && d > 0 {
		d += time.Duration(rand.Int63n(int64(d) + 1))
	}
	return d
}

// WithMaxAttempts returns a new Retryer with modified total attempts.
func (r *Retryer) WithMaxAttempts(attempts int) *Retryer {
	newConfig := r.config
	newConfig.MaxAttempts = attempts
	return New(newConfig)
}

// WithOnRetry returns a new Retryer with a retry callback.
func (r *Retryer) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Retryer {
	newConfig := r.config
	newConfig.OnRetry = callback
	return New(newConfig)
}
