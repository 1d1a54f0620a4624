package retry

import (
	"context"
	"time"
)

// Config controls the retry loop used for gateway sends and database
// initialization. The provider documentation recommends a fixed inter-attempt
// delay, so there is no exponential growth unless Multiplier is set above 1.
type Config struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	MaxAttempts  int           `json:"max_attempts"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   1.0,
		MaxAttempts:  3,
	}
}

// Retrier executes operations with configurable delay between attempts.
type Retrier struct {
	config Config
}

func New(config Config) *Retrier {
	if config.Multiplier < 1.0 {
		config.Multiplier = 1.0
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Retrier{config: config}
}

// Retry executes the operation until it succeeds or attempts are exhausted.
func (r *Retrier) Retry(ctx context.Context, operation func() error) error {
	return r.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryWithPredicate executes the operation, consulting isRetryable after
// each failure. A non-retryable error stops the loop immediately and is
// returned as-is.
func (r *Retrier) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if attempt == r.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delayFor(attempt)):
		}
	}

	return lastErr
}

func (r *Retrier) delayFor(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.config.Multiplier
	}
	if r.config.MaxDelay > 0 && delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

// NextDelay returns the delay that would be used after the given attempt.
func (r *Retrier) NextDelay(attempt int) time.Duration {
	return r.delayFor(attempt)
}
