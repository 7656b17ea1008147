// Package retry re-runs idempotent remote calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	gax "github.com/googleapis/gax-go/v2"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int           // total attempts including the first; <1 means 1
	InitialWait time.Duration // first backoff ceiling
	MaxWait     time.Duration // backoff ceiling cap
	Multiplier  float64       // ceiling growth per attempt
}

// DefaultConfig is used for list/get/open calls against the remote store.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: 250 * time.Millisecond,
		MaxWait:     8 * time.Second,
		Multiplier:  2.0,
	}
}

// NoRetry runs the call exactly once.
func NoRetry() Config {
	return Config{MaxAttempts: 1}
}

// RetryableError marks an error as safe to retry.
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string {
	return e.Err.Error()
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err to mark it as retryable. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return RetryableError{Err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r RetryableError
	return errors.As(err, &r)
}

// unwrapRetryable strips the retry marker so callers see the cause.
func unwrapRetryable(err error) error {
	var r RetryableError
	if errors.As(err, &r) {
		return r.Err
	}
	return err
}

// sleep is replaced in tests.
var sleep = gax.Sleep

// DoWithResult runs fn until it succeeds, returns a non-retryable error,
// attempts run out, or ctx ends. onRetry, if set, is called before each
// backoff with the attempt number that failed.
func DoWithResult[T any](ctx context.Context, cfg Config, onRetry func(attempt int, err error), fn func() (T, error)) (T, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	bo := gax.Backoff{
		Initial:    cfg.InitialWait,
		Max:        cfg.MaxWait,
		Multiplier: cfg.Multiplier,
	}

	var zero T
	for attempt := 1; ; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		if !IsRetryable(err) || attempt >= attempts {
			return zero, unwrapRetryable(err)
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if sleepErr := sleep(ctx, bo.Pause()); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

// Do is DoWithResult for calls without a result.
func Do(ctx context.Context, cfg Config, onRetry func(attempt int, err error), fn func() error) error {
	_, err := DoWithResult(ctx, cfg, onRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
