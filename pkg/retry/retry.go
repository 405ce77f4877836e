// Package retry provides exponential backoff for transient failures:
// the metadata store coming up after the server, or a flaky network
// path to it. Backend dispatch is never retried here; the caller owns
// that decision.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// JitterFactor spreads delays +/- this fraction to avoid synchronized
	// retries from multiple instances.
	JitterFactor float64
}

// DefaultConfig suits startup dependencies: 5 retries from 200ms,
// doubling, capped at 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do executes fn with exponential backoff. Returns nil on success or
// the last error once retries are exhausted. Context cancellation is
// respected during waits.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		lastErr = err
		result = r

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(applyJitter(delay, cfg.JitterFactor)):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return result, lastErr
}

// IsRetryable reports whether an error is transient. Backend errors
// carry their own classification; policy denials and vault failures
// are always permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var backendErr *apperrors.BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Retryable()
	}

	var denial *apperrors.Denial
	var linkErr *apperrors.LinkError
	if errors.As(err, &denial) || errors.As(err, &linkErr) ||
		errors.Is(err, apperrors.ErrVault) || errors.Is(err, apperrors.ErrConfig) {
		return false
	}

	// Unclassified errors at startup (DB not yet accepting connections)
	// are worth another attempt.
	return true
}
