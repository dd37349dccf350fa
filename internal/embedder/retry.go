package embedder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig configures exponential backoff for provider API calls.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Duration(initialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(maxBackoffMs) * time.Millisecond,
		Multiplier: backoffMultiplier,
	}
}

// apiError carries the HTTP status of a failed provider call so the
// retry loop can tell transient failures from permanent ones.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.status, e.body)
}

// retryable reports whether err is worth another attempt. Client errors
// are permanent except for timeouts and rate limits; everything else,
// including network failures and 5xx responses, is transient.
func retryable(err error) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		return true
	}
	switch {
	case ae.status == http.StatusRequestTimeout, ae.status == http.StatusTooManyRequests:
		return true
	case ae.status >= 400 && ae.status < 500:
		return false
	}
	return true
}

// retryWithBackoff runs fn until it succeeds, fails permanently, or
// retries are exhausted. Context cancellation stops retrying
// immediately. Backoff grows by Multiplier up to MaxDelay, with jitter
// so concurrent callers do not hammer the provider in lockstep.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := config.BaseDelay

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !retryable(err) {
			return zero, lastErr
		}
		if attempt < config.MaxRetries-1 {
			sleep := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(sleep):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if backoff > config.MaxDelay {
					backoff = config.MaxDelay
				}
			}
		}
	}
	return zero, lastErr
}
