package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one (0 disables retry)
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`

	// MaxDelay caps the backoff delay
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`

	// Multiplier is the backoff multiplier (2.0 for exponential)
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`

	// RespectRetryAfter uses the backend's Retry-After header when present
	RespectRetryAfter bool `json:"respect_retry_after" yaml:"respect_retry_after"`
}

// DefaultRetryConfig is used for idempotent reads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		Multiplier:        2.0,
		RespectRetryAfter: true,
	}
}

// NoRetry is used for mutations: re-sending an ingest could duplicate it.
func NoRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 0
	return cfg
}

// Retryable reports whether err is worth another attempt. Only transport
// failures, 429 and 5xx responses qualify; a 4xx will fail the same way again.
func Retryable(err error) bool {
	var re *flight.RemoteError
	if errors.As(err, &re) {
		return re.Temporary()
	}
	return false
}

// RetryWithBackoffResult executes fn with exponential backoff and returns its
// result. Non-retryable errors are returned immediately.
func RetryWithBackoffResult[T any](ctx context.Context, cfg RetryConfig, logger *slog.Logger, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return result, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}

		result = res
		lastErr = err

		if !Retryable(err) || attempt == cfg.MaxRetries {
			break
		}

		// delay = min(InitialDelay * Multiplier^attempt, MaxDelay)
		delay = time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt)))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		var re *flight.RemoteError
		if errors.As(err, &re) && cfg.RespectRetryAfter && re.RetryAfter > 0 {
			delay = re.RetryAfter
		}

		if logger != nil {
			logger.Warn("retrying backend request",
				"attempt", attempt+1, "max_retries", cfg.MaxRetries, "delay", delay, "error", err)
		}
	}

	if cfg.MaxRetries == 0 || !Retryable(lastErr) {
		return result, lastErr
	}
	return result, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// parseRetryAfter extracts the Retry-After header value.
// Supports both delay-seconds and HTTP-date formats; returns 0 when absent.
//
//	Retry-After: 30                            -> 30 seconds
//	Retry-After: Wed, 21 Oct 2015 07:28:00 GMT -> duration until that time
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}
	return 0
}
