package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scraper_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_retry_exhausted_total",
		Help: "Total number of times the retry cap was reached by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// Interval is the fixed pause before re-issuing the same request.
	Interval time.Duration

	// MaxAttempts caps the number of attempts including the first one.
	// Zero means retry until the request succeeds or fails fatally.
	MaxAttempts int
}

// DefaultRetryConfig returns the default retry configuration: a fixed
// 60 second pause and no attempt cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Interval:    60 * time.Second,
		MaxAttempts: 0,
	}
}

// Validate checks the retry configuration.
func (c RetryConfig) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("retry interval must be >= 0 (got %v)", c.Interval)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("retry max attempts must be >= 0 (got %d)", c.MaxAttempts)
	}
	return nil
}

// sleepFunc pauses for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// attemptFunc performs one attempt. A nil error ends the loop; otherwise the
// error class decides whether the same request is issued again.
type attemptFunc func(attempt int) (ErrorClass, error)

// retryFixed executes fn, sleeping a fixed interval between attempts that
// fail with a retryable error class.
func retryFixed(ctx context.Context, cfg RetryConfig, sleep sleepFunc, logger zerolog.Logger, fn attemptFunc) error {
	for attempt := 1; ; attempt++ {
		errClass, err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		if !shouldRetry(errClass) {
			return err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			retryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
			logger.Warn().
				Str("error_class", string(errClass)).
				Int("max_attempts", cfg.MaxAttempts).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		retriesTotal.WithLabelValues(string(errClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(errClass)).Observe(cfg.Interval.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(errClass)).
			Int("attempt", attempt).
			Dur("backoff", cfg.Interval).
			Msg("Retrying request after backoff")

		if err := sleep(ctx, cfg.Interval); err != nil {
			logger.Warn().
				Str("error_class", string(errClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}
}
