package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	loyverseRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyverse_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	loyverseRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loyverse_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.05, 0.25, 0.5, 1, 2, 4, 8, 16},
	}, []string{"error_class"})

	loyverseRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyverse_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial request.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// Jitter is the relative randomisation applied to every wait (0.2 = ±20%).
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        16 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
	}
}

// normalize fills zero fields with defaults.
func (c RetryConfig) normalize() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = def.Jitter
	}
	return c
}

// backoffFor returns the un-jittered wait before retry number n (1-based).
func (c RetryConfig) backoffFor(n int) time.Duration {
	backoff := float64(c.InitialBackoff)
	for i := 1; i < n; i++ {
		backoff *= c.BackoffMultiplier
		if backoff >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// withJitter spreads d by ±Jitter to prevent thundering herd.
func (c RetryConfig) withJitter(d time.Duration) time.Duration {
	if c.Jitter == 0 {
		return d
	}
	factor := 1 - c.Jitter + rand.Float64()*2*c.Jitter
	return time.Duration(float64(d) * factor)
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// Only errors whose class is retryable are retried; anything else is
// returned as is. It respects context cancellation.
func retryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	config = config.normalize()

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				log.Info().
					Int("retries", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass := classOf(err)

		if !shouldRetry(errorClass) {
			return lastErr
		}

		// Last attempt: don't wait
		if attempt >= config.MaxRetries {
			break
		}

		loyverseRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		wait := config.withJitter(config.backoffFor(attempt + 1))
		loyverseRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(wait.Seconds())

		log.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	errorClass := classOf(lastErr)
	loyverseRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	log.Warn().
		Str("error_class", string(errorClass)).
		Int("max_retries", config.MaxRetries).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, config.MaxRetries, lastErr)
}
