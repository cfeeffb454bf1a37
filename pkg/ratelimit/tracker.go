package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	loyverseThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyverse_rate_limit_throttles_total",
		Help: "Total number of 429 answers observed from Loyverse",
	})

	loyverseCooldownWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyverse_rate_limit_waits_total",
		Help: "Total number of requests delayed by an active cooldown",
	})

	loyverseCooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loyverse_rate_limit_cooldown_seconds",
		Help: "Length of the most recent cooldown requested via Retry-After",
	})
)

// Tracker records upstream throttling and delays requests during a cooldown.
type Tracker struct {
	store   StateStore
	logger  zerolog.Logger
	maxWait time.Duration
}

// NewTracker creates a new rate limit tracker.
func NewTracker(store StateStore, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:   store,
		logger:  logger,
		maxWait: DefaultMaxWait,
	}
}

// SetMaxWait changes the upper bound of a single Wait.
func (t *Tracker) SetMaxWait(d time.Duration) {
	if d > 0 {
		t.maxWait = d
	}
}

// GetState retrieves the current cooldown state.
func (t *Tracker) GetState(ctx context.Context) (*CooldownState, error) {
	return t.store.Load(ctx)
}

// RecordThrottle registers a 429 answer. A Retry-After header starts a
// cooldown; without it only the observation is recorded and the caller's
// backoff policy decides the wait.
func (t *Tracker) RecordThrottle(ctx context.Context, headers http.Header) error {
	now := time.Now()
	loyverseThrottlesTotal.Inc()

	state := &CooldownState{LastThrottle: now}
	if d, ok := ParseRetryAfter(headers, now); ok {
		state.Until = now.Add(d)
		loyverseCooldownSeconds.Set(d.Seconds())
	}

	if err := t.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save cooldown state: %w", err)
	}

	t.logger.Warn().
		Time("cooldown_until", state.Until).
		Msg("Loyverse rate limit hit")

	return nil
}

// Wait blocks while a cooldown is active, for at most maxWait.
// It returns early with the context error when ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.store.Load(ctx)
	if err != nil {
		// State backend trouble must not stop traffic
		t.logger.Warn().Err(err).Msg("Cooldown state unavailable")
		return nil
	}
	if !state.Active() {
		return nil
	}

	wait := state.Remaining()
	if wait > t.maxWait {
		wait = t.maxWait
	}

	loyverseCooldownWaitsTotal.Inc()
	t.logger.Debug().
		Dur("wait", wait).
		Msg("Waiting for Loyverse cooldown")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
