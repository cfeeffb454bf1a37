// Package ratelimit tracks Loyverse 429 answers and gates requests while the
// upstream asked us to back off. The cooldown is shared across client
// instances through a StateStore (in-process or Redis).
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Redis keys for cooldown state storage.
const (
	RedisKeyCooldownUntil = "loyverse:rate_limit:cooldown_until"
	RedisKeyLastThrottle  = "loyverse:rate_limit:last_throttle"
)

const (
	// DefaultMaxWait bounds how long a single request waits for a cooldown.
	DefaultMaxWait = 30 * time.Second

	// MaxRetryAfter caps absurd Retry-After values.
	MaxRetryAfter = 5 * time.Minute
)

// CooldownState is the current upstream cooldown.
type CooldownState struct {
	// Until is the instant before which no request should be sent.
	// Zero means no cooldown is active.
	Until time.Time `json:"until"`

	// LastThrottle is when the last 429 was observed.
	LastThrottle time.Time `json:"last_throttle"`
}

// Active returns true while the cooldown has not elapsed.
func (s *CooldownState) Active() bool {
	return s != nil && time.Now().Before(s.Until)
}

// Remaining returns the duration until the cooldown ends.
// Returns 0 if no cooldown is active.
func (s *CooldownState) Remaining() time.Duration {
	if s == nil {
		return 0
	}
	d := time.Until(s.Until)
	if d < 0 {
		return 0
	}
	return d
}

// ParseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form. ok is false when the header is absent or unparseable.
func ParseRetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return 0, false
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = at.Sub(now)
	} else {
		return 0, false
	}

	if d < 0 {
		d = 0
	}
	if d > MaxRetryAfter {
		d = MaxRetryAfter
	}
	return d, true
}
