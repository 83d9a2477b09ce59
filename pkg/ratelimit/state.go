// Package ratelimit tracks the upstream request window and paces requests.
// It monitors the x-rate-limit-limit, x-rate-limit-remaining and
// x-rate-limit-reset headers so that scraper processes sharing a guest
// session wait for the window to reset instead of burning 429 responses.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyLimit          = "scraper:rate_limit:limit"
	RedisKeyRemaining      = "scraper:rate_limit:remaining"
	RedisKeyResetTimestamp = "scraper:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "scraper:rate_limit:last_update"
)

// Header names reported by the upstream API.
const (
	HeaderLimit     = "X-Rate-Limit-Limit"
	HeaderRemaining = "X-Rate-Limit-Remaining"
	HeaderReset     = "X-Rate-Limit-Reset"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests until the window resets when
	// remaining requests fall to this value.
	RemainingThresholdCritical = 0

	// RemainingThresholdWarning applies throttling below this value.
	RemainingThresholdWarning = 10
)

// RateLimitState represents the current request window.
// This state is shared across all scraper processes via Redis.
type RateLimitState struct {
	// Limit is the window size from x-rate-limit-limit (0 if unknown).
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (x-rate-limit-reset, epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when no pacing applies.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests must wait for the reset.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining <= RemainingThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < RemainingThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdWarning
}
