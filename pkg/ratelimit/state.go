// Package ratelimit paces catalog requests and tracks server-side throttling.
// Requests are paced with a token bucket sized to the catalog's published
// guidance of 80 requests per second. When the catalog answers 429 Too Many
// Requests, the Retry-After window is recorded and requests are gated until
// it has passed. The throttle state can be shared across processes via Redis.
package ratelimit

import (
	"time"
)

// Redis keys for throttle state storage.
const (
	RedisKeyBlockedUntil  = "exhibit:rate_limit:blocked_until"
	RedisKeyThrottleCount = "exhibit:rate_limit:throttle_count"
	RedisKeyLastUpdate    = "exhibit:rate_limit:last_update"
)

const (
	// DefaultRequestsPerSecond is the catalog API's documented request ceiling.
	DefaultRequestsPerSecond = 80

	// DefaultRetryAfter is used when a 429 response carries no usable Retry-After header.
	DefaultRetryAfter = 5 * time.Second

	// MaxRetryAfter caps the Retry-After window a server can impose on us.
	MaxRetryAfter = 2 * time.Minute

	// ThrottleCountWarning is the number of consecutive 429 responses after
	// which the tracker logs at warn level.
	ThrottleCountWarning = 3
)

// ThrottleState represents the current server-imposed throttle state.
type ThrottleState struct {
	// BlockedUntil is when requests may resume. Zero means not blocked.
	BlockedUntil time.Time `json:"blocked_until"`

	// ThrottleCount is the number of consecutive 429 responses seen.
	// Reset to zero by the next successful response.
	ThrottleCount int `json:"throttle_count"`

	// LastUpdate is the timestamp when this state was last updated.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *ThrottleState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsBlocked returns true while the Retry-After window is still open.
func (s *ThrottleState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// NeedsWarning returns true once throttling has been repeated enough to report.
func (s *ThrottleState) NeedsWarning() bool {
	return s.ThrottleCount >= ThrottleCountWarning
}

// TimeUntilUnblocked returns the remaining Retry-After window.
// Returns 0 if requests are already allowed.
func (s *ThrottleState) TimeUntilUnblocked() time.Duration {
	duration := time.Until(s.BlockedUntil)
	if duration < 0 {
		return 0
	}
	return duration
}
