package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	throttleBlockedSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "exhibit_rate_limit_blocked_seconds",
		Help: "Seconds remaining in the current server-imposed Retry-After window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exhibit_rate_limit_blocks_total",
		Help: "Total number of requests blocked while a Retry-After window was open",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exhibit_rate_limit_throttles_total",
		Help: "Total number of 429 responses received from the catalog",
	})
)

// Tracker records server-imposed throttling and gates requests while a
// Retry-After window is open. With a nil Redis client the state is kept in
// process memory.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu    sync.Mutex
	local ThrottleState
}

// NewTracker creates a new throttle tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState returns the current throttle state.
// Returns a zero (unblocked) state if nothing has been recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*ThrottleState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	blockedUntil, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get blocked until: %w", err)
	}

	count, err := t.redis.Get(ctx, RedisKeyThrottleCount).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get throttle count: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	if errors.Is(err, redis.Nil) {
		t.logger.Debug().Msg("No throttle state in Redis, returning unblocked state")
		return &ThrottleState{LastUpdate: time.Now()}, nil
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &ThrottleState{
		ThrottleCount: count,
		LastUpdate:    lastUpdate,
	}
	if blockedUntil > 0 {
		state.BlockedUntil = time.UnixMilli(blockedUntil)
	}
	return state, nil
}

// UpdateFromResponse records the outcome of a catalog response.
// A 429 opens a Retry-After window; any other non-5xx status clears the
// consecutive throttle count.
func (t *Tracker) UpdateFromResponse(ctx context.Context, statusCode int, headers http.Header) error {
	now := time.Now()

	if statusCode != http.StatusTooManyRequests {
		if statusCode >= 500 {
			return nil
		}
		current, err := t.GetState(ctx)
		if err != nil {
			return err
		}
		if current.ThrottleCount == 0 {
			return nil
		}
		current.ThrottleCount = 0
		current.LastUpdate = now
		return t.store(ctx, current)
	}

	retryAfter, ok := ParseRetryAfter(headers.Get("Retry-After"), now)
	if !ok {
		retryAfter = DefaultRetryAfter
	}
	if retryAfter > MaxRetryAfter {
		retryAfter = MaxRetryAfter
	}

	current, err := t.GetState(ctx)
	if err != nil {
		return err
	}

	state := &ThrottleState{
		BlockedUntil:  now.Add(retryAfter),
		ThrottleCount: current.ThrottleCount + 1,
		LastUpdate:    now,
	}
	if err := t.store(ctx, state); err != nil {
		return err
	}

	rateLimitThrottlesTotal.Inc()
	throttleBlockedSeconds.Set(retryAfter.Seconds())

	logEvent := t.logger.Info()
	if state.NeedsWarning() {
		logEvent = t.logger.Warn()
	}
	logEvent.
		Int("throttle_count", state.ThrottleCount).
		Dur("retry_after", retryAfter).
		Time("blocked_until", state.BlockedUntil).
		Msg("Catalog throttled request")

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now.
// Returns false while a Retry-After window is open.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get throttle state: %w", err)
	}

	if state.IsBlocked() {
		wait := state.TimeUntilUnblocked()
		t.logger.Warn().
			Int("throttle_count", state.ThrottleCount).
			Dur("wait_duration", wait).
			Msg("Retry-After window open - blocking request")

		rateLimitBlocksTotal.Inc()
		throttleBlockedSeconds.Set(wait.Seconds())
		return false, nil
	}

	throttleBlockedSeconds.Set(0)
	return true, nil
}

func (t *Tracker) store(ctx context.Context, state *ThrottleState) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local = *state
		t.mu.Unlock()
		return nil
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	var blockedUntil int64
	if !state.BlockedUntil.IsZero() {
		blockedUntil = state.BlockedUntil.UnixMilli()
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyBlockedUntil, blockedUntil, 0)
	pipe.Set(ctx, RedisKeyThrottleCount, state.ThrottleCount, 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}
	return nil
}

// ParseRetryAfter parses a Retry-After header value given either as
// delta-seconds or as an HTTP date. Returns false if the value is empty or
// malformed.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
