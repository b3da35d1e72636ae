package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForErrorClass returns the retry configuration for an error class.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	switch errorClass {
	case ErrorClassServer:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassRateLimit:
		// 429 - longer backoff, the tracker also holds later requests
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassNetwork:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultRetryConfig()
	}
}

// retryPolicy maps the class of the latest failure to the retry configuration to apply.
type retryPolicy func(ErrorClass) RetryConfig

// scaledRetryPolicy applies the client-level overrides to the per-class
// defaults. maxRetries counts retries after the first attempt. A positive
// initialBackoff rescales every class relative to DefaultRetryConfig.
func scaledRetryPolicy(maxRetries int, initialBackoff time.Duration) retryPolicy {
	return func(errorClass ErrorClass) RetryConfig {
		cfg := RetryConfigForErrorClass(errorClass)
		cfg.MaxAttempts = maxRetries + 1

		if initialBackoff > 0 {
			factor := float64(initialBackoff) / float64(DefaultRetryConfig().InitialBackoff)
			cfg.InitialBackoff = time.Duration(math.Round(float64(cfg.InitialBackoff) * factor))
			cfg.MaxBackoff = time.Duration(math.Round(float64(cfg.MaxBackoff) * factor))
		}
		return cfg
	}
}

// retryWithBackoff executes fn with exponential backoff. fn reports the class
// of its failure; the class selects the backoff schedule for the next wait.
// It respects context cancellation and adds jitter to prevent thundering herd.
func retryWithBackoff(ctx context.Context, policy retryPolicy, fn func() (ErrorClass, error)) error {
	var lastErr error
	var lastClass, failedClass ErrorClass
	var backoff time.Duration
	maxAttempts := 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		errorClass, err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		failedClass = errorClass
		config := policy(errorClass)
		maxAttempts = config.MaxAttempts

		if !shouldRetry(errorClass) {
			return lastErr
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, lastErr)
		}

		if attempt >= maxAttempts {
			break
		}

		// A new failure class restarts the schedule
		if errorClass != lastClass || backoff == 0 {
			backoff = config.InitialBackoff
		}
		lastClass = errorClass

		retriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		log.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	retryExhaustedTotal.WithLabelValues(string(failedClass)).Inc()
	log.Warn().
		Str("error_class", string(failedClass)).
		Int("max_attempts", maxAttempts).
		Err(lastErr).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
