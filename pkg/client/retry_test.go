package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastPolicy returns a fixed retry schedule in milliseconds.
func fastPolicy(attempts int, initial, max time.Duration) retryPolicy {
	return func(ErrorClass) RetryConfig {
		return RetryConfig{
			MaxAttempts:       attempts,
			InitialBackoff:    initial,
			MaxBackoff:        max,
			BackoffMultiplier: 2.0,
		}
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfigForErrorClass(t *testing.T) {
	tests := []struct {
		name             string
		errorClass       ErrorClass
		expectedInitial  time.Duration
		expectedMax      time.Duration
		expectedAttempts int
	}{
		{
			name:             "server error config",
			errorClass:       ErrorClassServer,
			expectedInitial:  500 * time.Millisecond,
			expectedMax:      5 * time.Second,
			expectedAttempts: 3,
		},
		{
			name:             "rate limit config",
			errorClass:       ErrorClassRateLimit,
			expectedInitial:  2 * time.Second,
			expectedMax:      30 * time.Second,
			expectedAttempts: 3,
		},
		{
			name:             "network error config",
			errorClass:       ErrorClassNetwork,
			expectedInitial:  1 * time.Second,
			expectedMax:      10 * time.Second,
			expectedAttempts: 3,
		},
		{
			name:             "unknown error class uses default",
			errorClass:       "",
			expectedInitial:  500 * time.Millisecond,
			expectedMax:      10 * time.Second,
			expectedAttempts: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := RetryConfigForErrorClass(tt.errorClass)

			if config.InitialBackoff != tt.expectedInitial {
				t.Errorf("InitialBackoff = %v, want %v", config.InitialBackoff, tt.expectedInitial)
			}
			if config.MaxBackoff != tt.expectedMax {
				t.Errorf("MaxBackoff = %v, want %v", config.MaxBackoff, tt.expectedMax)
			}
			if config.MaxAttempts != tt.expectedAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, tt.expectedAttempts)
			}
		})
	}
}

func TestScaledRetryPolicy(t *testing.T) {
	policy := scaledRetryPolicy(4, 5*time.Millisecond)

	// 5ms against a 500ms default is a factor of 1/100
	cfg := policy(ErrorClassRateLimit)
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 20*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 20ms", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 300*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 300ms", cfg.MaxBackoff)
	}

	unscaled := scaledRetryPolicy(0, 0)(ErrorClassServer)
	if unscaled.MaxAttempts != 1 {
		t.Errorf("MaxAttempts with no retries = %d, want 1", unscaled.MaxAttempts)
	}
	if unscaled.InitialBackoff != RetryConfigForErrorClass(ErrorClassServer).InitialBackoff {
		t.Errorf("InitialBackoff without override = %v, want class default", unscaled.InitialBackoff)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastPolicy(3, time.Millisecond, 10*time.Millisecond), func() (ErrorClass, error) {
		callCount++
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastPolicy(3, time.Millisecond, 10*time.Millisecond), func() (ErrorClass, error) {
		callCount++
		if callCount < 3 {
			return ErrorClassServer, errors.New("temporary error")
		}
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	sentinel := errors.New("persistent error")
	callCount := 0

	err := retryWithBackoff(context.Background(), fastPolicy(3, time.Millisecond, 10*time.Millisecond), func() (ErrorClass, error) {
		callCount++
		return ErrorClassNetwork, sentinel
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	sentinel := errors.New("not found")
	callCount := 0

	err := retryWithBackoff(context.Background(), fastPolicy(3, time.Millisecond, 10*time.Millisecond), func() (ErrorClass, error) {
		callCount++
		return ErrorClassClient, sentinel
	})

	if !errors.Is(err, sentinel) {
		t.Errorf("Expected client error returned as-is, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Client error should not report retry exhaustion")
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := retryWithBackoff(ctx, fastPolicy(5, time.Second, time.Second), func() (ErrorClass, error) {
		callCount++
		return ErrorClassServer, errors.New("server error")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_ContextCancelledImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	callCount := 0
	err := retryWithBackoff(ctx, fastPolicy(3, time.Millisecond, time.Millisecond), func() (ErrorClass, error) {
		callCount++
		return ErrorClassNetwork, ctx.Err()
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled to be wrapped, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	timestamps := []time.Time{}
	_ = retryWithBackoff(context.Background(), fastPolicy(3, 20*time.Millisecond, time.Second), func() (ErrorClass, error) {
		timestamps = append(timestamps, time.Now())
		return ErrorClassServer, errors.New("error")
	})

	if len(timestamps) != 3 {
		t.Fatalf("Expected 3 timestamps, got %d", len(timestamps))
	}

	firstDelay := timestamps[1].Sub(timestamps[0])
	secondDelay := timestamps[2].Sub(timestamps[1])

	// ±20% jitter around 20ms and 40ms
	if firstDelay < 16*time.Millisecond {
		t.Errorf("First retry delay %v shorter than jittered minimum", firstDelay)
	}
	if secondDelay < 32*time.Millisecond {
		t.Errorf("Second retry delay %v shorter than jittered minimum", secondDelay)
	}
}

func TestRetryWithBackoff_MaxBackoffCap(t *testing.T) {
	timestamps := []time.Time{}
	_ = retryWithBackoff(context.Background(), fastPolicy(4, 10*time.Millisecond, 12*time.Millisecond), func() (ErrorClass, error) {
		timestamps = append(timestamps, time.Now())
		return ErrorClassServer, errors.New("error")
	})

	if len(timestamps) != 4 {
		t.Fatalf("Expected 4 timestamps, got %d", len(timestamps))
	}

	// Third wait would be 40ms uncapped; the cap keeps it near 12ms
	if d := timestamps[3].Sub(timestamps[2]); d > 35*time.Millisecond {
		t.Errorf("Third retry delay %v exceeds capped backoff", d)
	}
}
