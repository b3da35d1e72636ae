package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNewPacer_Limit(t *testing.T) {
	tests := []struct {
		name string
		rps  int
		want rate.Limit
	}{
		{name: "catalog default", rps: DefaultRequestsPerSecond, want: rate.Limit(80)},
		{name: "custom", rps: 5, want: rate.Limit(5)},
		{name: "disabled", rps: 0, want: rate.Inf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewPacer(tt.rps).Limit(); got != tt.want {
				t.Errorf("Limit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPacer_BurstDoesNotWait(t *testing.T) {
	pacer := NewPacer(DefaultRequestsPerSecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 18; i++ {
		if err := pacer.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("18 requests within burst took %v", elapsed)
	}
}

func TestPacer_WaitRespectsContext(t *testing.T) {
	pacer := NewPacer(1)
	ctx := context.Background()

	// Drain the single burst token
	if err := pacer.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	err := pacer.Wait(cancelled)
	if err == nil {
		t.Fatal("Wait() with cancelled context should fail")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}
