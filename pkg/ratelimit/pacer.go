package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var pacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "exhibit_rate_limit_wait_seconds",
	Help:    "Time requests spent waiting for a pacing token",
	Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
})

// Pacer spaces outgoing requests with a token bucket.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer allowing requestsPerSecond sustained requests.
// The burst equals requestsPerSecond so a full group can start at once.
// A non-positive rate disables pacing.
func NewPacer(requestsPerSecond int) *Pacer {
	if requestsPerSecond <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)}
}

// Wait blocks until a token is available or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for pacing token: %w", err)
	}
	pacerWaitSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// Limit returns the configured sustained rate.
func (p *Pacer) Limit() rate.Limit {
	return p.limiter.Limit()
}
