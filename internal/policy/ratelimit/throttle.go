// Package ratelimit paces the ingestion loop between items.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/catalog-ingest/internal/metrics"
)

// Throttle modes accepted by New.
const (
	ModeFixed    = "fixed"
	ModeInterval = "interval"
)

// DefaultDelay is the pause between items.
const DefaultDelay = 500 * time.Millisecond

// Throttle is consulted after every item, whatever its outcome.
type Throttle interface {
	// Pause blocks until the next item may start. It returns early with the
	// context error on cancellation.
	Pause(ctx context.Context) error
}

// New builds the throttle for mode. An empty mode means ModeFixed.
func New(mode string, delay time.Duration) (Throttle, error) {
	if delay < 0 {
		return nil, fmt.Errorf("throttle delay must be >= 0, got %s", delay)
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeFixed:
		return NewFixed(delay), nil
	case ModeInterval:
		return NewInterval(delay), nil
	default:
		return nil, fmt.Errorf("unknown throttle mode %q", mode)
	}
}

// Fixed sleeps the same delay after every item.
type Fixed struct {
	delay time.Duration
}

// NewFixed creates a fixed-delay throttle.
func NewFixed(delay time.Duration) *Fixed {
	return &Fixed{delay: delay}
}

// Pause sleeps for the configured delay.
func (f *Fixed) Pause(ctx context.Context) error {
	if f.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("throttle pause: %w", ctx.Err())
	case <-timer.C:
		metrics.ObserveThrottle(f.delay)
		return nil
	}
}

// Interval keeps consecutive items at least one delay apart, counting the
// time spent processing the item. Slow items therefore pause less.
type Interval struct {
	limiter *rate.Limiter
}

// NewInterval creates an interval throttle; a zero delay never blocks.
func NewInterval(delay time.Duration) *Interval {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	limiter := rate.NewLimiter(limit, 1)
	// The first Pause follows the first item, so the bucket starts empty.
	limiter.Allow()
	return &Interval{limiter: limiter}
}

// Pause waits for the next token.
func (i *Interval) Pause(ctx context.Context) error {
	start := time.Now()
	if err := i.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle pause: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveThrottle(waited)
	}
	return nil
}
