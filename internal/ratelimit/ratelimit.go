package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RateLimiter paces product page visits inside a run.
type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// OutcomeRecorder is implemented by limiters that react to how the previous
// product page went.
type OutcomeRecorder interface {
	RecordSuccess()
	RecordFailure()
}

// SimpleRateLimiter enforces a jittered gap between consecutive product
// pages so visits do not land on a fixed rhythm.
type SimpleRateLimiter struct {
	mu   sync.Mutex
	min  time.Duration
	max  time.Duration
	last time.Time
}

func NewSimpleRateLimiter(min, max time.Duration) *SimpleRateLimiter {
	if max < min {
		max = min
	}
	return &SimpleRateLimiter{min: min, max: max}
}

// Wait sleeps until the gap since the previous visit has passed. The first
// call never waits.
func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if remaining := r.gap() - time.Since(r.last); remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(remaining):
		}
	}

	r.last = time.Now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.min = min
	r.max = max
}

// gap picks a delay in [min, max). Callers hold r.mu.
func (r *SimpleRateLimiter) gap() time.Duration {
	if r.max <= r.min {
		return r.min
	}
	return r.min + time.Duration(rand.Int63n(int64(r.max-r.min)))
}

const (
	backoffFactor = 2
	maxBackoff    = 60 * time.Second
	recoverStreak = 5
)

// AdaptiveRateLimiter widens the gap while product pages keep failing.
// Failed detail collections usually mean a challenge page or rate limiting,
// so the next visits slow down immediately; a streak of clean pages walks
// the gap back toward the configured base.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter

	baseMin time.Duration
	baseMax time.Duration
	streak  int
}

func NewAdaptiveRateLimiter(min, max time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(min, max),
		baseMin:           min,
		baseMax:           max,
	}
}

func (a *AdaptiveRateLimiter) RecordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.streak = 0
	a.min = capDuration(a.min*backoffFactor, maxBackoff)
	a.max = capDuration(a.max*backoffFactor, 2*maxBackoff)
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.streak++
	if a.streak < recoverStreak {
		return
	}
	a.streak = 0

	a.min = floorDuration(a.min/backoffFactor, a.baseMin)
	a.max = floorDuration(a.max/backoffFactor, a.baseMax)
}

func capDuration(d, limit time.Duration) time.Duration {
	if d > limit {
		return limit
	}
	return d
}

func floorDuration(d, limit time.Duration) time.Duration {
	if d < limit {
		return limit
	}
	return d
}
