// Package ratelimit spaces outbound requests with randomized delays so
// traffic from the scraping adapters does not look machine-timed.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type Limiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// JitteredLimiter enforces a randomized minimum gap between actions.
type JitteredLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func NewJitteredLimiter(minDelay, maxDelay time.Duration) *JitteredLimiter {
	return &JitteredLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

func (r *JitteredLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastAction)
	delay := r.calculateDelay()

	if elapsed < delay {
		waitTime := delay - elapsed

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *JitteredLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

func (r *JitteredLimiter) calculateDelay() time.Duration {
	if r.maxDelay <= r.minDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	jitter := time.Duration(rand.Int63n(int64(delta)))
	return r.minDelay + jitter
}

// AdaptiveLimiter backs off after repeated failures (a blocked adapter
// slowing down reads as less bot-like) and slowly tightens again after a
// run of successes.
type AdaptiveLimiter struct {
	*JitteredLimiter
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

func NewAdaptiveLimiter(minDelay, maxDelay time.Duration) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		JitteredLimiter: NewJitteredLimiter(minDelay, maxDelay),
		maxErrorCount:   3,
		backoffFactor:   1.5,
	}
}

func (a *AdaptiveLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < time.Second {
			newMin = time.Second
		}
		a.minDelay = newMin
		a.successCount = 0
	}
}

func (a *AdaptiveLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

		if newMin > 60*time.Second {
			newMin = 60 * time.Second
		}
		if newMax > 120*time.Second {
			newMax = 120 * time.Second
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}

// Sleep blocks for a random duration in [min, max], honoring ctx.
// Adapters use it for the camouflage pauses around navigation and typing.
func Sleep(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
