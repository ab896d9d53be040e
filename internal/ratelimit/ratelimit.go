package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// Feedback is implemented by limiters that adjust their pace to fetch outcomes.
type Feedback interface {
	RecordSuccess()
	RecordError()
}

type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	jitter     bool
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
	}
}

// Wait blocks until at least one jittered delay has passed since the
// previous slot. Each caller reserves its slot under the lock and sleeps
// without it, so SetDelay and outcome feedback never wait on a sleeper.
func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	prev := r.lastAction
	now := time.Now()
	slot := now
	if !prev.IsZero() {
		if at := prev.Add(r.calculateDelay()); at.After(now) {
			slot = at
		}
	}
	r.lastAction = slot
	r.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.mu.Lock()
		if r.lastAction.Equal(slot) {
			r.lastAction = prev
		}
		r.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if max < min {
		max = min
	}
	r.minDelay = min
	r.maxDelay = max
}

// Delays returns the current min and max delay.
func (r *SimpleRateLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.minDelay >= r.maxDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	return r.minDelay + rand.N(delta)
}

// AdaptiveRateLimiter slows down after repeated errors (blocks, 503s) and
// speeds back up slowly after a streak of successes.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
	floor         time.Duration
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		maxErrorCount:     3,
		backoffFactor:     1.5,
		floor:             minDelay,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.floor {
			newMin = a.floor
		}
		a.minDelay = newMin
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
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
		if newMax < newMin {
			newMax = newMin
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}

// TokenBucketRateLimiter allows short bursts up to maxTokens, refilling one
// token per refillRate, with a fixed pause after every acquired token.
type TokenBucketRateLimiter struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	minDelay time.Duration
}

func NewTokenBucketRateLimiter(maxTokens int, refillRate time.Duration) *TokenBucketRateLimiter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &TokenBucketRateLimiter{
		limiter:  rate.NewLimiter(rate.Every(refillRate), maxTokens),
		minDelay: 1 * time.Second,
	}
}

func (t *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	pause := t.minDelay
	t.mu.Unlock()
	if pause <= 0 {
		return nil
	}

	timer := time.NewTimer(pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *TokenBucketRateLimiter) SetDelay(min, max time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minDelay = min
}

// New picks a limiter by name: "simple", "token" or the default "adaptive".
func New(kind string, minDelay, maxDelay time.Duration, burst int) RateLimiter {
	switch kind {
	case "simple":
		return NewSimpleRateLimiter(minDelay, maxDelay)
	case "token":
		tb := NewTokenBucketRateLimiter(burst, maxDelay)
		tb.SetDelay(minDelay, maxDelay)
		return tb
	default:
		return NewAdaptiveRateLimiter(minDelay, maxDelay)
	}
}
