package ratelimit

import (
	"sync"
	"time"
)

// Limiter gates outbound requests against a shared rate budget.
type Limiter interface {
	// Allow reports whether a request may proceed right now.
	Allow() bool
	// Wait blocks until the limiter allows another request.
	Wait()
	// Reset clears limiter state.
	Reset()
}

// Interval enforces a minimum spacing between successive requests on one
// backend session. The last-request timestamp is shared state and stays
// mutex-guarded so concurrent callers serialize correctly.
type Interval struct {
	spacing time.Duration
	last    time.Time
	mu      sync.Mutex
}

// NewInterval creates a limiter that spaces requests at least `spacing`
// apart.
func NewInterval(spacing time.Duration) *Interval {
	return &Interval{spacing: spacing}
}

// Allow reports whether enough time has passed since the previous request,
// claiming the slot when it has.
func (i *Interval) Allow() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	if i.last.IsZero() || now.Sub(i.last) >= i.spacing {
		i.last = now
		return true
	}
	return false
}

// Wait blocks until the spacing has elapsed, then claims the slot.
func (i *Interval) Wait() {
	for {
		i.mu.Lock()
		now := time.Now()
		if i.last.IsZero() || now.Sub(i.last) >= i.spacing {
			i.last = now
			i.mu.Unlock()
			return
		}
		remaining := i.spacing - now.Sub(i.last)
		i.mu.Unlock()
		time.Sleep(remaining)
	}
}

// Reset clears the last-request timestamp.
func (i *Interval) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.last = time.Time{}
}

// TokenBucket implements a token bucket rate limiter. The full bucket is
// restored each refill period.
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a token bucket with the given capacity per period.
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available.
func (tb *TokenBucket) Wait() {
	for !tb.Allow() {
		tb.mu.Lock()
		untilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if untilRefill > 0 {
			time.Sleep(untilRefill)
		} else {
			// Small sleep to avoid busy waiting.
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// Reset refills the bucket to capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}
