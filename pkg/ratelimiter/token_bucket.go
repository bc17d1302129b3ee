package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket refills at a fixed rate up to a capacity and spends one token
// per allowed request. Refill happens lazily on Allow based on elapsed time,
// so an idle bucket recovers to full without a background goroutine.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64 // tokens added per second
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a bucket that starts full.
func NewTokenBucket(rate float64, capacity float64) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		capacity:   capacity,
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

var _ RateLimiter = (*TokenBucket)(nil)
