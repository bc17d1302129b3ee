package ratelimiter

import "sync"

// RateLimiter decides whether a request may proceed. Allow returns true
// when the request is within the limit.
type RateLimiter interface {
	Allow() bool
}

// PerKey maintains one RateLimiter per key (typically a user id), creating
// limiters lazily from the factory. Safe for concurrent use.
type PerKey struct {
	mu       sync.Mutex
	factory  func() RateLimiter
	limiters map[string]RateLimiter
}

// NewPerKey creates a PerKey registry that builds limiters with factory.
func NewPerKey(factory func() RateLimiter) *PerKey {
	return &PerKey{
		factory:  factory,
		limiters: make(map[string]RateLimiter),
	}
}

// Allow reports whether the request for key is within that key's limit.
func (p *PerKey) Allow(key string) bool {
	p.mu.Lock()
	limiter, ok := p.limiters[key]
	if !ok {
		limiter = p.factory()
		p.limiters[key] = limiter
	}
	p.mu.Unlock()

	return limiter.Allow()
}
