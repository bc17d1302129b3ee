package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketAllowsBurstUpToCapacity(t *testing.T) {
	tb := NewTokenBucket(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "request %d should pass", i)
	}
	assert.False(t, tb.Allow(), "bucket should be empty after the burst")
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(100, 1)

	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, tb.Allow(), "bucket should refill after waiting")
}

func TestSlidingWindowEnforcesLimit(t *testing.T) {
	sw := NewSlidingWindow(3, time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, sw.Allow(), "request %d should pass", i)
	}
	assert.False(t, sw.Allow(), "window is full")
}

func TestSlidingWindowAgesOutOldRequests(t *testing.T) {
	sw := NewSlidingWindow(2, 50*time.Millisecond)

	assert.True(t, sw.Allow())
	assert.True(t, sw.Allow())
	assert.False(t, sw.Allow())

	time.Sleep(100 * time.Millisecond)
	assert.True(t, sw.Allow(), "old requests should have aged out of the window")
}

func TestPerKeyIsolatesKeys(t *testing.T) {
	reg := NewPerKey(func() RateLimiter {
		return NewTokenBucket(0.001, 1)
	})

	assert.True(t, reg.Allow("alice"))
	assert.False(t, reg.Allow("alice"), "alice exhausted her bucket")
	assert.True(t, reg.Allow("bob"), "bob has his own bucket")
}
