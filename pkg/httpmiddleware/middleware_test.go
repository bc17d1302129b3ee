package httpmiddleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/pkg/ratelimiter"
)

func TestLimiterFactoryDefaultsToTokenBucket(t *testing.T) {
	factory, err := LimiterFactory(config.RateLimiterConfig{
		TokenBucket: config.TokenBucketConfig{Rate: 1, Capacity: 5},
	})
	require.NoError(t, err)

	_, ok := factory().(*ratelimiter.TokenBucket)
	assert.True(t, ok, "empty algorithm should build a token bucket")
}

func TestLimiterFactorySelectsSlidingWindow(t *testing.T) {
	factory, err := LimiterFactory(config.RateLimiterConfig{
		Algorithm:     "slidingWindow",
		SlidingWindow: config.SlidingWindowConfig{Limit: 10, Window: "1s"},
	})
	require.NoError(t, err)

	_, ok := factory().(*ratelimiter.SlidingWindow)
	assert.True(t, ok)
}

func TestLimiterFactoryRejectsBadConfig(t *testing.T) {
	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := LimiterFactory(config.RateLimiterConfig{Algorithm: "dripFeed"})
		assert.Error(t, err)
	})
	t.Run("bad window duration", func(t *testing.T) {
		_, err := LimiterFactory(config.RateLimiterConfig{
			Algorithm:     "slidingWindow",
			SlidingWindow: config.SlidingWindowConfig{Limit: 10, Window: "soon"},
		})
		assert.Error(t, err)
	})
}
