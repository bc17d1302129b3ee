package httpmiddleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
	"github.com/bigballadanny/dwschatbot/pkg/ratelimiter"
)

const (
	HeaderUserID  = "X-User-ID"
	HeaderTraceID = "X-Trace-ID"

	ContextUserID  = "userID"
	ContextTraceID = "traceID"
)

// UserScope requires the X-User-ID header and stores the value in the request
// context. Every corpus operation belongs to exactly one user, so requests
// without an identity are rejected before they reach a handler.
func UserScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing X-User-ID header"})
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// RequestLogger emits one structured line per request with method, path,
// status and latency. The trace id comes from X-Trace-ID or is generated.
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(ContextTraceID, traceID)

		c.Next()

		log := logger.New(serviceName, traceID, c.GetString(ContextUserID)).
			WithRequest(models.RequestInfo{
				Method:     c.Request.Method,
				Path:       c.Request.URL.Path,
				RemoteAddr: c.ClientIP(),
				UserAgent:  c.Request.UserAgent(),
			}).
			WithPayload(map[string]interface{}{
				"status":     c.Writer.Status(),
				"latency_ms": time.Since(start).Milliseconds(),
			})
		log.Info("request completed")
	}
}

// RateLimit applies a single shared limiter to every request on the route.
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// RateLimitPerUser applies one limiter per user id. Must run after UserScope
// so the user id is already present in the context.
func RateLimitPerUser(reg *ratelimiter.PerKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !reg.Allow(c.GetString(ContextUserID)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// LimiterFactory builds the per-user limiter constructor selected by the
// configuration. An empty algorithm means token bucket.
func LimiterFactory(cfg config.RateLimiterConfig) (func() ratelimiter.RateLimiter, error) {
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = "tokenBucket"
	}

	switch algorithm {
	case "tokenBucket":
		tb := cfg.TokenBucket
		return func() ratelimiter.RateLimiter {
			return ratelimiter.NewTokenBucket(tb.Rate, float64(tb.Capacity))
		}, nil
	case "slidingWindow":
		sw := cfg.SlidingWindow
		window, err := time.ParseDuration(sw.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid slidingWindow window: %w", err)
		}
		return func() ratelimiter.RateLimiter {
			return ratelimiter.NewSlidingWindow(sw.Limit, window)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported rate limiter algorithm: %s", algorithm)
	}
}
