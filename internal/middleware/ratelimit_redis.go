// ratelimit_redis.go provides a Redis-backed rate limit middleware for multi-instance
// deployments, where the in-process token bucket in ratelimit.go would give each
// instance its own independent budget. Uses a GCRA limiter over go-redis.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter enforces a shared per-client rate limit through Redis.
type RedisRateLimiter struct {
	limiter           *redis_rate.Limiter
	requestsPerMinute int
	burst             int
}

// NewRedisRateLimiter creates a Redis-backed limiter. addr and password come
// from security.rate_limiting configuration.
func NewRedisRateLimiter(addr, password string, requestsPerMinute, burst int) *RedisRateLimiter {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	return &RedisRateLimiter{
		limiter:           redis_rate.NewLimiter(client),
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
	}
}

// RedisRateLimitMiddleware creates a Gin middleware that rate limits requests
// against the shared Redis budget. When Redis is unreachable the request is
// allowed through: availability over strict enforcement.
func RedisRateLimitMiddleware(rl *RedisRateLimiter) gin.HandlerFunc {
	limit := redis_rate.Limit{
		Rate:   rl.requestsPerMinute,
		Period: time.Minute,
		Burst:  rl.burst,
	}

	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		res, err := rl.limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
