package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WindowCounter counts hits per key inside a fixed window. *cache.RedisCache satisfies it.
type WindowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RateLimiter struct {
	counter WindowCounter
	rate    int
	window  time.Duration
	logger  *logrus.Logger
}

func NewRateLimiter(counter WindowCounter, rate int, window time.Duration, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		rate:    rate,
		window:  window,
		logger:  logger,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hits, err := rl.counter.IncrementWindow(c.Request.Context(), rl.getKey(c), rl.window)
		if err != nil {
			// Redis outage must not take the API down with it.
			rl.logger.WithError(err).Warn("Rate limiter unavailable")
			c.Next()
			return
		}

		if hits > int64(rl.rate) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": rl.window.Seconds(),
			})
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) getKey(c *gin.Context) string {
	if userID := c.GetString(ContextUserID); userID != "" {
		return fmt.Sprintf("ratelimit:user:%s", userID)
	}
	return fmt.Sprintf("ratelimit:ip:%s", c.ClientIP())
}
