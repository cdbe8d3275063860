package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/testschool/testschool-backend/internal/logger"
)

// RateLimiter is a fixed-window per-IP limiter on Redis: INCR the window key
// and set its expiry on first hit. Redis being down never blocks traffic.
type RateLimiter struct {
	log    *logger.Logger
	rdb    *goredis.Client
	window time.Duration
	max    int64
}

func NewRateLimiter(log *logger.Logger, rdb *goredis.Client, window time.Duration, max int64) *RateLimiter {
	return &RateLimiter{
		log:    log.With("middleware", "RateLimiter"),
		rdb:    rdb,
		window: window,
		max:    max,
	}
}

func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rdb == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := fmt.Sprintf("ratelimit:%s:%d", c.ClientIP(), time.Now().Unix()/int64(rl.window.Seconds()))
		count, err := rl.rdb.Incr(ctx, key).Result()
		if err != nil {
			rl.log.Warn("Rate limit check failed, allowing request", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			if err := rl.rdb.Expire(ctx, key, rl.window).Err(); err != nil {
				rl.log.Warn("Failed to set rate limit expiry", "error", err)
			}
		}
		if count > rl.max {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
