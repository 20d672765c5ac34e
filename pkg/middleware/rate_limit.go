package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/logger"
	redisclient "github.com/richxcame/dispatch/pkg/redis"
)

const rateLimitPrefix = "ratelimit:"

// RateLimit applies a fixed-window per-caller limit to the route group.
// The window is one minute; identity falls back to client IP for
// unauthenticated callers. Redis failures fail open.
func RateLimit(redis *redisclient.Client, requestsPerMinute int) gin.HandlerFunc {
	if requestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		identity := c.ClientIP()
		if uid, err := GetUserID(c); err == nil {
			identity = uid.String()
		}

		window := time.Now().Unix() / 60
		key := fmt.Sprintf("%s%s:%s:%d", rateLimitPrefix, c.FullPath(), identity, window)

		count, err := redis.Incr(c.Request.Context(), key).Result()
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limit evaluation failed",
				zap.String("identity", identity),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if count == 1 {
			redis.Expire(c.Request.Context(), key, time.Minute)
		}

		if count > int64(requestsPerMinute) {
			c.Header("Retry-After", "60")
			common.HandleError(c, common.NewRateLimitedError("rate limit exceeded"))
			c.Abort()
			return
		}

		c.Next()
	}
}
