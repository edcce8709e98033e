package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const activeKeyPrefix = "taskboard:user:active:"

// ActivityTracker marks authenticated users as recently active so the
// admin console can show who is online.
func ActivityTracker(rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDVal, ok := c.Get("userID")
		if !ok {
			c.Next()
			return
		}
		userID, ok := userIDVal.(uint)
		if !ok {
			c.Next()
			return
		}

		if ttl <= 0 {
			ttl = 5 * time.Minute
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		key := fmt.Sprintf("%s%d", activeKeyPrefix, userID)
		_ = rdb.Set(ctx, key, "1", ttl).Err()

		c.Next()
	}
}

// ActiveUserKey 返回某个用户的在线标记键名。
func ActiveUserKey(userID uint) string {
	return fmt.Sprintf("%s%d", activeKeyPrefix, userID)
}
