package mw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"camguard-backend/internal/logger"
)

// Lockout counts failed logins per client IP. A handler reports a failed
// attempt by answering 401; any 2xx or 3xx answer clears the count. Once limit
// failures are reached the client is refused with 429 for cooloff.
func Lockout(store *cache.Cache, limit int, cooloff time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := "login-failures:" + c.ClientIP()
		if n, found := store.Get(key); found && n.(int) >= limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many failed login attempts, try again later"})
			return
		}

		c.Next()

		status := c.Writer.Status()
		switch {
		case status == http.StatusUnauthorized:
			if err := store.Add(key, 1, cooloff); err == nil {
				return
			}
			n, err := store.IncrementInt(key, 1)
			if err != nil {
				store.Set(key, 1, cooloff)
				return
			}
			if n >= limit {
				// The lock lasts a full cooloff from the last failure.
				store.Set(key, n, cooloff)
				logger.Log.Warnf("locking out %s after %d failed logins", c.ClientIP(), n)
			}
		case status >= 200 && status < 400:
			store.Delete(key)
		}
	}
}
