// README: Per-client request throttle in front of the API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wayfarer/internal/modules/guard"
)

// RateLimit rejects clients that exceed limiter's per-IP budget. It sits in
// front of the per-session guard so one client cannot spin up sessions to
// dodge it.
func RateLimit(limiter *guard.KeyedLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ip := c.ClientIP(); !limiter.Allow(ip) {
			logger.Warn("client throttled", zap.String("client_ip", ip), zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
