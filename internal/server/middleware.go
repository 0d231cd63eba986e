package server

import (
	"net/http"

	"gitvault/internal/auth"
	"gitvault/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// rateLimitMiddleware rejects requests from users over their quota.
// It runs after the auth middleware so the principal is known.
func rateLimitMiddleware(limiter *ratelimit.UserLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"kind": "unauthorized", "message": "unauthorized"},
			})
			return
		}

		if !limiter.Allow(user.ID.String()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   gin.H{"kind": "rate_limited", "message": "too many requests"},
			})
			return
		}
		c.Next()
	}
}
