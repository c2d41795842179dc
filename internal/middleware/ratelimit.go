package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/service"
)

// RateLimitMiddleware must run after AuthMiddleware.
func RateLimitMiddleware(rm *service.RelayerManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		relayer, ok := RelayerFrom(c)
		if !ok {
			c.Error(apperrors.New(apperrors.ErrAuthFailed, "unauthorized", nil))
			c.Abort()
			return
		}

		limiter := rm.Limiter(relayer.ID)
		if limiter == nil {
			c.Next()
			return
		}

		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.Error(apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
