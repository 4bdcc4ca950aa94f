package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/background-remover/internal/apperror"
	"github.com/phambaophuc/background-remover/internal/services/ratelimit"
	"go.uber.org/zap"
)

const MsgTooManyRequests = "Too many requests"

// RateLimit admits at most the limiter's quota per client IP. When the
// limiter itself fails the request is let through.
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := ctx.ClientIP()

		d, err := limiter.Allow(ctx.Request.Context(), key)
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request",
				zap.String("client_ip", key),
				zap.Error(err))
			ctx.Next()
			return
		}

		ctx.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		ctx.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		ctx.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retryAfter := d.RetryAfter(time.Now())
			ctx.Header("Retry-After", strconv.Itoa(int(retryAfter/time.Second)))
			logger.Info("Rate limit exceeded",
				zap.String("client_ip", key),
				zap.Int("limit", d.Limit),
				zap.Time("reset_at", d.ResetAt))
			abort(ctx, apperror.RateLimit(MsgTooManyRequests))
			return
		}
		ctx.Next()
	}
}
