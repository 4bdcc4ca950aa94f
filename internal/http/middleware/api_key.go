package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/background-remover/internal/services/auth"
	"go.uber.org/zap"
)

// APIKey rejects requests whose header does not carry the shared secret.
func APIKey(authenticator *auth.APIKeyAuthenticator, header string, logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if err := authenticator.Authenticate(ctx.GetHeader(header)); err != nil {
			logger.Info("Rejected request with invalid API key",
				zap.String("client_ip", ctx.ClientIP()),
				zap.String("path", ctx.Request.URL.Path),
				zap.Bool("key_present", ctx.GetHeader(header) != ""),
			)
			abort(ctx, err)
			return
		}
		ctx.Next()
	}
}
