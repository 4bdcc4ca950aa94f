package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/background-remover/internal/apperror"
	"github.com/phambaophuc/background-remover/internal/http/response"
	"go.uber.org/zap"
)

// ErrorHandler handles panics and errors
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(ctx *gin.Context, recovered interface{}) {
		requestID, _ := ctx.Get(RequestIDKey)
		logger.Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", ctx.Request.URL.Path),
			zap.String("method", ctx.Request.Method),
			zap.Any("request_id", requestID),
		)

		response.Abort(ctx, apperror.Processing("Internal server error", fmt.Errorf("panic: %v", recovered)))
	})
}
