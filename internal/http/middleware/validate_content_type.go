package middleware

import (
	"fmt"
	"mime"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/background-remover/internal/apperror"
	"github.com/phambaophuc/background-remover/internal/http/response"
)

// ValidateContentType only lets multipart uploads and JSON bodies reach the
// upload handler.
func ValidateContentType() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		mediaType, _, err := mime.ParseMediaType(ctx.GetHeader("Content-Type"))
		if err != nil {
			abort(ctx, apperror.Validation("No file uploaded"))
			return
		}

		switch mediaType {
		case "multipart/form-data", "application/json":
			ctx.Next()
		default:
			abort(ctx, apperror.Validation(fmt.Sprintf("Unsupported content type '%s'. Send multipart/form-data or application/json.", mediaType)))
		}
	}
}

func abort(ctx *gin.Context, err error) {
	response.Abort(ctx, err)
}
