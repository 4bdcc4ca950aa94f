package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS allows browser clients from allowedOrigins ("*" for any) and answers
// preflight requests directly.
func CORS(allowedOrigins []string, apiKeyHeader string) gin.HandlerFunc {
	allowAny := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAny = true
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}

	allowHeaders := strings.Join([]string{"Content-Type", "X-Request-ID", apiKeyHeader}, ", ")
	exposeHeaders := "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After"

	return func(ctx *gin.Context) {
		origin := ctx.GetHeader("Origin")
		if origin != "" {
			_, ok := allowed[strings.ToLower(origin)]
			if allowAny || ok {
				if allowAny {
					ctx.Header("Access-Control-Allow-Origin", "*")
				} else {
					ctx.Header("Access-Control-Allow-Origin", origin)
					ctx.Header("Vary", "Origin")
				}
				ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				ctx.Header("Access-Control-Allow-Headers", allowHeaders)
				ctx.Header("Access-Control-Expose-Headers", exposeHeaders)
			}
		}

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}
