package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/phambaophuc/background-remover/internal/models"
)

const (
	RequestIDKey      = "request_id"
	RequestContextKey = "request_context"
	RequestIDHeader   = "X-Request-ID"

	maxRequestIDLength = 128
)

// RequestContext stamps every request with an ID and the caller metadata
// used in logs and events.
func RequestContext() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := ctx.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		rc := models.RequestContext{
			RequestID:   requestID,
			RequestedAt: time.Now().UTC(),
			ClientIP:    ctx.ClientIP(),
			UserAgent:   ctx.Request.UserAgent(),
			Host:        ctx.Request.Host,
		}

		ctx.Set(RequestIDKey, requestID)
		ctx.Set(RequestContextKey, rc)
		ctx.Header(RequestIDHeader, requestID)
		ctx.Next()
	}
}

// GetRequestContext returns the metadata stored by RequestContext, or a
// minimal one built from ctx when the middleware did not run.
func GetRequestContext(ctx *gin.Context) models.RequestContext {
	if v, ok := ctx.Get(RequestContextKey); ok {
		if rc, ok := v.(models.RequestContext); ok {
			return rc
		}
	}
	return models.RequestContext{
		RequestedAt: time.Now().UTC(),
		ClientIP:    ctx.ClientIP(),
		UserAgent:   ctx.Request.UserAgent(),
		Host:        ctx.Request.Host,
	}
}
