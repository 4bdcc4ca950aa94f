package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/background-remover/internal/apperror"
	"github.com/phambaophuc/background-remover/internal/config"
	"github.com/phambaophuc/background-remover/internal/http/handlers"
	"github.com/phambaophuc/background-remover/internal/http/middleware"
	"github.com/phambaophuc/background-remover/internal/http/response"
	"github.com/phambaophuc/background-remover/internal/services/auth"
	"github.com/phambaophuc/background-remover/internal/services/ratelimit"
	"go.uber.org/zap"
)

type Router struct {
	handler *handlers.BackgroundHandler
	auth    *auth.APIKeyAuthenticator
	limiter ratelimit.Limiter
	config  *config.Config
	logger  *zap.Logger
}

// NewRouter wires the gateway routes. A nil limiter disables rate limiting.
func NewRouter(
	handler *handlers.BackgroundHandler,
	authenticator *auth.APIKeyAuthenticator,
	limiter ratelimit.Limiter,
	config *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		handler: handler,
		auth:    authenticator,
		limiter: limiter,
		config:  config,
		logger:  logger,
	}
}

func (r *Router) SetupRoutes() (*gin.Engine, error) {
	router := gin.New()

	if err := router.SetTrustedProxies(r.config.Server.TrustedProxies); err != nil {
		return nil, err
	}

	router.Use(middleware.RequestContext())
	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.ErrorHandler(r.logger))
	router.Use(middleware.CORS(r.config.Server.AllowedOrigins, r.config.Auth.Header))
	router.Use(middleware.SecurityHeaders())

	router.GET("/", r.handler.Index)
	router.GET("/ping", r.handler.Ping)
	router.GET("/health", r.handler.HealthCheck)

	removal := []gin.HandlerFunc{}
	if r.auth != nil && r.auth.Enabled() {
		removal = append(removal, middleware.APIKey(r.auth, r.config.Auth.Header, r.logger))
	}
	if r.limiter != nil {
		removal = append(removal, middleware.RateLimit(r.limiter, r.logger))
	}
	removal = append(removal, middleware.ValidateContentType(), r.handler.RemoveBackground)
	router.POST("/remove-background", removal...)

	router.NoRoute(func(ctx *gin.Context) {
		response.Error(ctx, apperror.NotFound("Route not found"))
	})

	return router, nil
}
