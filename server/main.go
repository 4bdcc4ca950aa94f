package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/background-remover/internal/config"
	"github.com/phambaophuc/background-remover/internal/http/handlers"
	"github.com/phambaophuc/background-remover/internal/http/response"
	"github.com/phambaophuc/background-remover/internal/http/routes"
	"github.com/phambaophuc/background-remover/internal/models"
	"github.com/phambaophuc/background-remover/internal/services/auth"
	"github.com/phambaophuc/background-remover/internal/services/events"
	"github.com/phambaophuc/background-remover/internal/services/ratelimit"
	"github.com/phambaophuc/background-remover/internal/services/remover"
	"github.com/phambaophuc/background-remover/internal/services/storage"
	"github.com/phambaophuc/background-remover/internal/services/validator"
	"github.com/phambaophuc/background-remover/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	zapLogger, err := logger.New(os.Getenv("LOG_LEVEL") == "debug")
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer zapLogger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize services
	authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.Enabled, cfg.Auth.APIKey)
	if !authenticator.Enabled() {
		zapLogger.Warn("API key authentication is disabled")
	}

	formatter, err := response.NewFormatter(cfg.Response.Format)
	if err != nil {
		zapLogger.Fatal("Failed to initialize response formatter", zap.Error(err))
	}

	imageValidator := validator.NewImageValidator(cfg.Upload.MaxFileSize, cfg.Upload.AllowedTypes).
		WithMaxPixels(cfg.Upload.MaxPixels)

	backgroundRemover, err := remover.New(cfg.Remover, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize background remover", zap.Error(err))
	}

	healthChecks := map[string]handlers.HealthCheckFunc{
		"redis": func(context.Context) string { return models.HealthNotConfigured },
	}

	var (
		limiter    ratelimit.Limiter
		sweeper    *ratelimit.Sweeper
		redisStore *storage.RedisStore
	)
	if cfg.RateLimit.Enabled {
		switch cfg.RateLimit.Backend {
		case config.LimiterBackendRedis:
			redisStore = storage.NewRedisStore(cfg.Redis)
			if err := redisStore.Ping(context.Background()); err != nil {
				zapLogger.Warn("Redis unreachable at startup, rate limiting fails open until it recovers",
					zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			}
			limiter = ratelimit.NewRedisLimiter(redisStore.Client(), cfg.RateLimit.Max, cfg.RateLimit.Window, nil)
			healthChecks["redis"] = redisStore.HealthCheck
		default:
			memory := ratelimit.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window, nil)
			sweeper, err = ratelimit.NewSweeper(memory, cfg.RateLimit.SweepJob, zapLogger)
			if err != nil {
				zapLogger.Fatal("Failed to schedule rate limit sweeper", zap.Error(err))
			}
			sweeper.Start()
			limiter = memory
		}
		zapLogger.Info("Rate limiting enabled",
			zap.String("backend", cfg.RateLimit.Backend),
			zap.Int("max", cfg.RateLimit.Max),
			zap.Duration("window", cfg.RateLimit.Window))
	}

	var publisher events.Publisher = events.NewNoopPublisher()
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, zapLogger)
		if err != nil {
			zapLogger.Warn("Failed to initialize event publisher", zap.Error(err))
			// Continue without events for basic functionality
		} else {
			publisher = events.NewAsyncPublisher(rabbit, events.DefaultQueueSize, events.DefaultPublishTimeout, zapLogger)
		}
	}
	healthChecks["rabbitmq"] = func(context.Context) string { return publisher.HealthCheck() }

	// Initialize handlers
	backgroundHandler := handlers.NewBackgroundHandler(
		imageValidator,
		backgroundRemover,
		formatter,
		publisher,
		healthChecks,
		zapLogger,
	)

	router, err := routes.NewRouter(backgroundHandler, authenticator, limiter, cfg, zapLogger).SetupRoutes()
	if err != nil {
		zapLogger.Fatal("Failed to set up routes", zap.Error(err))
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      router,
	}

	// Start server
	go func() {
		zapLogger.Info("Starting server",
			zap.String("addr", server.Addr),
			zap.String("response_format", formatter.Format()),
			zap.Int64("max_file_size_mb", cfg.MaxFileSizeMB()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	if sweeper != nil {
		select {
		case <-sweeper.Stop().Done():
		case <-ctx.Done():
		}
	}
	if err := publisher.Close(); err != nil {
		zapLogger.Warn("Failed to close event publisher", zap.Error(err))
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			zapLogger.Warn("Failed to close redis client", zap.Error(err))
		}
	}

	zapLogger.Info("Server exited")
}
