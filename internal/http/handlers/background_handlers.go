package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/background-remover/internal/apperror"
	"github.com/phambaophuc/background-remover/internal/http/middleware"
	"github.com/phambaophuc/background-remover/internal/http/response"
	"github.com/phambaophuc/background-remover/internal/models"
	"github.com/phambaophuc/background-remover/internal/services/events"
	"github.com/phambaophuc/background-remover/internal/services/remover"
	"github.com/phambaophuc/background-remover/internal/services/validator"
	"go.uber.org/zap"
)

const (
	imageParamKey = "image"

	MsgRemoveFailed  = "Failed to remove background"
	MsgInvalidBase64 = "Invalid base64 image format"
)

// HealthCheckFunc reports the status of one dependency: "healthy",
// "unhealthy" or "not configured".
type HealthCheckFunc func(ctx context.Context) string

type BackgroundHandler struct {
	validator    *validator.ImageValidator
	remover      remover.Remover
	formatter    response.Formatter
	publisher    events.Publisher
	healthChecks map[string]HealthCheckFunc
	logger       *zap.Logger
}

func NewBackgroundHandler(
	imageValidator *validator.ImageValidator,
	backgroundRemover remover.Remover,
	formatter response.Formatter,
	publisher events.Publisher,
	healthChecks map[string]HealthCheckFunc,
	logger *zap.Logger,
) *BackgroundHandler {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &BackgroundHandler{
		validator:    imageValidator,
		remover:      backgroundRemover,
		formatter:    formatter,
		publisher:    publisher,
		healthChecks: healthChecks,
		logger:       logger,
	}
}

// === MAIN API ENDPOINTS ===

func (h *BackgroundHandler) Ping(c *gin.Context) {
	h.formatter.Pong(c)
}

func (h *BackgroundHandler) RemoveBackground(c *gin.Context) {
	rc := middleware.GetRequestContext(c)

	img, err := h.readIncomingImage(c)
	if err == nil {
		err = h.validator.Validate(img)
	}
	if err != nil {
		h.logger.Info("Rejected upload",
			zap.String("request_id", rc.RequestID),
			zap.String("reason", apperror.PublicMessage(err)))
		response.Error(c, err)
		return
	}

	h.logger.Info("Processing image",
		zap.String("request_id", rc.RequestID),
		zap.String("file_name", img.OriginalName),
		zap.String("mime_type", img.MimeType),
		zap.Float64("size_kb", float64(img.SizeBytes)/1024))

	start := time.Now()
	out, err := h.remover.Remove(c.Request.Context(), img.Bytes, img.MimeType)
	duration := time.Since(start)
	if err != nil {
		h.logger.Error("Background removal failed",
			zap.String("request_id", rc.RequestID),
			zap.Duration("duration", duration),
			zap.Error(err))
		h.publish(rc, img, nil, duration, err)
		response.Error(c, apperror.Processing(MsgRemoveFailed, err))
		return
	}

	processed := &models.ProcessedImage{
		Bytes:       out,
		MimeType:    models.MimeTypePNG,
		ProcessedAt: time.Now().UTC(),
		Duration:    duration,
	}

	h.logger.Info("Background removed",
		zap.String("request_id", rc.RequestID),
		zap.Duration("duration", duration),
		zap.Int64("output_bytes", processed.SizeBytes()))

	h.formatter.Success(c, processed)
	h.publish(rc, img, processed, duration, nil)
}

// HealthCheck
func (h *BackgroundHandler) HealthCheck(c *gin.Context) {
	services := make(map[string]string, len(h.healthChecks))
	for name, check := range h.healthChecks {
		services[name] = check(c.Request.Context())
	}
	overall := h.calculateOverallHealth(services)

	statusCode := http.StatusOK
	if overall == models.HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, models.APIResponse{
		Success: overall == models.HealthHealthy,
		Message: overall,
		Data: models.HealthCheck{
			Status:    overall,
			Timestamp: time.Now(),
			Services:  services,
		},
	})
}

// Index is the service banner.
func (h *BackgroundHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"message": "Background remover is running",
	})
}
