package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/phambaophuc/background-remover/internal/apperror"
	"github.com/phambaophuc/background-remover/internal/models"
	"github.com/phambaophuc/background-remover/internal/services/events"
	imgvalidator "github.com/phambaophuc/background-remover/internal/services/validator"
	"github.com/phambaophuc/background-remover/pkg/utils"
	"go.uber.org/zap"
)

const multipartOverhead = 1 << 20

// === REQUEST PARSING ===

// readIncomingImage extracts the upload from a multipart or JSON body. The
// body is capped a little above what a maximum-size image needs in either
// encoding.
func (h *BackgroundHandler) readIncomingImage(c *gin.Context) (*models.IncomingImage, error) {
	maxSize := h.validator.MaxSize()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize*4/3+multipartOverhead)

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType == "application/json" {
		return h.readBase64Image(c)
	}
	return h.readMultipartImage(c)
}

func (h *BackgroundHandler) readBase64Image(c *gin.Context) (*models.IncomingImage, error) {
	var req models.Base64ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		var fieldErrs validator.ValidationErrors
		switch {
		case errors.As(err, &maxErr):
			return nil, apperror.Validation(h.validator.SizeExceededMessage())
		case errors.As(err, &fieldErrs), errors.Is(err, io.EOF):
			return nil, apperror.Validation(imgvalidator.MsgNoFile)
		default:
			return nil, apperror.Validation(MsgInvalidBase64)
		}
	}

	mimeType, data, err := utils.ParseDataURI(req.Base64Image)
	if err != nil {
		return nil, apperror.Validation(MsgInvalidBase64)
	}

	return &models.IncomingImage{
		Bytes:     data,
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
	}, nil
}

func (h *BackgroundHandler) readMultipartImage(c *gin.Context) (*models.IncomingImage, error) {
	file, header, err := c.Request.FormFile(imageParamKey)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperror.Validation(h.validator.SizeExceededMessage())
		}
		return nil, apperror.Validation(imgvalidator.MsgNoFile)
	}
	defer file.Close()
	if c.Request.MultipartForm != nil {
		defer c.Request.MultipartForm.RemoveAll()
	}

	if header.Size > h.validator.MaxSize() {
		return nil, apperror.Validation(h.validator.SizeExceededMessage())
	}

	data, err := io.ReadAll(io.LimitReader(file, h.validator.MaxSize()+1))
	if err != nil {
		return nil, apperror.Processing("Failed to read upload", err)
	}

	return &models.IncomingImage{
		Bytes:        data,
		MimeType:     header.Header.Get("Content-Type"),
		SizeBytes:    header.Size,
		OriginalName: header.Filename,
	}, nil
}

// === EVENTS ===

// publish hands the event to the configured publisher, which must not block
// (see events.AsyncPublisher).
func (h *BackgroundHandler) publish(rc models.RequestContext, in *models.IncomingImage, out *models.ProcessedImage, duration time.Duration, removeErr error) {
	event := events.NewRemovalEvent(rc, in, out, duration, removeErr)
	if err := h.publisher.Publish(context.Background(), event); err != nil {
		h.logger.Warn("Removal event not published",
			zap.String("request_id", rc.RequestID),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

// === UTILITY METHODS ===

func (h *BackgroundHandler) calculateOverallHealth(services map[string]string) string {
	for _, status := range services {
		if status != models.HealthHealthy && status != models.HealthNotConfigured {
			return models.HealthUnhealthy
		}
	}
	return models.HealthHealthy
}
