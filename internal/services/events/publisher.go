package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phambaophuc/background-remover/internal/models"
)

// Publisher ships RemovalEvents to whoever is interested in them. Publishing
// is best-effort; a failure never changes the outcome of a request.
type Publisher interface {
	Publish(ctx context.Context, event *models.RemovalEvent) error
	HealthCheck() string
	Close() error
}

// NewRemovalEvent fills the identity and timing fields of an event.
func NewRemovalEvent(rc models.RequestContext, in *models.IncomingImage, out *models.ProcessedImage, duration time.Duration, err error) *models.RemovalEvent {
	event := &models.RemovalEvent{
		ID:         uuid.NewString(),
		RequestID:  rc.RequestID,
		ClientIP:   rc.ClientIP,
		DurationMs: duration.Milliseconds(),
		Status:     models.StatusCompleted,
		OccurredAt: time.Now().UTC(),
	}
	if in != nil {
		event.OriginalName = in.OriginalName
		event.MimeType = in.MimeType
		event.InputBytes = in.SizeBytes
	}
	if out != nil {
		event.OutputBytes = out.SizeBytes()
	}
	if err != nil {
		event.Status = models.StatusFailed
		event.Error = err.Error()
	}
	return event
}

type noopPublisher struct{}

// NewNoopPublisher is used when no broker is configured.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, *models.RemovalEvent) error { return nil }
func (noopPublisher) HealthCheck() string                                { return models.HealthNotConfigured }
func (noopPublisher) Close() error                                       { return nil }
