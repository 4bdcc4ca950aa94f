package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/phambaophuc/background-remover/internal/models"
	"go.uber.org/zap"
)

var (
	ErrQueueFull       = errors.New("event queue is full")
	ErrPublisherClosed = errors.New("event publisher is closed")
)

const (
	DefaultQueueSize      = 256
	DefaultPublishTimeout = 2 * time.Second
)

// AsyncPublisher queues events for a single background goroutine so that a
// slow or stalled broker never holds up a request. Events that do not fit in
// the queue are dropped.
type AsyncPublisher struct {
	next    Publisher
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *models.RemovalEvent
	done   chan struct{}
}

func NewAsyncPublisher(next Publisher, queueSize int, timeout time.Duration, logger *zap.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}

	p := &AsyncPublisher{
		next:    next,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan *models.RemovalEvent, queueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues event without blocking. ctx is not used past the call.
func (p *AsyncPublisher) Publish(_ context.Context, event *models.RemovalEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)

	for event := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.next.Publish(ctx, event); err != nil {
			p.logger.Warn("Failed to publish removal event",
				zap.String("event_id", event.ID),
				zap.String("request_id", event.RequestID),
				zap.Error(err))
		}
		cancel()
	}
}

func (p *AsyncPublisher) HealthCheck() string {
	return p.next.HealthCheck()
}

// Close stops accepting events and waits for the queue to drain, up to the
// publish timeout, before closing the underlying publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(p.timeout):
		p.logger.Warn("Event queue not drained before close", zap.Int("pending", len(p.queue)))
	}
	return p.next.Close()
}
