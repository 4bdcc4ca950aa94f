package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phambaophuc/background-remover/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stallingPublisher blocks every Publish until release is closed and ignores
// its context, like a broker client stuck on a full TCP buffer.
type stallingPublisher struct {
	release   chan struct{}
	published atomic.Int32
	closed    atomic.Bool
}

func newStallingPublisher() *stallingPublisher {
	return &stallingPublisher{release: make(chan struct{})}
}

func (p *stallingPublisher) Publish(context.Context, *models.RemovalEvent) error {
	<-p.release
	p.published.Add(1)
	return nil
}

func (p *stallingPublisher) HealthCheck() string { return models.HealthHealthy }

func (p *stallingPublisher) Close() error {
	p.closed.Store(true)
	return nil
}

type collectingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *collectingPublisher) Publish(_ context.Context, e *models.RemovalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e.ID)
	return nil
}

func (p *collectingPublisher) HealthCheck() string { return models.HealthHealthy }
func (p *collectingPublisher) Close() error        { return nil }

func TestAsyncPublisher_DeliversInOrder(t *testing.T) {
	t.Parallel()

	next := &collectingPublisher{}
	p := NewAsyncPublisher(next, 8, time.Second, zap.NewNop())

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.Publish(context.Background(), &models.RemovalEvent{ID: id}))
	}
	require.NoError(t, p.Close())

	assert.Equal(t, []string{"a", "b", "c"}, next.events)
	assert.ErrorIs(t, p.Publish(context.Background(), &models.RemovalEvent{ID: "d"}), ErrPublisherClosed)
	assert.NoError(t, p.Close())
}

func TestAsyncPublisher_StalledBrokerNeverBlocksCaller(t *testing.T) {
	t.Parallel()

	next := newStallingPublisher()
	p := NewAsyncPublisher(next, 2, 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	// One event is taken by the worker and stalls; two fill the queue.
	var queueFull int
	for i := 0; i < 10; i++ {
		if err := p.Publish(context.Background(), &models.RemovalEvent{}); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			queueFull++
		}
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.GreaterOrEqual(t, queueFull, 7)

	// Close gives up after the timeout while the broker is still stuck.
	require.NoError(t, p.Close())
	assert.True(t, next.closed.Load())
	assert.Zero(t, next.published.Load())

	close(next.release)
}

func TestAsyncPublisher_HealthCheckDelegates(t *testing.T) {
	t.Parallel()

	p := NewAsyncPublisher(NewNoopPublisher(), 0, 0, zap.NewNop())
	defer p.Close()

	assert.Equal(t, models.HealthNotConfigured, p.HealthCheck())
	assert.Eventually(t, func() bool {
		return p.Publish(context.Background(), &models.RemovalEvent{}) == nil
	}, time.Second, 10*time.Millisecond)
}
