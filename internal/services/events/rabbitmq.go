package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phambaophuc/background-remover/internal/models"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var ErrChannelClosed = errors.New("rabbitmq channel is closed")

type RabbitMQPublisher struct {
	mu            sync.Mutex
	conn          *amqp.Connection
	channel       *amqp.Channel
	channelClosed atomic.Bool
	logger        *zap.Logger
	queueName     string
}

func NewRabbitMQPublisher(url, queueName string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	p := &RabbitMQPublisher{
		conn:      conn,
		channel:   channel,
		logger:    logger,
		queueName: queueName,
	}
	go p.watchChannel(channel.NotifyClose(make(chan *amqp.Error, 1)))

	return p, nil
}

// watchChannel marks the publisher unhealthy once the broker closes the
// channel, which can happen while the connection stays open.
func (p *RabbitMQPublisher) watchChannel(closed <-chan *amqp.Error) {
	if err, ok := <-closed; ok && err != nil {
		p.logger.Error("RabbitMQ channel closed",
			zap.Int("code", err.Code),
			zap.String("reason", err.Reason))
	}
	p.channelClosed.Store(true)
}

// Publish sends event as a persistent JSON message. amqp.Channel is not safe
// for concurrent publishing, hence the mutex.
func (p *RabbitMQPublisher) Publish(ctx context.Context, event *models.RemovalEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.channelClosed.Load() {
		return ErrChannelClosed
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Removal event published",
		zap.String("event_id", event.ID),
		zap.String("request_id", event.RequestID))
	return nil
}

// HealthCheck checks if RabbitMQ is available
func (p *RabbitMQPublisher) HealthCheck() string {
	if p.conn == nil || p.conn.IsClosed() {
		return models.HealthUnhealthy + ": connection closed"
	}
	if p.channel == nil || p.channelClosed.Load() {
		return models.HealthUnhealthy + ": channel not available"
	}
	return models.HealthHealthy
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
