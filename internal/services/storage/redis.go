package storage

import (
	"context"
	"time"

	"github.com/phambaophuc/background-remover/internal/config"
	"github.com/phambaophuc/background-remover/internal/models"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

// RedisStore owns the Redis connection shared by the rate limiter and the
// health endpoint.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: pingTimeout,
	})

	return &RedisStore{client: client}
}

func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Ping fails when Redis cannot be reached within a short deadline.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// HealthCheck checks Redis
func (s *RedisStore) HealthCheck(ctx context.Context) string {
	if err := s.Ping(ctx); err != nil {
		return models.HealthUnhealthy
	}
	return models.HealthHealthy
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
