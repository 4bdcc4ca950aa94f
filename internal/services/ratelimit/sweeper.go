package ratelimit

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically evicts closed windows from a MemoryLimiter so that
// one-off clients do not accumulate.
type Sweeper struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func NewSweeper(limiter *MemoryLimiter, schedule string, logger *zap.Logger) (*Sweeper, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if removed := limiter.Sweep(); removed > 0 {
			logger.Debug("Rate limit windows swept",
				zap.Int("removed", removed),
				zap.Int("remaining", limiter.Len()))
		}
	})
	if err != nil {
		return nil, err
	}

	return &Sweeper{cron: c, logger: logger}, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that is done once a running
// sweep has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}
