// Package sweeper periodically triggers removal of expired messages.
package sweeper

import (
	"context"
	"time"

	"github.com/npezzotti/go-crabs/internal/stats"
	"go.uber.org/zap"
)

type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Notifier is told when a sweep removed at least one message.
type Notifier interface {
	Notify()
}

type Scheduler struct {
	sweeper  Sweeper
	notifier Notifier
	stats    stats.StatsProvider
	log      *zap.SugaredLogger
	interval time.Duration
}

func NewScheduler(s Sweeper, n Notifier, sp stats.StatsProvider, logger *zap.SugaredLogger, interval time.Duration) *Scheduler {
	return &Scheduler{
		sweeper:  s,
		notifier: n,
		stats:    sp,
		log:      logger,
		interval: interval,
	}
}

// Run sweeps once per interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Infow("sweeper started", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	n, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.log.Errorw("sweep failed", "error", err)
		return
	}
	if n == 0 {
		return
	}

	s.stats.Add(stats.MessagesSwept, int(n))
	if s.notifier != nil {
		s.notifier.Notify()
	}
}
