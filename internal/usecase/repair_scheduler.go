package usecase

import (
	"context"
	"time"

	"BarLake/pkg/logger"
	"BarLake/pkg/queue"
)

// RepairScheduler enqueues a repair-all job every interval. Without a
// queue it runs the repair in-process instead.
type RepairScheduler struct {
	interval time.Duration
	jobs     queue.Enqueuer
	repairer *GapRepairer
	logger   *logger.Logger
}

func NewRepairScheduler(interval time.Duration, jobs queue.Enqueuer, repairer *GapRepairer, l *logger.Logger) *RepairScheduler {
	return &RepairScheduler{interval: interval, jobs: jobs, repairer: repairer, logger: l}
}

func (s *RepairScheduler) Enabled() bool { return s != nil && s.interval > 0 }

// Run blocks until ctx is done.
func (s *RepairScheduler) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("repair scheduler started", logger.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *RepairScheduler) tick(ctx context.Context) {
	if s.jobs != nil {
		if err := s.jobs.Enqueue(ctx, RepairJobType, RepairPayload{}); err != nil {
			s.logger.Error("schedule repair failed", logger.Error(err))
		}
		return
	}
	if _, err := s.repairer.RepairAll(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled repair failed", logger.Error(err))
	}
}
