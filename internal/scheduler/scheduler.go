package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the backlog pass the scheduler triggers.
type Sweeper interface {
	SweepUnprocessed(ctx context.Context, limit int) (int, error)
}

// Scheduler periodically re-enqueues stored emails that never got enriched,
// catching items lost to restarts or provider outages.
type Scheduler struct {
	cron       *cron.Cron
	sweeper    Sweeper
	sweepLimit int
	logger     *slog.Logger
}

// New creates a Scheduler. The sweep is not registered until Start is called.
func New(sweeper Sweeper, sweepLimit int, logger *slog.Logger) *Scheduler {
	if sweepLimit <= 0 {
		sweepLimit = 100
	}
	return &Scheduler{
		cron:       cron.New(),
		sweeper:    sweeper,
		sweepLimit: sweepLimit,
		logger:     logger,
	}
}

// Start registers the sweep on the given cron spec and starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.runSweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	if s.logger != nil {
		s.logger.Info("enrichment sweep scheduled", slog.String("spec", spec))
	}
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	queued, err := s.sweeper.SweepUnprocessed(ctx, s.sweepLimit)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("enrichment sweep failed", slog.Any("error", err))
		}
		return
	}
	if queued > 0 && s.logger != nil {
		s.logger.Info("enrichment sweep completed", slog.Int("queued", queued))
	}
}
