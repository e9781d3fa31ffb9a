// Package sweeper closes out target pools whose deadline has passed.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/app/storage"
	"github.com/basesafe/pool-service/pkg/logger"
)

// DefaultSchedule runs the sweep every ten minutes.
const DefaultSchedule = "*/10 * * * *"

// Sweeper periodically marks active pools whose deadline has passed as
// completed. It implements system.Service.
type Sweeper struct {
	store    storage.PoolStore
	log      *logger.Logger
	schedule string
	cron     *cron.Cron
}

// New creates a sweeper. schedule is a cron expression; empty selects
// DefaultSchedule.
func New(store storage.PoolStore, schedule string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("sweeper")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		store:    store,
		log:      log,
		schedule: schedule,
	}
}

// Name implements system.Service.
func (s *Sweeper) Name() string { return "deadline-sweeper" }

// Start schedules the recurring sweep.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("schedule", s.schedule).Info("deadline sweeper started")
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("deadline sweeper stopped")
	return nil
}

// Sweep completes every active pool whose deadline is in the past. Per-pool
// failures are logged and the sweep continues.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.store.ListExpiredPools(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Error("deadline sweep: list expired pools")
		return
	}

	for _, p := range expired {
		p.Status = pool.StatusCompleted
		if _, err := s.store.UpdatePool(ctx, p); err != nil {
			s.log.WithError(err).WithField("pool_id", p.ID).Error("deadline sweep: complete pool")
			continue
		}
		s.log.WithField("pool_id", p.ID).Info("pool deadline passed, marked completed")
	}
}
