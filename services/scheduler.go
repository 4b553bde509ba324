package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"leaps-tracker/logger"
)

// Scheduler runs periodic maintenance jobs until Shutdown.
type Scheduler struct {
	sched gocron.Scheduler
	log   logger.Logger
}

func NewScheduler(log logger.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{sched: sched, log: log}, nil
}

// Every registers fn to run on a fixed interval. A run still in progress when the next
// one is due is skipped.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := fn(ctx); err != nil {
				s.log.Error("scheduled job failed", "job", name, err)
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}

func (s *Scheduler) Start() { s.sched.Start() }

func (s *Scheduler) Shutdown() error { return s.sched.Shutdown() }

// StartViewRefresh refreshes the materialized views every interval.
func (m *MaterializedViews) StartViewRefresh(ctx context.Context, s *Scheduler, interval time.Duration) error {
	return s.Every(ctx, "refresh-materialized-views", interval, func(ctx context.Context) error {
		_, err := m.Refresh(ctx)
		return err
	})
}
