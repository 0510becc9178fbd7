package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one scheduled unit of work. cycle counts from 1.
type Job func(ctx context.Context, cycle int) error

// Scheduler runs a job once at startup and then every interval. Cycles never
// overlap: a cycle that outlasts the interval delays the next one.
type Scheduler struct {
	interval time.Duration
	job      Job
	logger   *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(interval time.Duration, job Job, logger *logrus.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}
	return &Scheduler{
		interval: interval,
		job:      job,
		logger:   logger,
	}, nil
}

// Run blocks until ctx is cancelled. Job errors are logged and do not stop
// the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.WithField("interval", s.interval.String()).Info("Scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cycle := 1
	s.execute(ctx, cycle)

	for {
		select {
		case <-ctx.Done():
			s.logger.WithField("cycles", cycle).Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			cycle++
			s.execute(ctx, cycle)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, cycle int) {
	if ctx.Err() != nil {
		return
	}

	fields := logrus.Fields{"cycle": cycle}
	s.logger.WithFields(fields).Info("Starting scheduled job")
	start := time.Now()

	err := s.job(ctx, cycle)
	fields["duration"] = time.Since(start).Round(time.Millisecond).String()

	switch {
	case err == nil:
		s.logger.WithFields(fields).Info("Scheduled job completed successfully")
	case errors.Is(err, context.Canceled):
		s.logger.WithFields(fields).Info("Scheduled job interrupted")
	default:
		s.logger.WithError(err).WithFields(fields).Error("Scheduled job failed")
	}
}
