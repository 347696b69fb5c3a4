// Package jobs runs periodic maintenance tied to the check-in calendar.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DayRollover fires at local midnight of the check-in time zone.
const DayRollover = "0 0 * * *"

// Scheduler wraps a cron runner whose schedules are evaluated in one time zone.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler creates a stopped Scheduler. Panicking jobs are recovered and logged.
func NewScheduler(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(logger)))),
	)
	return &Scheduler{cron: c, logger: logger}
}

// Add registers fn under a standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		fn()
		s.logger.Info("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// Next returns the earliest upcoming run over all jobs. Zero if nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	now := time.Now().In(s.cron.Location())
	var next time.Time
	for _, entry := range s.cron.Entries() {
		if t := entry.Schedule.Next(now); next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}
