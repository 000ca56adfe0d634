package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/timmy/rollcall/internal/logger"
	"github.com/timmy/rollcall/internal/metrics"
)

// SweepResult reports one retention sweep.
type SweepResult struct {
	DeletedJobs int       `json:"deleted_jobs"`
	Cutoff      time.Time `json:"cutoff"`
}

// RetentionSweeper deletes COMPLETED jobs older than a retention window on a cron schedule.
type RetentionSweeper struct {
	pruner   JobPruner
	jobs     *JobService
	days     int
	schedule string
	cron     *cron.Cron
	metrics  *metrics.Metrics
}

// NewRetentionSweeper creates a sweeper that keeps completed jobs for days.
func NewRetentionSweeper(pruner JobPruner, jobs *JobService, days int, schedule string, m *metrics.Metrics) *RetentionSweeper {
	return &RetentionSweeper{
		pruner:   pruner,
		jobs:     jobs,
		days:     days,
		schedule: schedule,
		cron:     cron.New(),
		metrics:  m,
	}
}

// Start registers the sweep on the cron schedule and starts the scheduler.
func (s *RetentionSweeper) Start(ctx context.Context) error {
	ctx = logger.SetComponent(ctx, "retention")
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Retention sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	logger.CtxInfo(ctx, "Retention sweep scheduled (%s, keep %d days)", s.schedule, s.days)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *RetentionSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep deletes completed jobs whose completed_at is older than the retention window.
func (s *RetentionSweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	cutoff := s.jobs.Now().AddDate(0, 0, -s.days)

	ids, err := s.pruner.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	s.jobs.Forget(ctx, ids...)
	s.metrics.RecordRetentionDeleted(len(ids))

	logger.With(logger.Fields{logger.FieldCount: len(ids)}).
		Info(ctx, "Deleted completed jobs older than %s", cutoff.Format(time.RFC3339))
	return &SweepResult{DeletedJobs: len(ids), Cutoff: cutoff}, nil
}
