package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/rollcall/internal/domain"
)

func TestSweepDeletesOldCompletedJobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100)

	oldID := completedJob(t, h)
	_, err := h.jobs.Snapshot(ctx, oldID) // populate the cache
	require.NoError(t, err)

	// Jobs finished "now"; sweep from 31 days in the future.
	sweeper := NewRetentionSweeper(h.jobRepo, h.jobs, 30, "@daily", nil)
	h.jobs.now = func() time.Time { return testNow.AddDate(0, 0, 31) }

	recentID := h.createJob(t, 2)
	_, err = h.processor.Process(ctx, recentID, rawBatch(2))
	require.NoError(t, err)

	failedID := h.createJob(t, 1)
	_, err = h.jobs.Mutate(ctx, failedID, func(j *domain.IngestionJob) error {
		return j.Fail("boom", true, testNow)
	})
	require.NoError(t, err)

	res, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedJobs)
	assert.Equal(t, testNow.AddDate(0, 0, 1), res.Cutoff)

	_, err = h.jobs.Snapshot(ctx, oldID)
	assert.ErrorIs(t, err, ErrJobNotFound, "cached snapshot is dropped with the job")

	stored, err := h.records.CountByJob(ctx, oldID)
	require.NoError(t, err)
	assert.Zero(t, stored)

	_, err = h.jobs.Snapshot(ctx, recentID)
	assert.NoError(t, err)
	_, err = h.jobs.Snapshot(ctx, failedID)
	assert.NoError(t, err, "failed jobs are kept for diagnosis")
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	h := newHarness(t, 100)
	sweeper := NewRetentionSweeper(h.jobRepo, h.jobs, 30, "every tuesday", nil)

	assert.Error(t, sweeper.Start(context.Background()))
}

func TestSweeperStartStop(t *testing.T) {
	h := newHarness(t, 100)
	sweeper := NewRetentionSweeper(h.jobRepo, h.jobs, 30, "@every 1h", nil)

	require.NoError(t, sweeper.Start(context.Background()))
	sweeper.Stop()
}
