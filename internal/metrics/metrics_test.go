package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordJobSubmitted()
	m.RecordJobSubmitted()
	m.RecordJobFinished("COMPLETED")
	m.RecordRecords(RecordPersisted, 247)
	m.RecordRecords(RecordFailed, 3)
	m.RecordChunk(ChunkInserted, 500*time.Millisecond)
	m.RecordChunk(ChunkSkipped, 0)
	m.RecordAttempt(AttemptRetried)
	m.RecordCacheLookup(CacheHit)
	m.RecordRetentionDeleted(4)
	m.SetQueueDepth(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("COMPLETED")))
	assert.Equal(t, 247.0, testutil.ToFloat64(m.records.WithLabelValues("persisted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.records.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunks.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("retry")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.retentionPruned))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.queueDepth))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordJobSubmitted()
		m.RecordChunk(ChunkInserted, time.Second)
		m.SetActiveJobs(1)
	})
}
