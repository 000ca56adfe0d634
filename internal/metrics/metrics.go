package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Prefix = "rollcall_"

type (
	RecordOutcome string
	ChunkResult   string
	AttemptResult string
	CacheResult   string
)

const (
	RecordPersisted RecordOutcome = "persisted"
	RecordFailed    RecordOutcome = "failed"

	ChunkInserted ChunkResult = "inserted"
	ChunkSkipped  ChunkResult = "skipped"

	AttemptSucceeded AttemptResult = "success"
	AttemptRetried   AttemptResult = "retry"
	AttemptGaveUp    AttemptResult = "give_up"

	CacheHit   CacheResult = "hit"
	CacheMiss  CacheResult = "miss"
	CacheError CacheResult = "error"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	jobsSubmitted   prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	records         *prometheus.CounterVec
	chunks          *prometheus.CounterVec
	chunkDuration   prometheus.Histogram
	attempts        *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	activeJobs      prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
	retentionPruned prometheus.Counter
}

// New registers the pipeline collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: Prefix + "jobs_submitted_total",
			Help: "Number of ingestion jobs accepted by the gateway",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "jobs_finished_total",
			Help: "Number of ingestion jobs that reached a terminal state, grouped by status",
		}, []string{"status"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "records_total",
			Help: "Number of input records handled, grouped by outcome",
		}, []string{"outcome"}),
		chunks: f.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "chunks_total",
			Help: "Number of record chunks handled, grouped by result",
		}, []string{"result"}),
		chunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    Prefix + "chunk_duration_seconds",
			Help:    "Time to push one chunk downstream and persist it",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "job_attempts_total",
			Help: "Number of executor attempts, grouped by result",
		}, []string{"result"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: Prefix + "executor_queue_depth",
			Help: "Jobs waiting in the executor queue",
		}),
		activeJobs: f.NewGauge(prometheus.GaugeOpts{
			Name: Prefix + "executor_active_jobs",
			Help: "Jobs queued or running in the executor",
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "cache_lookups_total",
			Help: "Job cache lookups, grouped by result",
		}, []string{"result"}),
		retentionPruned: f.NewCounter(prometheus.CounterOpts{
			Name: Prefix + "retention_deleted_jobs_total",
			Help: "Number of completed jobs removed by the retention sweep",
		}),
	}
}

func (m *Metrics) RecordJobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
}

func (m *Metrics) RecordJobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinished.With(prometheus.Labels{"status": status}).Inc()
}

func (m *Metrics) RecordRecords(outcome RecordOutcome, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.With(prometheus.Labels{"outcome": string(outcome)}).Add(float64(n))
}

func (m *Metrics) RecordChunk(result ChunkResult, took time.Duration) {
	if m == nil {
		return
	}
	m.chunks.With(prometheus.Labels{"result": string(result)}).Inc()
	if result == ChunkInserted {
		m.chunkDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) RecordAttempt(result AttemptResult) {
	if m == nil {
		return
	}
	m.attempts.With(prometheus.Labels{"result": string(result)}).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetActiveJobs(n int) {
	if m == nil {
		return
	}
	m.activeJobs.Set(float64(n))
}

func (m *Metrics) RecordCacheLookup(result CacheResult) {
	if m == nil {
		return
	}
	m.cacheLookups.With(prometheus.Labels{"result": string(result)}).Inc()
}

func (m *Metrics) RecordRetentionDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.retentionPruned.Add(float64(n))
}
