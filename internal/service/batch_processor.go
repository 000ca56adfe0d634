package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/rollcall/internal/domain"
	"github.com/timmy/rollcall/internal/logger"
	"github.com/timmy/rollcall/internal/metrics"
	"github.com/timmy/rollcall/internal/validator"
)

// DefaultChunkSize is the number of valid records persisted per chunk.
const DefaultChunkSize = 100

// ErrInputMismatch is returned when the records handed to an attempt do not match the job.
var ErrInputMismatch = errors.New("records do not match job")

// Processor runs one attempt of a job over its raw input.
type Processor interface {
	Process(ctx context.Context, jobID string, records []domain.RawRecord) (*ProcessResult, error)
}

// ProcessResult summarizes one successful attempt.
type ProcessResult struct {
	JobID         string
	Total         int
	Processed     int
	Failed        int
	Chunks        int
	SkippedChunks int
}

// BatchProcessor validates, chunks and persists the records of one job.
type BatchProcessor struct {
	jobs       *JobService
	records    RecordStore
	failures   FailureStore
	validator  validator.Validator
	downstream Downstream
	chunkSize  int
	metrics    *metrics.Metrics
}

// NewBatchProcessor creates a BatchProcessor.
// Parameters:
//   - jobs: job state service used for every progress update.
//   - records: store for validated records.
//   - failures: store for per-record failures.
//   - v: record validator.
//   - downstream: external call made once per chunk.
//   - chunkSize: records per chunk; DefaultChunkSize when not positive.
//   - m: pipeline metrics, may be nil.
//
// Returns:
//   - *BatchProcessor: processor instance.
func NewBatchProcessor(
	jobs *JobService,
	records RecordStore,
	failures FailureStore,
	v validator.Validator,
	downstream Downstream,
	chunkSize int,
	m *metrics.Metrics,
) *BatchProcessor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &BatchProcessor{
		jobs:       jobs,
		records:    records,
		failures:   failures,
		validator:  v,
		downstream: downstream,
		chunkSize:  chunkSize,
		metrics:    m,
	}
}

type invalidRecord struct {
	index  int
	raw    domain.RawRecord
	fields map[string][]string
	err    error
}

// Process runs one attempt: validate every record, store failures, then push and
// store valid records chunk by chunk, publishing progress after each chunk.
// Chunks already stored by an earlier attempt are skipped without a downstream call.
// An error leaves earlier chunks committed and the job in PROCESSING for the caller to fail.
func (p *BatchProcessor) Process(ctx context.Context, jobID string, records []domain.RawRecord) (*ProcessResult, error) {
	ctx = logger.SetJobID(ctx, jobID)
	now := p.jobs.Now

	job, err := p.jobs.Mutate(ctx, jobID, func(j *domain.IngestionJob) error {
		if j.TotalRecords != len(records) {
			return fmt.Errorf("%w: expected %d records, got %d", ErrInputMismatch, j.TotalRecords, len(records))
		}
		return j.Begin(now())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}
	ctx = logger.WithField(ctx, logger.FieldAttempt, job.Attempts)

	valid, invalid := p.partition(jobID, records)
	logger.With(logger.Fields{
		"valid":   len(valid),
		"invalid": len(invalid),
	}).Info(ctx, "Validated %d records", len(records))

	if err := p.storeFailures(ctx, jobID, invalid); err != nil {
		return nil, err
	}
	failed := len(invalid)

	processed, err := p.records.CountByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := p.publishProgress(ctx, jobID, int(processed), failed); err != nil {
		return nil, err
	}

	result := &ProcessResult{JobID: jobID, Total: len(records), Failed: failed}
	chunks := chunk(valid, p.chunkSize)
	for i, c := range chunks {
		skipped, err := p.processChunk(ctx, jobID, i+1, c)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		result.Chunks++
		if skipped {
			result.SkippedChunks++
		}

		stored, err := p.records.CountByJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if err := p.publishProgress(ctx, jobID, int(stored), failed); err != nil {
			return nil, err
		}
		result.Processed = int(stored)
	}
	if len(chunks) == 0 {
		result.Processed = int(processed)
	}

	if _, err := p.jobs.Mutate(ctx, jobID, func(j *domain.IngestionJob) error {
		return j.Complete(now())
	}); err != nil {
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}

	logger.With(logger.Fields{
		"processed":      result.Processed,
		"failed":         result.Failed,
		"chunks":         result.Chunks,
		"skipped_chunks": result.SkippedChunks,
	}).Info(ctx, "Job completed")
	return result, nil
}

// partition validates every record once, keeping input order in both outputs.
// A record repeating the student_id of an earlier valid record is invalid, so every
// input lands in exactly one output.
func (p *BatchProcessor) partition(jobID string, records []domain.RawRecord) ([]*domain.StudentRecord, []invalidRecord) {
	valid := make([]*domain.StudentRecord, 0, len(records))
	var invalid []invalidRecord
	seen := make(map[string]struct{}, len(records))

	for i, raw := range records {
		rec, err := p.validator.Validate(raw)
		if err == nil {
			if _, dup := seen[rec.StudentID]; dup {
				err = &validator.ValidationError{Fields: map[string][]string{
					"student_id": {"Duplicate student_id found in the batch"},
				}}
			} else {
				seen[rec.StudentID] = struct{}{}
			}
		}
		if err != nil {
			bad := invalidRecord{index: i, raw: raw, err: err}
			var verr *validator.ValidationError
			if errors.As(err, &verr) {
				bad.fields = verr.Fields
			} else {
				bad.fields = map[string][]string{"non_field_errors": {err.Error()}}
			}
			invalid = append(invalid, bad)
			continue
		}
		rec.JobID = jobID
		valid = append(valid, rec)
	}
	return valid, invalid
}

func (p *BatchProcessor) storeFailures(ctx context.Context, jobID string, invalid []invalidRecord) error {
	if len(invalid) == 0 {
		return nil
	}
	rows := make([]*domain.IngestionFailure, 0, len(invalid))
	for _, bad := range invalid {
		row, err := domain.NewValidationFailure(jobID, bad.index, bad.raw, bad.fields, bad.err.Error())
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	added, err := p.failures.AppendFailures(ctx, rows)
	if err != nil {
		return err
	}
	p.metrics.RecordRecords(metrics.RecordFailed, int(added))
	return nil
}

// processChunk pushes one chunk downstream and stores it. It reports true when
// every record of the chunk was already stored and the chunk was skipped.
func (p *BatchProcessor) processChunk(ctx context.Context, jobID string, n int, c []*domain.StudentRecord) (bool, error) {
	ctx = logger.WithField(ctx, logger.FieldChunk, n)
	start := time.Now()

	ids := make([]string, len(c))
	for i, rec := range c {
		ids[i] = rec.StudentID
	}
	existing, err := p.records.ExistingStudentIDs(ctx, jobID, ids)
	if err != nil {
		return false, err
	}
	if len(existing) == len(c) {
		p.metrics.RecordChunk(metrics.ChunkSkipped, 0)
		logger.CtxDebug(ctx, "Chunk already stored by an earlier attempt, skipping")
		return true, nil
	}

	if err := p.downstream.Call(ctx, c); err != nil {
		return false, fmt.Errorf("downstream call failed: %w", err)
	}
	inserted, err := p.records.InsertChunk(ctx, c)
	if err != nil {
		return false, err
	}

	took := time.Since(start)
	p.metrics.RecordChunk(metrics.ChunkInserted, took)
	p.metrics.RecordRecords(metrics.RecordPersisted, int(inserted))
	logger.With(logger.Fields{
		logger.FieldCount: inserted,
	}).WithDuration(took.Milliseconds()).Debug(ctx, "Chunk stored")
	return false, nil
}

func (p *BatchProcessor) publishProgress(ctx context.Context, jobID string, processed, failed int) error {
	if _, err := p.jobs.Mutate(ctx, jobID, func(j *domain.IngestionJob) error {
		return j.RecordProgress(processed, failed)
	}); err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}
	return nil
}

func chunk(records []*domain.StudentRecord, size int) [][]*domain.StudentRecord {
	var out [][]*domain.StudentRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}
