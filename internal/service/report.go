package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/timmy/rollcall/internal/domain"
	"github.com/timmy/rollcall/internal/logger"
	"github.com/timmy/rollcall/internal/storage"
)

// ErrExportDisabled is returned by Export when no object storage is configured.
var ErrExportDisabled = errors.New("report export is not configured")

// ErrExportNotFound is returned when a requested export was never written.
var ErrExportNotFound = errors.New("report export not found")

const reportFailureSample = 20

// JobReport is the statistics report for one job.
type JobReport struct {
	TaskID             string           `json:"task_id"`
	Status             domain.JobStatus `json:"status"`
	TotalRecords       int              `json:"total_records"`
	ProcessedRecords   int              `json:"processed_records"`
	FailedRecords      int              `json:"failed_records"`
	SuccessRate        float64          `json:"success_rate"`
	ProgressPercentage int              `json:"progress_percentage"`
	Duration           *float64         `json:"duration"`
	Attempts           int              `json:"attempts"`
	ErrorMessage       *string          `json:"error_message"`
	CreatedAt          time.Time        `json:"created_at"`
	StartedAt          *time.Time       `json:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at"`
	GradeBreakdown     map[string]int64 `json:"grade_breakdown"`
	Failures           []FailureSummary `json:"failures"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// FailureSummary is one rejected record as shown in a report.
type FailureSummary struct {
	RecordIndex  int                 `json:"record_index"`
	ErrorType    string              `json:"error_type"`
	ErrorMessage string              `json:"error_message"`
	FieldErrors  map[string][]string `json:"field_errors,omitempty"`
}

// ExportResult locates an exported report.
type ExportResult struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// GradeCounter groups stored records by grade.
type GradeCounter interface {
	GradeBreakdown(ctx context.Context, jobID string) (map[string]int64, error)
}

// ReportService builds job statistics reports and exports them to object storage.
type ReportService struct {
	jobs     *JobService
	grades   GradeCounter
	failures FailureStore
	storage  storage.ObjectStorage
	prefix   string
}

// NewReportService creates a ReportService. A nil objectStorage disables Export.
func NewReportService(jobs *JobService, grades GradeCounter, failures FailureStore, objectStorage storage.ObjectStorage, prefix string) *ReportService {
	return &ReportService{
		jobs:     jobs,
		grades:   grades,
		failures: failures,
		storage:  objectStorage,
		prefix:   prefix,
	}
}

// Generate builds the report for id from the store.
func (s *ReportService) Generate(ctx context.Context, id string) (*JobReport, error) {
	job, err := s.jobs.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.jobs.Now()
	snap := job.Snapshot()

	report := &JobReport{
		TaskID:             job.ID,
		Status:             job.Status,
		TotalRecords:       job.TotalRecords,
		ProcessedRecords:   job.ProcessedRecords,
		FailedRecords:      job.FailedRecords,
		SuccessRate:        snap.SuccessRate(),
		ProgressPercentage: snap.ProgressPercentage(),
		Attempts:           job.Attempts,
		ErrorMessage:       job.ErrorMessage,
		CreatedAt:          job.CreatedAt,
		StartedAt:          job.StartedAt,
		CompletedAt:        job.CompletedAt,
		GeneratedAt:        now,
	}
	if d, ok := snap.Duration(now); ok {
		secs := d.Seconds()
		report.Duration = &secs
	}

	if report.GradeBreakdown, err = s.grades.GradeBreakdown(ctx, id); err != nil {
		return nil, err
	}

	failures, err := s.failures.ListByJob(ctx, id, reportFailureSample)
	if err != nil {
		return nil, err
	}
	report.Failures = make([]FailureSummary, 0, len(failures))
	for _, f := range failures {
		summary := FailureSummary{
			RecordIndex:  f.RecordIndex,
			ErrorType:    f.ErrorType,
			ErrorMessage: f.ErrorMessage,
		}
		if len(f.FieldErrors) > 0 {
			if err := json.Unmarshal(f.FieldErrors, &summary.FieldErrors); err != nil {
				logger.FromContext(ctx).WithError(err).Warnf("Unreadable field errors for record %d", f.RecordIndex)
			}
		}
		report.Failures = append(report.Failures, summary)
	}

	return report, nil
}

// Export generates the report for id and uploads it as JSON.
func (s *ReportService) Export(ctx context.Context, id string) (*ExportResult, error) {
	if s.storage == nil {
		return nil, ErrExportDisabled
	}
	report, err := s.Generate(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	key := path.Join(s.prefix, id, report.GeneratedAt.Format("20060102T150405Z")+".json")
	if err := s.storage.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return nil, err
	}

	logger.CtxInfo(logger.SetJobID(ctx, id), "Report exported to %s", key)
	return &ExportResult{Key: key, Name: path.Base(key), URL: s.storage.GetURL(key)}, nil
}

// Fetch opens the export called name for job id. The caller closes the reader.
func (s *ReportService) Fetch(ctx context.Context, id, name string) (io.ReadCloser, error) {
	if s.storage == nil {
		return nil, ErrExportDisabled
	}
	if strings.ContainsAny(name, `/\`) || path.Ext(name) != ".json" {
		return nil, ErrExportNotFound
	}

	key := path.Join(s.prefix, id, name)
	ok, err := s.storage.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrExportNotFound
	}
	return s.storage.Download(ctx, key)
}
