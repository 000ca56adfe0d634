package domain

import (
	"fmt"
	"time"
)

// JobSnapshot is a point-in-time value copy of an IngestionJob.
// Zero times mean the timestamp is unset.
type JobSnapshot struct {
	ID               string    `json:"id"`
	Status           JobStatus `json:"status"`
	TotalRecords     int       `json:"total_records"`
	ProcessedRecords int       `json:"processed_records"`
	FailedRecords    int       `json:"failed_records"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	Attempts         int       `json:"attempts"`
	RetriesExhausted bool      `json:"retries_exhausted"`
	CreatedAt        time.Time `json:"created_at"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

// ProgressPercentage is processed/total truncated to an integer percentage, 0 when total is 0.
func (s JobSnapshot) ProgressPercentage() int {
	if s.TotalRecords == 0 {
		return 0
	}
	return s.ProcessedRecords * 100 / s.TotalRecords
}

// SuccessRate is processed/total as a float percentage.
func (s JobSnapshot) SuccessRate() float64 {
	if s.TotalRecords == 0 {
		return 0
	}
	return float64(s.ProcessedRecords) / float64(s.TotalRecords) * 100
}

// Duration returns the elapsed processing time measured to completion or now.
// The boolean is false when the job has not started.
func (s JobSnapshot) Duration(now time.Time) (time.Duration, bool) {
	if s.StartedAt.IsZero() {
		return 0, false
	}
	end := now
	if !s.CompletedAt.IsZero() {
		end = s.CompletedAt
	}
	return end.Sub(s.StartedAt), true
}

// StatusMessage is the human readable status shown to pollers.
func (s JobSnapshot) StatusMessage() string {
	if s.Status == JobStatusProcessing {
		return fmt.Sprintf("%s (%d%% complete)", s.Status, s.ProgressPercentage())
	}
	return string(s.Status)
}
