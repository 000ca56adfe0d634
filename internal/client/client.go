package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/rollcall/internal/domain"
)

// Client talks to the rollcall HTTP API.
type Client struct {
	client *resty.Client
}

// New creates a client for the API at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	return &Client{client: client}
}

// APIError is the error envelope returned by the API.
type APIError struct {
	Message    string              `json:"message"`
	StatusCode int                 `json:"status_code"`
	Errors     map[string][]string `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d: %s %v", e.StatusCode, e.Message, e.Errors)
}

// Health is the health endpoint payload.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Submission is the response to an accepted batch.
type Submission struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	TotalRecords int    `json:"total_records"`
}

// JobStatus is the polled job state.
type JobStatus struct {
	TaskID             string     `json:"task_id"`
	Status             string     `json:"status"`
	TotalRecords       int        `json:"total_records"`
	ProcessedRecords   int        `json:"processed_records"`
	FailedRecords      int        `json:"failed_records"`
	ProgressPercentage int        `json:"progress_percentage"`
	ErrorMessage       *string    `json:"error_message"`
	StartedAt          *time.Time `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	Duration           *float64   `json:"duration"`
	StatusMessage      string     `json:"status_message"`
	Attempts           int        `json:"attempts"`
	RetriesExhausted   bool       `json:"retries_exhausted"`
}

// Terminal reports whether the server will not touch the job again.
// A FAILED job is only terminal once its retries are exhausted.
func (s *JobStatus) Terminal() bool {
	switch domain.JobStatus(s.Status) {
	case domain.JobStatusCompleted:
		return true
	case domain.JobStatusFailed:
		return s.RetriesExhausted
	default:
		return false
	}
}

// Health calls GET /api/health/.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, "GET", "/api/health/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit posts a batch to POST /api/data/ingest/.
func (c *Client) Submit(ctx context.Context, records []domain.RawRecord) (*Submission, error) {
	var out Submission
	body := map[string]interface{}{"records": records}
	if err := c.do(ctx, "POST", "/api/data/ingest/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches GET /api/data/status/:task_id/.
func (c *Client) Status(ctx context.Context, taskID string) (*JobStatus, error) {
	var out JobStatus
	if err := c.do(ctx, "GET", "/api/data/status/"+taskID+"/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Wait polls the job every interval until it is terminal or ctx ends.
// onPoll, when set, sees every status read.
func (c *Client) Wait(ctx context.Context, taskID string, interval time.Duration, onPoll func(*JobStatus)) (*JobStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if onPoll != nil {
			onPoll(status)
		}
		if status.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var apiErr APIError
	req := c.client.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		if apiErr.StatusCode == 0 {
			apiErr.StatusCode = resp.StatusCode()
			apiErr.Message = resp.Status()
		}
		return &apiErr
	}
	return nil
}
