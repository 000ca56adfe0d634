package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	playground "github.com/go-playground/validator/v10"
	"github.com/timmy/rollcall/internal/domain"
	"github.com/timmy/rollcall/internal/service"
)

const jobCreatedMessage = "Ingestion job created successfully"

// IngestHandler serves job submission and status polling.
type IngestHandler struct {
	ingestService *service.IngestService
	now           func() time.Time
}

// NewIngestHandler creates a new ingest handler.
// Parameters:
//   - ingestService: gateway that validates and schedules batches.
//
// Returns:
//   - *IngestHandler: initialized handler.
func NewIngestHandler(ingestService *service.IngestService) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		now:           time.Now,
	}
}

// IngestRequest is the body of POST /api/data/ingest/.
type IngestRequest struct {
	Records []domain.RawRecord `json:"records" binding:"required"`
}

// IngestResponse is returned when a job is accepted.
type IngestResponse struct {
	TaskID       string           `json:"task_id"`
	Status       domain.JobStatus `json:"status"`
	Message      string           `json:"message"`
	TotalRecords int              `json:"total_records"`
}

// StatusResponse is the job state shown to pollers.
type StatusResponse struct {
	TaskID             string           `json:"task_id"`
	Status             domain.JobStatus `json:"status"`
	TotalRecords       int              `json:"total_records"`
	ProcessedRecords   int              `json:"processed_records"`
	FailedRecords      int              `json:"failed_records"`
	ProgressPercentage int              `json:"progress_percentage"`
	ErrorMessage       *string          `json:"error_message"`
	CreatedAt          time.Time        `json:"created_at"`
	StartedAt          *time.Time       `json:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at"`
	Duration           *float64         `json:"duration"`
	StatusMessage      string           `json:"status_message"`
	Attempts           int              `json:"attempts"`
	RetriesExhausted   bool             `json:"retries_exhausted"`
}

// Ingest handles POST /api/data/ingest/.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs playground.ValidationErrors
		if errors.As(err, &verrs) {
			abortWithError(c, http.StatusBadRequest, "Invalid data provided for ingestion",
				map[string][]string{"records": {"This field is required."}})
			return
		}
		abortWithError(c, http.StatusBadRequest, "JSON parse error - "+err.Error(), nil)
		return
	}

	sub, err := h.ingestService.Submit(c.Request.Context(), req.Records)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, IngestResponse{
		TaskID:       sub.JobID,
		Status:       sub.Status,
		Message:      jobCreatedMessage,
		TotalRecords: sub.TotalRecords,
	})
}

// Status handles GET /api/data/status/:task_id/.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *IngestHandler) Status(c *gin.Context) {
	snap, err := h.ingestService.GetStatus(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatusResponse(snap, h.now()))
}

func newStatusResponse(snap domain.JobSnapshot, now time.Time) StatusResponse {
	resp := StatusResponse{
		TaskID:             snap.ID,
		Status:             snap.Status,
		TotalRecords:       snap.TotalRecords,
		ProcessedRecords:   snap.ProcessedRecords,
		FailedRecords:      snap.FailedRecords,
		ProgressPercentage: snap.ProgressPercentage(),
		CreatedAt:          snap.CreatedAt,
		StartedAt:          optionalTime(snap.StartedAt),
		CompletedAt:        optionalTime(snap.CompletedAt),
		StatusMessage:      snap.StatusMessage(),
		Attempts:           snap.Attempts,
		RetriesExhausted:   snap.RetriesExhausted,
	}
	if snap.ErrorMessage != "" {
		msg := snap.ErrorMessage
		resp.ErrorMessage = &msg
	}
	if d, ok := snap.Duration(now); ok {
		secs := d.Seconds()
		resp.Duration = &secs
	}
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
