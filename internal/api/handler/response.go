package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/rollcall/internal/api/middleware"
	"github.com/timmy/rollcall/internal/service"
	"github.com/timmy/rollcall/internal/validator"
)

// ErrorResponse is the uniform error envelope returned by every endpoint.
type ErrorResponse struct {
	Error      bool                `json:"error"`
	Message    string              `json:"message"`
	StatusCode int                 `json:"status_code"`
	Errors     map[string][]string `json:"errors,omitempty"`
}

func abortWithError(c *gin.Context, status int, message string, fields map[string][]string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:      true,
		Message:    message,
		StatusCode: status,
		Errors:     fields,
	})
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var subErr *validator.SubmissionError
	switch {
	case errors.As(err, &subErr):
		abortWithError(c, http.StatusBadRequest, subErr.Message, subErr.Fields)
	case errors.Is(err, service.ErrJobNotFound):
		abortWithError(c, http.StatusNotFound, "Ingestion job not found", nil)
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrExecutorStopped):
		middleware.GetLogger(c).WithError(err).Warn("Job could not be scheduled")
		abortWithError(c, http.StatusServiceUnavailable, "Ingestion is temporarily unavailable, try again later", nil)
	case errors.Is(err, service.ErrExportNotFound):
		abortWithError(c, http.StatusNotFound, "Report export not found", nil)
	case errors.Is(err, service.ErrExportDisabled):
		abortWithError(c, http.StatusNotImplemented, "Report export is not configured", nil)
	default:
		middleware.GetLogger(c).WithError(err).Error("Request failed")
		abortWithError(c, http.StatusInternalServerError, "Error processing ingestion job", nil)
	}
}
