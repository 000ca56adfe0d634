package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/rollcall/internal/service"
)

// ReportHandler serves job statistics reports.
type ReportHandler struct {
	reportService *service.ReportService
}

// NewReportHandler creates a new report handler.
func NewReportHandler(reportService *service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// Report handles GET /api/data/report/:task_id/.
func (h *ReportHandler) Report(c *gin.Context) {
	report, err := h.reportService.Generate(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Export handles POST /api/data/report/:task_id/export/.
func (h *ReportHandler) Export(c *gin.Context) {
	out, err := h.reportService.Export(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Download handles GET /api/data/report/:task_id/exports/:name/ by streaming a stored export.
func (h *ReportHandler) Download(c *gin.Context) {
	rc, err := h.reportService.Fetch(c.Request.Context(), c.Param("task_id"), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, "application/json", rc, nil)
}
