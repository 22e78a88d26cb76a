package handlers

import (
	"net/http"
	"strconv"

	"eyeclinic_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// ReportHandler holds the report service. All endpoints here are read-only.
type ReportHandler struct {
	reportService services.ReportService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(rs services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: rs}
}

// Valuation reports stock value per item type.
func (h *ReportHandler) Valuation(c *gin.Context) {
	clinicID, ok := parseClinicQuery(c)
	if !ok {
		return
	}
	lines, err := h.reportService.Valuation(clinicID)
	if err != nil {
		respondServiceError(c, err, "Valuation: Error from reportService.Valuation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": lines})
}

// LowStock reports items at or below their reorder point.
func (h *ReportHandler) LowStock(c *gin.Context) {
	clinicID, ok := parseClinicQuery(c)
	if !ok {
		return
	}
	lines, err := h.reportService.LowStock(clinicID)
	if err != nil {
		respondServiceError(c, err, "LowStock: Error from reportService.LowStock")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": lines})
}

// ExpiringBatches reports active lots expiring within the window (default 30
// days, query parameter within_days).
func (h *ReportHandler) ExpiringBatches(c *gin.Context) {
	clinicID, ok := parseClinicQuery(c)
	if !ok {
		return
	}
	withinDays, _ := strconv.Atoi(c.DefaultQuery("within_days", "0"))

	lines, err := h.reportService.ExpiringBatches(clinicID, withinDays)
	if err != nil {
		respondServiceError(c, err, "ExpiringBatches: Error from reportService.ExpiringBatches")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": lines})
}
