package handlers

import (
	"errors"
	"net/http"

	"eyeclinic_backend/internal/repositories"
	"eyeclinic_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AlertHandler reads and resolves stock alerts. Alerts are created only by
// the deriver path, so there is no create endpoint.
type AlertHandler struct {
	alertRepo repositories.AlertRepository
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(ar repositories.AlertRepository) *AlertHandler {
	return &AlertHandler{alertRepo: ar}
}

// ListUnresolved lists open alerts, optionally scoped to a clinic.
func (h *AlertHandler) ListUnresolved(c *gin.Context) {
	clinicID, ok := parseClinicQuery(c)
	if !ok {
		return
	}
	page, pageSize := parsePagination(c)

	alerts, totalCount, err := h.alertRepo.ListUnresolved(clinicID, page, pageSize)
	if err != nil {
		utils.LogError(err, "ListUnresolved: Error from alertRepo.ListUnresolved")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to list alerts.", ""))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        alerts,
		"total_count": totalCount,
		"page":        page,
		"page_size":   pageSize,
	})
}

// ListByItem lists an item's alerts; include_resolved=true adds history.
func (h *AlertHandler) ListByItem(c *gin.Context) {
	itemID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	includeResolved := c.Query("include_resolved") == "true"

	alerts, err := h.alertRepo.ListByItem(itemID, includeResolved)
	if err != nil {
		utils.LogError(err, "ListByItem: Error from alertRepo.ListByItem")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to list alerts.", ""))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

// Resolve acknowledges one alert, recording the actor.
func (h *AlertHandler) Resolve(c *gin.Context) {
	alertID, ok := parseIDParam(c, "alertId")
	if !ok {
		return
	}
	if err := h.alertRepo.Resolve(nil, alertID, actorFrom(c, "")); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Alert not found or already resolved.", ""))
			return
		}
		utils.LogError(err, "Resolve: Error from alertRepo.Resolve")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to resolve alert.", ""))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert resolved"})
}
