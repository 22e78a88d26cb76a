package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"eyeclinic_backend/internal/services"
	"eyeclinic_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// respondServiceError maps the business error taxonomy onto HTTP statuses.
// Conflict-class errors (409) are the retryable ones; 422 means the demand can
// never be met by the current lots; 502 flags a transfer needing an operator.
func respondServiceError(c *gin.Context, err error, context string) {
	utils.LogError(err, context)
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request.", err.Error()))
	case errors.Is(err, services.ErrItemNotFound),
		errors.Is(err, services.ErrReservationNotFound),
		errors.Is(err, services.ErrBatchNotFound),
		errors.Is(err, services.ErrUserNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Resource not found.", err.Error()))
	case errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrInsufficientAvailable),
		errors.Is(err, services.ErrReservationNotActive),
		errors.Is(err, services.ErrConcurrentModification):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Stock state conflict.", err.Error()))
	case errors.Is(err, services.ErrNoEligibleBatch):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnprocessableEntity, utils.ErrCodeUnprocessable, "No eligible lots cover the requested quantity.", err.Error()))
	case errors.Is(err, services.ErrTransferPartialFailure):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadGateway, utils.ErrCodeBadGateway, "Transfer partially failed; operator attention required.", err.Error()))
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Invalid credentials.", ""))
	case errors.Is(err, services.ErrAccountDisabled):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Account disabled.", ""))
	default:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Internal error.", ""))
	}
}

// parseIDParam reads a path parameter as int64, responding 400 itself on
// failure. The bool result tells the caller whether to continue.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid "+name+" parameter.", err.Error()))
		return 0, false
	}
	return id, true
}

// parsePagination reads page/page_size query parameters with defaults.
func parsePagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	return page, pageSize
}

// parseClinicQuery reads an optional clinic_id query parameter.
func parseClinicQuery(c *gin.Context) (*int64, bool) {
	clinicStr := c.Query("clinic_id")
	if clinicStr == "" {
		return nil, true
	}
	clinicID, err := strconv.ParseInt(clinicStr, 10, 64)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid clinic_id parameter.", err.Error()))
		return nil, false
	}
	return &clinicID, true
}

// actorFrom resolves the audit actor: explicit request value first, then the
// authenticated username from the JWT middleware.
func actorFrom(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if username, exists := c.Get("username"); exists {
		if s, ok := username.(string); ok {
			return s
		}
	}
	return ""
}
