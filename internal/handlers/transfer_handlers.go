package handlers

import (
	"net/http"

	"eyeclinic_backend/internal/services"
	"eyeclinic_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// TransferHandler holds the transfer coordinator.
type TransferHandler struct {
	transferService services.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(ts services.TransferService) *TransferHandler {
	return &TransferHandler{transferService: ts}
}

// Transfer moves stock of one item to another clinic. A 502 response means
// the source was debited but the destination credit failed; the body carries
// the compensation outcome.
func (h *TransferHandler) Transfer(c *gin.Context) {
	var req services.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "Transfer: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}
	req.Actor = actorFrom(c, req.Actor)

	result, err := h.transferService.Transfer(req)
	if err != nil {
		respondServiceError(c, err, "Transfer: Error from transferService.Transfer")
		return
	}
	c.JSON(http.StatusOK, result)
}
