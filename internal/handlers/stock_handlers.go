package handlers

import (
	"net/http"
	"time"

	"eyeclinic_backend/internal/models"
	"eyeclinic_backend/internal/services"
	"eyeclinic_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// StockHandler holds the stock adjustment engine.
type StockHandler struct {
	stockService services.StockService
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(ss services.StockService) *StockHandler {
	return &StockHandler{stockService: ss}
}

// AdjustStock handles direct on-hand changes: corrections, shrinkage, damage.
func (h *StockHandler) AdjustStock(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req services.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "AdjustStock: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}
	req.ItemID = id
	req.Actor = actorFrom(c, req.Actor)

	result, err := h.stockService.Adjust(req)
	if err != nil {
		respondServiceError(c, err, "AdjustStock: Error from stockService.Adjust")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ReceiveBatch handles purchase-order receiving.
func (h *StockHandler) ReceiveBatch(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req services.ReceiveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "ReceiveBatch: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}
	req.ItemID = id
	req.Actor = actorFrom(c, req.Actor)

	batch, err := h.stockService.ReceiveBatch(req)
	if err != nil {
		respondServiceError(c, err, "ReceiveBatch: Error from stockService.ReceiveBatch")
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// GetHistory handles the transaction audit trail listing for one item.
func (h *StockHandler) GetHistory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var txType *string
	if t := c.Query("tx_type"); t != "" {
		txType = &t
	}
	page, pageSize := parsePagination(c)

	entries, totalCount, err := h.stockService.History(id, txType, page, pageSize)
	if err != nil {
		respondServiceError(c, err, "GetHistory: Error from stockService.History")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        entries,
		"total_count": totalCount,
		"page":        page,
		"page_size":   pageSize,
	})
}

type setBatchStatusRequest struct {
	Status models.BatchStatus `json:"status" binding:"required"`
}

// SetBatchStatus pulls a lot out of circulation (quarantine or recall).
func (h *StockHandler) SetBatchStatus(c *gin.Context) {
	batchID, ok := parseIDParam(c, "batchId")
	if !ok {
		return
	}
	var req setBatchStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "SetBatchStatus: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	if err := h.stockService.SetBatchStatus(batchID, req.Status, actorFrom(c, "")); err != nil {
		respondServiceError(c, err, "SetBatchStatus: Error from stockService.SetBatchStatus")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Batch status updated"})
}

// MarkExpiredBatches is the scheduler entry point that flips lots past expiry.
func (h *StockHandler) MarkExpiredBatches(c *gin.Context) {
	count, err := h.stockService.MarkExpiredBatches(time.Now())
	if err != nil {
		respondServiceError(c, err, "MarkExpiredBatches: Error from stockService.MarkExpiredBatches")
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": count})
}
