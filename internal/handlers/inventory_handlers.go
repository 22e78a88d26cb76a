package handlers

import (
	"net/http"

	"eyeclinic_backend/internal/models"
	"eyeclinic_backend/internal/services"
	"eyeclinic_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// InventoryHandler holds the inventory service.
type InventoryHandler struct {
	inventoryService services.InventoryService
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(is services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: is}
}

// CreateItem handles item intake. Type and SKU are fixed forever here.
func (h *InventoryHandler) CreateItem(c *gin.Context) {
	var req services.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "CreateItem: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	item, err := h.inventoryService.CreateItem(req)
	if err != nil {
		respondServiceError(c, err, "CreateItem: Error from inventoryService.CreateItem")
		return
	}
	c.JSON(http.StatusCreated, item)
}

// GetItem handles fetching one item, including its lots for tracked items.
func (h *InventoryHandler) GetItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.inventoryService.GetItem(id)
	if err != nil {
		respondServiceError(c, err, "GetItem: Error from inventoryService.GetItem")
		return
	}
	c.JSON(http.StatusOK, item)
}

// GetItems handles listing items with clinic/type/status filters.
func (h *InventoryHandler) GetItems(c *gin.Context) {
	var filters models.ItemFilters

	clinicID, ok := parseClinicQuery(c)
	if !ok {
		return
	}
	filters.ClinicID = clinicID
	if typeStr := c.Query("item_type"); typeStr != "" {
		itemType := models.ItemType(typeStr)
		filters.ItemType = &itemType
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := models.StockStatus(statusStr)
		filters.Status = &status
	}
	filters.Page, filters.PageSize = parsePagination(c)

	items, totalCount, err := h.inventoryService.ListItems(filters)
	if err != nil {
		respondServiceError(c, err, "GetItems: Error from inventoryService.ListItems")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        items,
		"total_count": totalCount,
		"page":        filters.Page,
		"page_size":   filters.PageSize,
	})
}

// UpdateItem handles descriptive updates; stock numbers never change here.
func (h *InventoryHandler) UpdateItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req services.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "UpdateItem: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	item, err := h.inventoryService.UpdateItem(id, req, actorFrom(c, ""))
	if err != nil {
		respondServiceError(c, err, "UpdateItem: Error from inventoryService.UpdateItem")
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteItem handles soft deletion. Refused while the item holds reservations.
func (h *InventoryHandler) DeleteItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.inventoryService.DeleteItem(id); err != nil {
		respondServiceError(c, err, "DeleteItem: Error from inventoryService.DeleteItem")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item deactivated"})
}
