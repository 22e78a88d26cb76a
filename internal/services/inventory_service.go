package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"eyeclinic_backend/internal/models"
	"eyeclinic_backend/internal/repositories"
)

// CreateItemRequest is the intake payload. Type and SKU are fixed forever at
// intake; stock arrives later through adjustments and batch receiving.
type CreateItemRequest struct {
	ClinicID      int64           `json:"clinic_id" binding:"required"`
	SKU           string          `json:"sku" binding:"required"`
	Barcode       *string         `json:"barcode,omitempty"`
	Name          string          `json:"name" binding:"required"`
	ItemType      models.ItemType `json:"item_type" binding:"required"`
	Description   *string         `json:"description,omitempty"`
	MinimumStock  int             `json:"minimum_stock"`
	ReorderPoint  int             `json:"reorder_point"`
	MaximumStock  *int            `json:"maximum_stock,omitempty"`
	CostPrice     float64         `json:"cost_price"`
	SalePrice     float64         `json:"sale_price"`
	TracksBatches *bool           `json:"tracks_batches,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
}

// UpdateItemRequest carries descriptive fields and thresholds only. Stock
// numbers, type and sku never change through this path.
type UpdateItemRequest struct {
	Name         *string         `json:"name,omitempty"`
	Barcode      *string         `json:"barcode,omitempty"`
	Description  *string         `json:"description,omitempty"`
	MinimumStock *int            `json:"minimum_stock,omitempty"`
	ReorderPoint *int            `json:"reorder_point,omitempty"`
	MaximumStock *int            `json:"maximum_stock,omitempty"`
	OnOrder      *int            `json:"on_order,omitempty"`
	CostPrice    *float64        `json:"cost_price,omitempty"`
	SalePrice    *float64        `json:"sale_price,omitempty"`
	Discontinued *bool           `json:"discontinued,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
}

// InventoryService manages the item records themselves. Quantity changes are
// deliberately out of scope here; those go through the stock engine.
type InventoryService interface {
	CreateItem(req CreateItemRequest) (*models.InventoryItem, error)
	GetItem(id int64) (*models.InventoryItem, error)
	ListItems(filters models.ItemFilters) ([]models.InventoryItem, int, error)
	UpdateItem(id int64, req UpdateItemRequest, actor string) (*models.InventoryItem, error)
	DeleteItem(id int64) error
}

type inventoryService struct {
	inventoryRepo repositories.InventoryRepository
	batchRepo     repositories.BatchRepository
	statusService StatusService
}

// NewInventoryService creates a new instance of InventoryService.
func NewInventoryService(
	ir repositories.InventoryRepository,
	br repositories.BatchRepository,
	ss StatusService,
) InventoryService {
	return &inventoryService{
		inventoryRepo: ir,
		batchRepo:     br,
		statusService: ss,
	}
}

func (s *inventoryService) CreateItem(req CreateItemRequest) (*models.InventoryItem, error) {
	if !req.ItemType.IsValid() {
		return nil, fmt.Errorf("%w: unknown item type %q", ErrValidation, req.ItemType)
	}
	if req.SKU == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: sku and name are required", ErrValidation)
	}
	if req.MinimumStock < 0 || req.ReorderPoint < 0 {
		return nil, fmt.Errorf("%w: thresholds must be non-negative", ErrValidation)
	}
	if req.MaximumStock != nil && *req.MaximumStock < req.MinimumStock {
		return nil, fmt.Errorf("%w: maximum stock below minimum stock", ErrValidation)
	}

	details, err := models.DecodeItemDetails(req.ItemType, req.Details)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s details: %v", ErrValidation, req.ItemType, err)
	}

	// Perishable goods track lots by default; callers may override either way.
	tracksBatches := req.ItemType.Perishable()
	if req.TracksBatches != nil {
		tracksBatches = *req.TracksBatches
	}

	item := &models.InventoryItem{
		ClinicID:      req.ClinicID,
		SKU:           req.SKU,
		Barcode:       req.Barcode,
		Name:          req.Name,
		ItemType:      req.ItemType,
		Description:   req.Description,
		MinimumStock:  req.MinimumStock,
		ReorderPoint:  req.ReorderPoint,
		MaximumStock:  req.MaximumStock,
		CostPrice:     req.CostPrice,
		SalePrice:     req.SalePrice,
		Status:        models.StockStatusOutOfStock,
		TracksBatches: tracksBatches,
		IsActive:      true,
		Details:       details,
	}
	if _, err := s.inventoryRepo.CreateItem(nil, item); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: sku %s already exists at clinic %d", ErrValidation, req.SKU, req.ClinicID)
		}
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return item, nil
}

func (s *inventoryService) GetItem(id int64) (*models.InventoryItem, error) {
	item, err := s.inventoryRepo.GetItemByID(nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: item ID %d", ErrItemNotFound, id)
		}
		return nil, fmt.Errorf("fetching item %d: %w", id, err)
	}
	if item.TracksBatches {
		batches, err := s.batchRepo.ListByItem(nil, id)
		if err != nil {
			return nil, fmt.Errorf("fetching batches of item %d: %w", id, err)
		}
		item.Batches = batches
	}
	return item, nil
}

func (s *inventoryService) ListItems(filters models.ItemFilters) ([]models.InventoryItem, int, error) {
	if filters.ItemType != nil && !filters.ItemType.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown item type %q", ErrValidation, *filters.ItemType)
	}
	return s.inventoryRepo.GetItems(filters)
}

func (s *inventoryService) UpdateItem(id int64, req UpdateItemRequest, actor string) (*models.InventoryItem, error) {
	item, err := s.inventoryRepo.GetItemByID(nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: item ID %d", ErrItemNotFound, id)
		}
		return nil, fmt.Errorf("fetching item %d for update: %w", id, err)
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		item.Name = *req.Name
	}
	if req.Barcode != nil {
		item.Barcode = req.Barcode
	}
	if req.Description != nil {
		item.Description = req.Description
	}
	if req.MinimumStock != nil {
		if *req.MinimumStock < 0 {
			return nil, fmt.Errorf("%w: minimum stock must be non-negative", ErrValidation)
		}
		item.MinimumStock = *req.MinimumStock
	}
	if req.ReorderPoint != nil {
		item.ReorderPoint = *req.ReorderPoint
	}
	if req.MaximumStock != nil {
		item.MaximumStock = req.MaximumStock
	}
	if req.OnOrder != nil {
		if *req.OnOrder < 0 {
			return nil, fmt.Errorf("%w: on-order quantity must be non-negative", ErrValidation)
		}
		item.OnOrder = *req.OnOrder
	}
	if req.CostPrice != nil {
		item.CostPrice = *req.CostPrice
	}
	if req.SalePrice != nil {
		item.SalePrice = *req.SalePrice
	}
	if req.Discontinued != nil {
		item.Discontinued = *req.Discontinued
	}
	if item.MaximumStock != nil && *item.MaximumStock < item.MinimumStock {
		return nil, fmt.Errorf("%w: maximum stock below minimum stock", ErrValidation)
	}
	if len(req.Details) > 0 {
		details, err := models.DecodeItemDetails(item.ItemType, req.Details)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding %s details: %v", ErrValidation, item.ItemType, err)
		}
		item.Details = details
	}

	if err := s.inventoryRepo.UpdateItemDescriptive(nil, item); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: item ID %d", ErrItemNotFound, id)
		}
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: barcode already in use", ErrValidation)
		}
		return nil, fmt.Errorf("updating item %d: %w", id, err)
	}

	// Threshold or discontinued changes can move the derived status.
	s.statusService.RecomputeAsync(id, actor)
	return s.GetItem(id)
}

func (s *inventoryService) DeleteItem(id int64) error {
	if err := s.inventoryRepo.SoftDeleteItem(nil, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: item ID %d", ErrItemNotFound, id)
		}
		if errors.Is(err, repositories.ErrStockGuardFailed) {
			return fmt.Errorf("%w: item %d still has reserved stock", ErrValidation, id)
		}
		return fmt.Errorf("deleting item %d: %w", id, err)
	}
	return nil
}
