package services

import (
	"errors"
	"fmt"
	"time"

	"eyeclinic_backend/internal/models"
	"eyeclinic_backend/internal/repositories"
	"eyeclinic_backend/pkg/utils"
)

// StatusService recomputes derived item state (status enum + alerts) from the
// persisted stock numbers. Mutating services call Recompute as a best-effort
// follow-up after their atomic step commits: the stock number itself is never
// wrong even if the derived status briefly lags.
type StatusService interface {
	Recompute(itemID int64, actor string) error
	// RecomputeAsync runs Recompute and only logs a failure. For call sites
	// where derived state must not affect the outcome of the core mutation.
	RecomputeAsync(itemID int64, actor string)
}

type statusService struct {
	inventoryRepo repositories.InventoryRepository
	batchRepo     repositories.BatchRepository
	alertRepo     repositories.AlertRepository
}

// NewStatusService creates a new instance of StatusService.
func NewStatusService(
	ir repositories.InventoryRepository,
	br repositories.BatchRepository,
	ar repositories.AlertRepository,
) StatusService {
	return &statusService{
		inventoryRepo: ir,
		batchRepo:     br,
		alertRepo:     ar,
	}
}

func (s *statusService) Recompute(itemID int64, actor string) error {
	item, err := s.inventoryRepo.GetItemByID(nil, itemID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: item ID %d", ErrItemNotFound, itemID)
		}
		return fmt.Errorf("fetching item %d for status recompute: %w", itemID, err)
	}

	var batches []models.Batch
	if item.TracksBatches {
		batches, err = s.batchRepo.ListByItem(nil, itemID)
		if err != nil {
			return fmt.Errorf("fetching batches of item %d for status recompute: %w", itemID, err)
		}
	}

	status := DeriveStockStatus(StatusInput{
		CurrentStock: item.CurrentStock,
		Reserved:     item.Reserved,
		MinimumStock: item.MinimumStock,
		MaximumStock: item.MaximumStock,
		OnOrder:      item.OnOrder,
		Discontinued: item.Discontinued,
	})
	if status != item.Status {
		if err := s.inventoryRepo.SetDerivedStatus(nil, itemID, status); err != nil {
			return fmt.Errorf("writing derived status for item %d: %w", itemID, err)
		}
	}

	raise, clear := DeriveAlerts(item, batches, time.Now())
	for i := range raise {
		if _, err := s.alertRepo.EnsureUnresolved(nil, &raise[i]); err != nil {
			return fmt.Errorf("raising %s alert for item %d: %w", raise[i].AlertType, itemID, err)
		}
	}
	if _, err := s.alertRepo.ResolveByTypes(nil, itemID, clear, actor); err != nil {
		return fmt.Errorf("clearing stale alerts for item %d: %w", itemID, err)
	}
	return nil
}

func (s *statusService) RecomputeAsync(itemID int64, actor string) {
	if err := s.Recompute(itemID, actor); err != nil {
		utils.LogError(err, fmt.Sprintf("status recompute lagging for item %d", itemID))
	}
}
