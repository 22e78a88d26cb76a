package services

import (
	"errors"
	"fmt"
	"time"

	"eyeclinic_backend/internal/models"
	"eyeclinic_backend/internal/repositories"
	"eyeclinic_backend/pkg/utils"
)

// TransferRequest moves stock of one item to another clinic.
type TransferRequest struct {
	SourceItemID        int64   `json:"source_item_id" binding:"required"`
	DestinationClinicID int64   `json:"destination_clinic_id" binding:"required"`
	Quantity            int     `json:"quantity" binding:"required"`
	Actor               string  `json:"actor"`
	Reason              *string `json:"reason,omitempty"`
}

// TransferResult reports both sides of a completed transfer.
type TransferResult struct {
	SourceItemID      int64 `json:"source_item_id"`
	DestinationItemID int64 `json:"destination_item_id"`
	Quantity          int   `json:"quantity"`
	SourceStock       int   `json:"source_stock"`
	DestinationStock  int   `json:"destination_stock"`
}

// TransferService coordinates cross-clinic stock movement. Source and
// destination live in separate item records, so the move is two local
// transactions with explicit compensation rather than one atomic write. This
// is the only multi-step mutation in the engine.
type TransferService interface {
	Transfer(req TransferRequest) (*TransferResult, error)
}

type transferService struct {
	txRunner      repositories.TxRunner
	inventoryRepo repositories.InventoryRepository
	batchRepo     repositories.BatchRepository
	txLogRepo     repositories.TransactionRepository
	statusService StatusService
}

// NewTransferService creates a new instance of TransferService.
func NewTransferService(
	runner repositories.TxRunner,
	ir repositories.InventoryRepository,
	br repositories.BatchRepository,
	tr repositories.TransactionRepository,
	ss StatusService,
) TransferService {
	return &transferService{
		txRunner:      runner,
		inventoryRepo: ir,
		batchRepo:     br,
		txLogRepo:     tr,
		statusService: ss,
	}
}

// lotDebit records one lot's share of the source debit so the destination can
// recreate the lot and compensation can restore it exactly.
type lotDebit struct {
	batchID    int64
	lotNumber  string
	quantity   int
	expiryDate *time.Time
}

func (s *transferService) Transfer(req TransferRequest) (*TransferResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if req.Actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrValidation)
	}

	source, err := s.inventoryRepo.GetItemByID(nil, req.SourceItemID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: item ID %d", ErrItemNotFound, req.SourceItemID)
		}
		return nil, fmt.Errorf("fetching source item %d: %w", req.SourceItemID, err)
	}
	if source.ClinicID == req.DestinationClinicID {
		return nil, fmt.Errorf("%w: item %d is already at clinic %d", ErrValidation, req.SourceItemID, req.DestinationClinicID)
	}

	// Step 1: debit the source. Fails cleanly with zero side effects.
	debits, sourceStock, err := s.debitSource(source, req)
	if err != nil {
		return nil, err
	}

	// Step 2: find or create the destination record. Only static descriptive
	// attributes cross the clinic boundary, never batches, reservations,
	// transactions or alerts.
	dest, err := s.findOrCreateDestination(source, req.DestinationClinicID)
	if err != nil {
		return nil, s.compensate(source, debits, req, 0, "resolving destination", err)
	}

	// Step 3: credit the destination.
	destStock, err := s.creditDestination(dest, debits, req)
	if err != nil {
		return nil, s.compensate(source, debits, req, dest.ID, "crediting destination", err)
	}

	s.statusService.RecomputeAsync(source.ID, req.Actor)
	s.statusService.RecomputeAsync(dest.ID, req.Actor)
	utils.LogInfo(fmt.Sprintf("transferred %d units of %s from clinic %d to clinic %d",
		req.Quantity, source.SKU, source.ClinicID, req.DestinationClinicID))

	return &TransferResult{
		SourceItemID:      source.ID,
		DestinationItemID: dest.ID,
		Quantity:          req.Quantity,
		SourceStock:       sourceStock,
		DestinationStock:  destStock,
	}, nil
}

func (s *transferService) debitSource(source *models.InventoryItem, req TransferRequest) ([]lotDebit, int, error) {
	var debits []lotDebit
	var stockAfter int
	err := s.txRunner.WithinTx(func(executor repositories.SQLExecutor) error {
		levels, err := s.inventoryRepo.AdjustStock(executor, source.ID, -req.Quantity)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("%w: item ID %d", ErrItemNotFound, source.ID)
			}
			if errors.Is(err, repositories.ErrStockGuardFailed) {
				return fmt.Errorf("%w: item %d has %d available, transfer of %d requested",
					ErrInsufficientStock, source.ID, source.Available(), req.Quantity)
			}
			return fmt.Errorf("debiting source item %d: %w", source.ID, err)
		}
		stockAfter = levels.CurrentStock

		if source.TracksBatches {
			debits, err = s.consumeSourceLots(executor, source.ID, req.Quantity)
			if err != nil {
				return err
			}
		}

		entry := models.StockTransaction{
			ItemID:        source.ID,
			TxType:        models.TxTypeTransferOut,
			Quantity:      -req.Quantity,
			Actor:         req.Actor,
			Reason:        req.Reason,
			BalanceBefore: levels.CurrentStock + req.Quantity,
			BalanceAfter:  levels.CurrentStock,
		}
		if _, err := s.txLogRepo.Append(executor, &entry); err != nil {
			return fmt.Errorf("recording transfer debit for item %d: %w", source.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return debits, stockAfter, nil
}

// consumeSourceLots takes the transfer quantity out of the source's lots
// soonest-expiry-first, recording each lot's share for the destination side.
func (s *transferService) consumeSourceLots(executor repositories.SQLExecutor, itemID int64, qty int) ([]lotDebit, error) {
	batches, err := s.batchRepo.ListByItem(executor, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing lots of item %d: %w", itemID, err)
	}

	now := time.Now()
	remaining := qty
	debits := []lotDebit{}
	for i := range batches {
		if remaining == 0 {
			break
		}
		b := &batches[i]
		if !b.Eligible(now) {
			continue
		}
		take := b.Quantity - b.Reserved
		if take > remaining {
			take = remaining
		}
		if err := s.batchRepo.ReduceQuantity(executor, b.ID, take); err != nil {
			if errors.Is(err, repositories.ErrStockGuardFailed) {
				return nil, fmt.Errorf("%w: lot %s of item %d changed underneath the transfer",
					ErrConcurrentModification, b.LotNumber, itemID)
			}
			return nil, fmt.Errorf("reducing lot %s of item %d: %w", b.LotNumber, itemID, err)
		}
		debits = append(debits, lotDebit{
			batchID:    b.ID,
			lotNumber:  b.LotNumber,
			quantity:   take,
			expiryDate: b.ExpiryDate,
		})
		remaining -= take
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: item %d has no eligible lot coverage for %d of %d units",
			ErrNoEligibleBatch, itemID, remaining, qty)
	}
	return debits, nil
}

func (s *transferService) findOrCreateDestination(source *models.InventoryItem, clinicID int64) (*models.InventoryItem, error) {
	dest, err := s.inventoryRepo.GetItemBySKUAndClinic(nil, source.SKU, clinicID)
	if err == nil {
		if dest.ItemType != source.ItemType {
			return nil, fmt.Errorf("%w: sku %s at clinic %d is a %s, source is a %s",
				ErrValidation, source.SKU, clinicID, dest.ItemType, source.ItemType)
		}
		return dest, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("looking up sku %s at clinic %d: %w", source.SKU, clinicID, err)
	}

	dest = &models.InventoryItem{
		ClinicID:      clinicID,
		SKU:           source.SKU,
		Name:          source.Name,
		ItemType:      source.ItemType,
		Description:   source.Description,
		MinimumStock:  source.MinimumStock,
		ReorderPoint:  source.ReorderPoint,
		MaximumStock:  source.MaximumStock,
		CostPrice:     source.CostPrice,
		SalePrice:     source.SalePrice,
		Status:        models.StockStatusOutOfStock,
		TracksBatches: source.TracksBatches,
		IsActive:      true,
		Details:       source.Details,
	}
	if _, err := s.inventoryRepo.CreateItem(nil, dest); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			// Raced another transfer creating the same record; use theirs.
			return s.inventoryRepo.GetItemBySKUAndClinic(nil, source.SKU, clinicID)
		}
		return nil, fmt.Errorf("creating destination item for sku %s at clinic %d: %w", source.SKU, clinicID, err)
	}
	return dest, nil
}

func (s *transferService) creditDestination(dest *models.InventoryItem, debits []lotDebit, req TransferRequest) (int, error) {
	var stockAfter int
	err := s.txRunner.WithinTx(func(executor repositories.SQLExecutor) error {
		levels, err := s.inventoryRepo.AdjustStock(executor, dest.ID, req.Quantity)
		if err != nil {
			return fmt.Errorf("crediting destination item %d: %w", dest.ID, err)
		}
		stockAfter = levels.CurrentStock

		// The moved units keep their lot identity: same lot number, same
		// expiry, now held by the destination record.
		if dest.TracksBatches {
			for _, d := range debits {
				batch := &models.Batch{
					ItemID:     dest.ID,
					LotNumber:  d.lotNumber,
					Quantity:   d.quantity,
					ExpiryDate: d.expiryDate,
					Status:     models.BatchStatusActive,
				}
				if _, err := s.batchRepo.CreateBatch(executor, batch); err != nil {
					return fmt.Errorf("creating lot %s at destination item %d: %w", d.lotNumber, dest.ID, err)
				}
			}
		}

		entry := models.StockTransaction{
			ItemID:        dest.ID,
			TxType:        models.TxTypeTransferIn,
			Quantity:      req.Quantity,
			Actor:         req.Actor,
			Reason:        req.Reason,
			BalanceBefore: levels.CurrentStock - req.Quantity,
			BalanceAfter:  levels.CurrentStock,
		}
		if _, err := s.txLogRepo.Append(executor, &entry); err != nil {
			return fmt.Errorf("recording transfer credit for item %d: %w", dest.ID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stockAfter, nil
}

// compensate credits the debited quantity back to the source after a failed
// later step. Whether or not the credit succeeds, the caller gets
// ErrTransferPartialFailure; this path always needs operator attention and is
// never silently retried.
func (s *transferService) compensate(source *models.InventoryItem, debits []lotDebit, req TransferRequest, destID int64, step string, cause error) error {
	reason := fmt.Sprintf("compensation for failed transfer to clinic %d", req.DestinationClinicID)
	compErr := s.txRunner.WithinTx(func(executor repositories.SQLExecutor) error {
		levels, err := s.inventoryRepo.AdjustStock(executor, source.ID, req.Quantity)
		if err != nil {
			return fmt.Errorf("restoring stock on item %d: %w", source.ID, err)
		}
		for _, d := range debits {
			if err := s.batchRepo.RestoreQuantity(executor, d.batchID, d.quantity); err != nil {
				return fmt.Errorf("restoring lot %s on item %d: %w", d.lotNumber, source.ID, err)
			}
		}
		entry := models.StockTransaction{
			ItemID:        source.ID,
			TxType:        models.TxTypeTransferIn,
			Quantity:      req.Quantity,
			Actor:         req.Actor,
			Reason:        &reason,
			BalanceBefore: levels.CurrentStock - req.Quantity,
			BalanceAfter:  levels.CurrentStock,
		}
		if _, err := s.txLogRepo.Append(executor, &entry); err != nil {
			return fmt.Errorf("recording compensation for item %d: %w", source.ID, err)
		}
		return nil
	})

	err := fmt.Errorf("%w: %d units debited from item %d, %s failed: %v",
		ErrTransferPartialFailure, req.Quantity, source.ID, step, cause)
	if compErr != nil {
		err = fmt.Errorf("%w; compensation also failed: %v", err, compErr)
	}
	utils.LogError(err, fmt.Sprintf("transfer of item %d to clinic %d (destination item %d)",
		source.ID, req.DestinationClinicID, destID))
	s.statusService.RecomputeAsync(source.ID, req.Actor)
	return err
}
