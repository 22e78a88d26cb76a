package services

import (
	"errors"
	"fmt"
	"time"

	"eyeclinic_backend/internal/models"
	"eyeclinic_backend/internal/repositories"
	"eyeclinic_backend/pkg/utils"

	"github.com/google/uuid"
)

// AdjustStockRequest is a direct on-hand stock change: a correction, a found
// case, shrinkage, a damaged unit. Reservations and transfers have their own
// entry points.
type AdjustStockRequest struct {
	ItemID int64   `json:"item_id" binding:"required"`
	Delta  int     `json:"delta" binding:"required"`
	Actor  string  `json:"actor"`
	Reason *string `json:"reason,omitempty"`
}

// ReceiveBatchRequest records goods arriving from a supplier.
type ReceiveBatchRequest struct {
	ItemID     int64      `json:"item_id" binding:"required"`
	LotNumber  string     `json:"lot_number"`
	Quantity   int        `json:"quantity" binding:"required"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	UnitCost   *float64   `json:"unit_cost,omitempty"`
	Reference  *string    `json:"reference,omitempty"`
	Actor      string     `json:"actor"`
}

// AdjustStockResult is the post-adjustment snapshot returned to the caller.
type AdjustStockResult struct {
	ItemID        int64              `json:"item_id"`
	CurrentStock  int                `json:"current_stock"`
	Reserved      int                `json:"reserved"`
	Available     int                `json:"available"`
	Status        models.StockStatus `json:"status"`
	Version       int64              `json:"version"`
	TransactionID int64              `json:"transaction_id"`
}

// StockService is the stock adjustment engine. Every on-hand change goes
// through a single guarded conditional write plus exactly one audit entry,
// committed together.
type StockService interface {
	Adjust(req AdjustStockRequest) (*AdjustStockResult, error)
	ReceiveBatch(req ReceiveBatchRequest) (*models.Batch, error)
	History(itemID int64, txType *string, page, pageSize int) ([]models.StockTransaction, int, error)
	// SetBatchStatus pulls an active lot out of circulation (quarantined or
	// recalled). The units stay on hand but become ineligible for allocation.
	SetBatchStatus(batchID int64, status models.BatchStatus, actor string) error
	// MarkExpiredBatches flips every active lot past its expiry and returns
	// the number transitioned. Invoked by the external scheduler.
	MarkExpiredBatches(now time.Time) (int, error)
}

type stockService struct {
	txRunner      repositories.TxRunner
	inventoryRepo repositories.InventoryRepository
	batchRepo     repositories.BatchRepository
	txLogRepo     repositories.TransactionRepository
	statusService StatusService
}

// NewStockService creates a new instance of StockService.
func NewStockService(
	runner repositories.TxRunner,
	ir repositories.InventoryRepository,
	br repositories.BatchRepository,
	tr repositories.TransactionRepository,
	ss StatusService,
) StockService {
	return &stockService{
		txRunner:      runner,
		inventoryRepo: ir,
		batchRepo:     br,
		txLogRepo:     tr,
		statusService: ss,
	}
}

func (s *stockService) Adjust(req AdjustStockRequest) (*AdjustStockResult, error) {
	if req.Delta == 0 {
		return nil, fmt.Errorf("%w: delta must be non-zero", ErrValidation)
	}
	if req.Actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrValidation)
	}

	item, err := s.inventoryRepo.GetItemByID(nil, req.ItemID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: item ID %d", ErrItemNotFound, req.ItemID)
		}
		return nil, fmt.Errorf("fetching item %d for adjustment: %w", req.ItemID, err)
	}
	if item.TracksBatches && req.Delta > 0 {
		// Incoming lot-tracked goods carry a lot number and expiry; a bare
		// positive delta would break the lots-sum-to-stock invariant.
		return nil, fmt.Errorf("%w: item %d tracks lots, positive adjustments must go through batch receiving", ErrValidation, req.ItemID)
	}

	txType := models.TxTypeAdjustmentIn
	if req.Delta < 0 {
		txType = models.TxTypeAdjustmentOut
	}

	var levels *repositories.StockLevels
	var entry models.StockTransaction
	err = s.txRunner.WithinTx(func(executor repositories.SQLExecutor) error {
		// The guarded item update goes first; its row lock serializes every
		// concurrent mutation of this item for the rest of the transaction.
		levels, err = s.inventoryRepo.AdjustStock(executor, req.ItemID, req.Delta)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("%w: item ID %d", ErrItemNotFound, req.ItemID)
			}
			if errors.Is(err, repositories.ErrStockGuardFailed) {
				return fmt.Errorf("%w: item %d cannot absorb delta %d (stock %d, reserved %d)",
					ErrInsufficientStock, req.ItemID, req.Delta, item.CurrentStock, item.Reserved)
			}
			return fmt.Errorf("adjusting stock for item %d: %w", req.ItemID, err)
		}

		if item.TracksBatches && req.Delta < 0 {
			if err := s.consumeLotsFEFO(executor, req.ItemID, -req.Delta); err != nil {
				return err
			}
		}

		entry = models.StockTransaction{
			ItemID:        req.ItemID,
			TxType:        txType,
			Quantity:      req.Delta,
			Actor:         req.Actor,
			Reason:        req.Reason,
			BalanceBefore: levels.CurrentStock - req.Delta,
			BalanceAfter:  levels.CurrentStock,
		}
		if _, err := s.txLogRepo.Append(executor, &entry); err != nil {
			return fmt.Errorf("recording adjustment for item %d: %w", req.ItemID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.statusService.RecomputeAsync(req.ItemID, req.Actor)

	return &AdjustStockResult{
		ItemID:       req.ItemID,
		CurrentStock: levels.CurrentStock,
		Reserved:     levels.Reserved,
		Available:    levels.CurrentStock - levels.Reserved,
		Status: DeriveStockStatus(StatusInput{
			CurrentStock: levels.CurrentStock,
			Reserved:     levels.Reserved,
			MinimumStock: item.MinimumStock,
			MaximumStock: item.MaximumStock,
			OnOrder:      item.OnOrder,
			Discontinued: item.Discontinued,
		}),
		Version:       levels.Version,
		TransactionID: entry.ID,
	}, nil
}

// consumeLotsFEFO walks the item's lots soonest-expiry-first and deducts qty
// from their unreserved portions. Runs inside the caller's transaction; a
// shortfall aborts the whole adjustment.
func (s *stockService) consumeLotsFEFO(executor repositories.SQLExecutor, itemID int64, qty int) error {
	batches, err := s.batchRepo.ListByItem(executor, itemID)
	if err != nil {
		return fmt.Errorf("listing lots of item %d: %w", itemID, err)
	}

	now := time.Now()
	remaining := qty
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
				return fmt.Errorf("%w: lot %s of item %d changed underneath the adjustment",
					ErrConcurrentModification, b.LotNumber, itemID)
			}
			return fmt.Errorf("reducing lot %s of item %d: %w", b.LotNumber, itemID, err)
		}
		remaining -= take
	}
	if remaining > 0 {
		return fmt.Errorf("%w: item %d needs %d more units than its eligible lots hold",
			ErrNoEligibleBatch, itemID, remaining)
	}
	return nil
}

func (s *stockService) ReceiveBatch(req ReceiveBatchRequest) (*models.Batch, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if req.Actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrValidation)
	}

	item, err := s.inventoryRepo.GetItemByID(nil, req.ItemID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: item ID %d", ErrItemNotFound, req.ItemID)
		}
		return nil, fmt.Errorf("fetching item %d for receiving: %w", req.ItemID, err)
	}
	if item.ItemType.Perishable() {
		if req.ExpiryDate == nil {
			return nil, fmt.Errorf("%w: %s lots require an expiry date", ErrValidation, item.ItemType)
		}
		if !req.ExpiryDate.After(time.Now()) {
			return nil, fmt.Errorf("%w: expiry date is already past", ErrValidation)
		}
	}

	lotNumber := req.LotNumber
	if lotNumber == "" {
		lotNumber = uuid.NewString()
	}

	var batch *models.Batch
	err = s.txRunner.WithinTx(func(executor repositories.SQLExecutor) error {
		levels, err := s.inventoryRepo.AdjustStock(executor, req.ItemID, req.Quantity)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("%w: item ID %d", ErrItemNotFound, req.ItemID)
			}
			return fmt.Errorf("crediting received stock for item %d: %w", req.ItemID, err)
		}

		if item.TracksBatches {
			batch = &models.Batch{
				ItemID:     req.ItemID,
				LotNumber:  lotNumber,
				Quantity:   req.Quantity,
				ExpiryDate: req.ExpiryDate,
				Status:     models.BatchStatusActive,
			}
			if _, err := s.batchRepo.CreateBatch(executor, batch); err != nil {
				return fmt.Errorf("creating lot %s for item %d: %w", lotNumber, req.ItemID, err)
			}
		}

		entry := models.StockTransaction{
			ItemID:        req.ItemID,
			TxType:        models.TxTypePurchase,
			Quantity:      req.Quantity,
			Actor:         req.Actor,
			Reference:     req.Reference,
			UnitPrice:     req.UnitCost,
			BalanceBefore: levels.CurrentStock - req.Quantity,
			BalanceAfter:  levels.CurrentStock,
		}
		if _, err := s.txLogRepo.Append(executor, &entry); err != nil {
			return fmt.Errorf("recording receipt for item %d: %w", req.ItemID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.statusService.RecomputeAsync(req.ItemID, req.Actor)
	if batch == nil {
		// Non-tracked item: the receipt still happened, there is just no lot row.
		return &models.Batch{ItemID: req.ItemID, LotNumber: lotNumber, Quantity: req.Quantity}, nil
	}
	return batch, nil
}

func (s *stockService) History(itemID int64, txType *string, page, pageSize int) ([]models.StockTransaction, int, error) {
	if _, err := s.inventoryRepo.GetItemByID(nil, itemID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, 0, fmt.Errorf("%w: item ID %d", ErrItemNotFound, itemID)
		}
		return nil, 0, fmt.Errorf("fetching item %d for history: %w", itemID, err)
	}
	return s.txLogRepo.GetByItem(itemID, txType, page, pageSize)
}

func (s *stockService) SetBatchStatus(batchID int64, status models.BatchStatus, actor string) error {
	if status != models.BatchStatusQuarantined && status != models.BatchStatusRecalled {
		return fmt.Errorf("%w: lots can only be moved to quarantined or recalled here", ErrValidation)
	}
	batch, err := s.batchRepo.GetBatchByID(nil, batchID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: batch ID %d", ErrBatchNotFound, batchID)
		}
		return fmt.Errorf("fetching batch %d: %w", batchID, err)
	}
	if batch.Reserved > 0 {
		return fmt.Errorf("%w: lot %s still has %d reserved units", ErrValidation, batch.LotNumber, batch.Reserved)
	}
	if err := s.batchRepo.SetStatus(nil, batchID, status); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: batch ID %d", ErrBatchNotFound, batchID)
		}
		if errors.Is(err, repositories.ErrStockGuardFailed) {
			return fmt.Errorf("%w: lot %s is no longer active", ErrConcurrentModification, batch.LotNumber)
		}
		return fmt.Errorf("setting status of batch %d: %w", batchID, err)
	}
	utils.LogInfo(fmt.Sprintf("lot %s of item %d marked %s by %s", batch.LotNumber, batch.ItemID, status, actor))
	s.statusService.RecomputeAsync(batch.ItemID, actor)
	return nil
}

func (s *stockService) MarkExpiredBatches(now time.Time) (int, error) {
	count, err := s.batchRepo.MarkExpired(nil, now)
	if err != nil {
		return 0, fmt.Errorf("marking expired lots: %w", err)
	}
	if count > 0 {
		utils.LogInfo(fmt.Sprintf("marked %d lots expired", count))
	}
	return count, nil
}
