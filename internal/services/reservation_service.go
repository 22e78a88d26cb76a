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

// DefaultReservationTTL is how long a hold lives when the caller does not
// supply an expiry.
const DefaultReservationTTL = 24 * time.Hour

// ReserveRequest places a soft hold on available stock.
type ReserveRequest struct {
	ItemID    int64      `json:"item_id" binding:"required"`
	Quantity  int        `json:"quantity" binding:"required"`
	Kind      string     `json:"kind"`
	Reference string     `json:"reference"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Actor     string     `json:"actor"`
}

// ReservationService manages the hold lifecycle: reserve, release, fulfill,
// and the expiry sweep. Holds reduce available-to-promise without touching
// on-hand stock until fulfillment.
type ReservationService interface {
	Reserve(req ReserveRequest) (*models.Reservation, error)
	Release(reservationID, actor string) error
	Fulfill(reservationID, actor string, salePrice *float64) error
	// SweepExpired releases active holds past their expiry, oldest first, up
	// to limit. Returns the number released; individual failures are logged
	// and skipped so one stuck hold cannot stall the sweep.
	SweepExpired(now time.Time, limit int) (int, error)
	ListByItem(itemID int64) ([]models.Reservation, error)
	Get(reservationID string) (*models.Reservation, error)
}

type reservationService struct {
	txRunner        repositories.TxRunner
	inventoryRepo   repositories.InventoryRepository
	batchRepo       repositories.BatchRepository
	reservationRepo repositories.ReservationRepository
	txLogRepo       repositories.TransactionRepository
	statusService   StatusService
}

// NewReservationService creates a new instance of ReservationService.
func NewReservationService(
	runner repositories.TxRunner,
	ir repositories.InventoryRepository,
	br repositories.BatchRepository,
	rr repositories.ReservationRepository,
	tr repositories.TransactionRepository,
	ss StatusService,
) ReservationService {
	return &reservationService{
		txRunner:        runner,
		inventoryRepo:   ir,
		batchRepo:       br,
		reservationRepo: rr,
		txLogRepo:       tr,
		statusService:   ss,
	}
}

func (s *reservationService) Reserve(req ReserveRequest) (*models.Reservation, error) {
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
		return nil, fmt.Errorf("fetching item %d for reservation: %w", req.ItemID, err)
	}

	expiresAt := time.Now().Add(DefaultReservationTTL)
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(time.Now()) {
			return nil, fmt.Errorf("%w: expiry must be in the future", ErrValidation)
		}
		expiresAt = *req.ExpiresAt
	}
	kind := req.Kind
	if kind == "" {
		kind = "manual"
	}

	res := &models.Reservation{
		ID:        uuid.NewString(),
		ItemID:    req.ItemID,
		Kind:      kind,
		Reference: req.Reference,
		Quantity:  req.Quantity,
		Status:    models.ReservationStatusActive,
		ExpiresAt: expiresAt,
	}

	err = s.txRunner.WithinTx(func(executor repositories.SQLExecutor) error {
		// Guarded item update first; the row lock serializes concurrent holds
		// so two reservations can never share the same available units.
		levels, err := s.inventoryRepo.AdjustReserved(executor, req.ItemID, req.Quantity)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("%w: item ID %d", ErrItemNotFound, req.ItemID)
			}
			if errors.Is(err, repositories.ErrStockGuardFailed) {
				return fmt.Errorf("%w: item %d has %d available, %d requested",
					ErrInsufficientAvailable, req.ItemID, item.Available(), req.Quantity)
			}
			return fmt.Errorf("reserving stock for item %d: %w", req.ItemID, err)
		}

		if item.TracksBatches {
			allocs, err := s.allocateFEFO(executor, req.ItemID, req.Quantity)
			if err != nil {
				return err
			}
			res.Allocations = allocs
		}

		if err := s.reservationRepo.Create(executor, res); err != nil {
			return fmt.Errorf("creating reservation for item %d: %w", req.ItemID, err)
		}

		entry := models.StockTransaction{
			ItemID:        req.ItemID,
			TxType:        models.TxTypeReserved,
			Quantity:      0, // holds never move on-hand stock
			Actor:         req.Actor,
			Reference:     &res.ID,
			BalanceBefore: levels.CurrentStock,
			BalanceAfter:  levels.CurrentStock,
		}
		if _, err := s.txLogRepo.Append(executor, &entry); err != nil {
			return fmt.Errorf("recording reservation for item %d: %w", req.ItemID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.statusService.RecomputeAsync(req.ItemID, req.Actor)
	return res, nil
}

// allocateFEFO reserves qty against the item's lots soonest-expiry-first,
// inside the caller's transaction. Either the whole demand is covered or
// nothing is (the caller rolls back on error).
func (s *reservationService) allocateFEFO(executor repositories.SQLExecutor, itemID int64, qty int) ([]models.ReservationAllocation, error) {
	batches, err := s.batchRepo.ListByItem(executor, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing lots of item %d: %w", itemID, err)
	}

	now := time.Now()
	remaining := qty
	allocs := []models.ReservationAllocation{}
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
		if err := s.batchRepo.AdjustReserved(executor, b.ID, take); err != nil {
			if errors.Is(err, repositories.ErrStockGuardFailed) {
				return nil, fmt.Errorf("%w: lot %s of item %d changed underneath the allocation",
					ErrConcurrentModification, b.LotNumber, itemID)
			}
			return nil, fmt.Errorf("reserving on lot %s of item %d: %w", b.LotNumber, itemID, err)
		}
		allocs = append(allocs, models.ReservationAllocation{
			BatchID:   b.ID,
			LotNumber: b.LotNumber,
			Quantity:  take,
		})
		remaining -= take
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: item %d has no eligible lot coverage for %d of %d units",
			ErrNoEligibleBatch, itemID, remaining, qty)
	}
	return allocs, nil
}

func (s *reservationService) Release(reservationID, actor string) error {
	res, err := s.getActive(reservationID)
	if err != nil {
		return err
	}
	return s.release(res, models.ReservationStatusCancelled, actor)
}

// release reverses exactly the recorded allocation and moves the hold to a
// terminal status. The conditional status transition makes the second of two
// racing releases lose cleanly with no double-decrement.
func (s *reservationService) release(res *models.Reservation, to models.ReservationStatus, actor string) error {
	err := s.txRunner.WithinTx(func(executor repositories.SQLExecutor) error {
		levels, err := s.inventoryRepo.AdjustReserved(executor, res.ItemID, -res.Quantity)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("%w: item ID %d", ErrItemNotFound, res.ItemID)
			}
			return fmt.Errorf("releasing hold on item %d: %w", res.ItemID, err)
		}

		if err := s.reservationRepo.MarkTerminal(executor, res.ID, to); err != nil {
			if errors.Is(err, repositories.ErrConcurrentModification) {
				return fmt.Errorf("%w: reservation %s", ErrReservationNotActive, res.ID)
			}
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("%w: reservation %s", ErrReservationNotFound, res.ID)
			}
			return fmt.Errorf("marking reservation %s %s: %w", res.ID, to, err)
		}

		for _, alloc := range res.Allocations {
			if err := s.batchRepo.AdjustReserved(executor, alloc.BatchID, -alloc.Quantity); err != nil {
				return fmt.Errorf("releasing lot %s hold for reservation %s: %w", alloc.LotNumber, res.ID, err)
			}
		}

		entry := models.StockTransaction{
			ItemID:        res.ItemID,
			TxType:        models.TxTypeReleased,
			Quantity:      0,
			Actor:         actor,
			Reference:     &res.ID,
			BalanceBefore: levels.CurrentStock,
			BalanceAfter:  levels.CurrentStock,
		}
		if _, err := s.txLogRepo.Append(executor, &entry); err != nil {
			return fmt.Errorf("recording release of reservation %s: %w", res.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.statusService.RecomputeAsync(res.ItemID, actor)
	return nil
}

func (s *reservationService) Fulfill(reservationID, actor string, salePrice *float64) error {
	if actor == "" {
		return fmt.Errorf("%w: actor is required", ErrValidation)
	}
	res, err := s.getActive(reservationID)
	if err != nil {
		return err
	}

	err = s.txRunner.WithinTx(func(executor repositories.SQLExecutor) error {
		levels, err := s.inventoryRepo.AdjustStockAndReserved(executor, res.ItemID, -res.Quantity, -res.Quantity)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("%w: item ID %d", ErrItemNotFound, res.ItemID)
			}
			if errors.Is(err, repositories.ErrStockGuardFailed) {
				return fmt.Errorf("%w: item %d cannot cover fulfillment of reservation %s",
					ErrInsufficientStock, res.ItemID, res.ID)
			}
			return fmt.Errorf("deducting stock for reservation %s: %w", res.ID, err)
		}

		if err := s.reservationRepo.MarkTerminal(executor, res.ID, models.ReservationStatusFulfilled); err != nil {
			if errors.Is(err, repositories.ErrConcurrentModification) {
				return fmt.Errorf("%w: reservation %s", ErrReservationNotActive, res.ID)
			}
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("%w: reservation %s", ErrReservationNotFound, res.ID)
			}
			return fmt.Errorf("marking reservation %s fulfilled: %w", res.ID, err)
		}

		for _, alloc := range res.Allocations {
			if err := s.batchRepo.ConsumeAllocation(executor, alloc.BatchID, alloc.Quantity); err != nil {
				if errors.Is(err, repositories.ErrStockGuardFailed) {
					return fmt.Errorf("%w: lot %s changed underneath reservation %s",
						ErrConcurrentModification, alloc.LotNumber, res.ID)
				}
				return fmt.Errorf("consuming lot %s for reservation %s: %w", alloc.LotNumber, res.ID, err)
			}
		}

		entry := models.StockTransaction{
			ItemID:        res.ItemID,
			TxType:        models.TxTypeSale,
			Quantity:      -res.Quantity,
			Actor:         actor,
			Reference:     &res.ID,
			UnitPrice:     salePrice,
			BalanceBefore: levels.CurrentStock + res.Quantity,
			BalanceAfter:  levels.CurrentStock,
		}
		if _, err := s.txLogRepo.Append(executor, &entry); err != nil {
			return fmt.Errorf("recording fulfillment of reservation %s: %w", res.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.statusService.RecomputeAsync(res.ItemID, actor)
	return nil
}

func (s *reservationService) SweepExpired(now time.Time, limit int) (int, error) {
	if limit < 1 {
		limit = 100
	}
	expired, err := s.reservationRepo.ListExpiredActive(now, limit)
	if err != nil {
		return 0, fmt.Errorf("listing expired reservations: %w", err)
	}

	released := 0
	for i := range expired {
		res := &expired[i]
		full, err := s.reservationRepo.GetByID(nil, res.ID)
		if err != nil {
			utils.LogError(err, fmt.Sprintf("sweep: loading reservation %s", res.ID))
			continue
		}
		if full.Status.Terminal() {
			continue
		}
		if err := s.release(full, models.ReservationStatusExpired, "scheduler"); err != nil {
			// Another writer may have released or fulfilled it between the
			// listing and the transition; that is fine, move on.
			if errors.Is(err, ErrReservationNotActive) {
				continue
			}
			utils.LogError(err, fmt.Sprintf("sweep: releasing reservation %s", res.ID))
			continue
		}
		released++
	}
	if released > 0 {
		utils.LogInfo(fmt.Sprintf("sweep released %d expired reservations", released))
	}
	return released, nil
}

func (s *reservationService) ListByItem(itemID int64) ([]models.Reservation, error) {
	if _, err := s.inventoryRepo.GetItemByID(nil, itemID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: item ID %d", ErrItemNotFound, itemID)
		}
		return nil, fmt.Errorf("fetching item %d for reservation listing: %w", itemID, err)
	}
	return s.reservationRepo.ListByItem(nil, itemID)
}

func (s *reservationService) Get(reservationID string) (*models.Reservation, error) {
	res, err := s.reservationRepo.GetByID(nil, reservationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReservationNotFound, reservationID)
		}
		return nil, fmt.Errorf("fetching reservation %s: %w", reservationID, err)
	}
	return res, nil
}

func (s *reservationService) getActive(reservationID string) (*models.Reservation, error) {
	res, err := s.Get(reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status.Terminal() {
		return nil, fmt.Errorf("%w: reservation %s is already %s", ErrReservationNotActive, reservationID, res.Status)
	}
	return res, nil
}
