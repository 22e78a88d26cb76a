package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eyeclinic_backend/internal/models"
)

func TestReserveAllocatesFEFO(t *testing.T) {
	h := newStockHarness()
	item := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "CL-101", Name: "Monthly lens -2.00", ItemType: models.ItemTypeContactLens, TracksBatches: true, CurrentStock: 10})
	early := h.batches.add(&models.Batch{ItemID: item.ID, LotNumber: "L-10D", Quantity: 5, ExpiryDate: daysFromNow(10)})
	late := h.batches.add(&models.Batch{ItemID: item.ID, LotNumber: "L-30D", Quantity: 5, ExpiryDate: daysFromNow(30)})

	res, err := h.reservation.Reserve(ReserveRequest{ItemID: item.ID, Quantity: 7, Reference: "order-9", Actor: "opt"})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(res.Allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(res.Allocations))
	}
	if res.Allocations[0].BatchID != early.ID || res.Allocations[0].Quantity != 5 {
		t.Fatalf("soonest-expiry lot should go first: %+v", res.Allocations[0])
	}
	if res.Allocations[1].BatchID != late.ID || res.Allocations[1].Quantity != 2 {
		t.Fatalf("remainder should come from the later lot: %+v", res.Allocations[1])
	}

	got, _ := h.inventory.GetItemByID(nil, item.ID)
	if got.CurrentStock != 10 || got.Reserved != 7 {
		t.Fatalf("reserve must not move on-hand stock: stock %d reserved %d", got.CurrentStock, got.Reserved)
	}
	gotEarly, _ := h.batches.GetBatchByID(nil, early.ID)
	gotLate, _ := h.batches.GetBatchByID(nil, late.ID)
	if gotEarly.Reserved != 5 || gotLate.Reserved != 2 {
		t.Fatalf("lot reserved %d / %d", gotEarly.Reserved, gotLate.Reserved)
	}

	entries := h.txLog.byItem(item.ID)
	if len(entries) != 1 || entries[0].TxType != models.TxTypeReserved || entries[0].Quantity != 0 {
		t.Fatalf("expected one zero-delta reserved entry, got %+v", entries)
	}
}

func TestReserveInsufficientAvailable(t *testing.T) {
	h := newStockHarness()
	item := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "CL-102", Name: "Lens", ItemType: models.ItemTypeContactLens, CurrentStock: 10, Reserved: 8})

	_, err := h.reservation.Reserve(ReserveRequest{ItemID: item.ID, Quantity: 3, Actor: "opt"})
	if !errors.Is(err, ErrInsufficientAvailable) {
		t.Fatalf("expected ErrInsufficientAvailable, got %v", err)
	}
	got, _ := h.inventory.GetItemByID(nil, item.ID)
	if got.Reserved != 8 {
		t.Fatalf("reserved mutated on failure: %d", got.Reserved)
	}
}

func TestReserveNoEligibleBatchRollsBackItemHold(t *testing.T) {
	h := newStockHarness()
	item := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "MED-103", Name: "Cyclopentolate", ItemType: models.ItemTypeMedication, TracksBatches: true, CurrentStock: 6})
	h.batches.add(&models.Batch{ItemID: item.ID, LotNumber: "L-EXP", Quantity: 6, ExpiryDate: daysFromNow(-5)})

	_, err := h.reservation.Reserve(ReserveRequest{ItemID: item.ID, Quantity: 2, Actor: "opt"})
	if !errors.Is(err, ErrNoEligibleBatch) {
		t.Fatalf("expected ErrNoEligibleBatch, got %v", err)
	}

	got, _ := h.inventory.GetItemByID(nil, item.ID)
	if got.Reserved != 0 {
		t.Fatalf("item hold survived rollback: reserved %d", got.Reserved)
	}
	if len(h.txLog.byItem(item.ID)) != 0 {
		t.Fatal("audit entry survived rollback")
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	h := newStockHarness()
	const stock = 10
	const workers = 25
	item := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "FRM-104", Name: "Frame B", ItemType: models.ItemTypeFrame, CurrentStock: stock})

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.reservation.Reserve(ReserveRequest{ItemID: item.ID, Quantity: 1, Actor: "opt"})
			if err == nil {
				ok.Add(1)
			} else if !errors.Is(err, ErrInsufficientAvailable) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != stock {
		t.Fatalf("%d holds placed, want %d", ok.Load(), stock)
	}
	got, _ := h.inventory.GetItemByID(nil, item.ID)
	if got.Reserved != stock || got.Available() != 0 {
		t.Fatalf("reserved %d available %d", got.Reserved, got.Available())
	}
}

func TestReleaseReturnsExactlyTheRecordedAllocation(t *testing.T) {
	h := newStockHarness()
	item := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "CL-105", Name: "Lens", ItemType: models.ItemTypeContactLens, TracksBatches: true, CurrentStock: 10})
	batch := h.batches.add(&models.Batch{ItemID: item.ID, LotNumber: "L-1", Quantity: 10, ExpiryDate: daysFromNow(45)})

	res, err := h.reservation.Reserve(ReserveRequest{ItemID: item.ID, Quantity: 4, Actor: "opt"})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := h.reservation.Release(res.ID, "opt"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	got, _ := h.inventory.GetItemByID(nil, item.ID)
	gotBatch, _ := h.batches.GetBatchByID(nil, batch.ID)
	if got.Reserved != 0 || gotBatch.Reserved != 0 {
		t.Fatalf("hold not fully returned: item %d batch %d", got.Reserved, gotBatch.Reserved)
	}
	stored, _ := h.reservation.Get(res.ID)
	if stored.Status != models.ReservationStatusCancelled {
		t.Fatalf("status %s", stored.Status)
	}
}

func TestDoubleReleaseDoesNotDoubleDecrement(t *testing.T) {
	h := newStockHarness()
	item := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "CL-106", Name: "Lens", ItemType: models.ItemTypeContactLens, CurrentStock: 10})

	res, err := h.reservation.Reserve(ReserveRequest{ItemID: item.ID, Quantity: 4, Actor: "opt"})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := h.reservation.Release(res.ID, "opt"); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := h.reservation.Release(res.ID, "opt"); !errors.Is(err, ErrReservationNotActive) {
		t.Fatalf("expected ErrReservationNotActive, got %v", err)
	}

	got, _ := h.inventory.GetItemByID(nil, item.ID)
	if got.Reserved != 0 {
		t.Fatalf("reserved went negative or doubled: %d", got.Reserved)
	}
}

func TestFulfillDeductsStockAndConsumesLots(t *testing.T) {
	h := newStockHarness()
	item := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "CL-107", Name: "Lens", ItemType: models.ItemTypeContactLens, TracksBatches: true, CurrentStock: 10})
	batch := h.batches.add(&models.Batch{ItemID: item.ID, LotNumber: "L-1", Quantity: 10, ExpiryDate: daysFromNow(45)})

	res, err := h.reservation.Reserve(ReserveRequest{ItemID: item.ID, Quantity: 4, Actor: "opt"})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	price := 29.90
	if err := h.reservation.Fulfill(res.ID, "opt", &price); err != nil {
		t.Fatalf("Fulfill: %v", err)
	}

	got, _ := h.inventory.GetItemByID(nil, item.ID)
	if got.CurrentStock != 6 || got.Reserved != 0 {
		t.Fatalf("stock %d reserved %d after fulfill", got.CurrentStock, got.Reserved)
	}
	gotBatch, _ := h.batches.GetBatchByID(nil, batch.ID)
	if gotBatch.Quantity != 6 || gotBatch.Reserved != 0 {
		t.Fatalf("batch %d/%d after fulfill", gotBatch.Quantity, gotBatch.Reserved)
	}

	entries := h.txLog.byItem(item.ID)
	last := entries[len(entries)-1]
	if last.TxType != models.TxTypeSale || last.Quantity != -4 {
		t.Fatalf("expected sale entry of -4, got %+v", last)
	}
	if last.BalanceBefore != 10 || last.BalanceAfter != 6 {
		t.Fatalf("sale balances %d -> %d", last.BalanceBefore, last.BalanceAfter)
	}
	if last.UnitPrice == nil || *last.UnitPrice != price {
		t.Fatal("sale entry missing unit price")
	}
}

func TestFulfillAfterReleaseFails(t *testing.T) {
	h := newStockHarness()
	item := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "CL-108", Name: "Lens", ItemType: models.ItemTypeContactLens, CurrentStock: 10})

	res, err := h.reservation.Reserve(ReserveRequest{ItemID: item.ID, Quantity: 4, Actor: "opt"})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := h.reservation.Release(res.ID, "opt"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := h.reservation.Fulfill(res.ID, "opt", nil); !errors.Is(err, ErrReservationNotActive) {
		t.Fatalf("expected ErrReservationNotActive, got %v", err)
	}
	got, _ := h.inventory.GetItemByID(nil, item.ID)
	if got.CurrentStock != 10 {
		t.Fatalf("stock deducted after release: %d", got.CurrentStock)
	}
}

func TestSweepExpiredReleasesOnlyExpiredActive(t *testing.T) {
	h := newStockHarness()
	item := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "CL-109", Name: "Lens", ItemType: models.ItemTypeContactLens, CurrentStock: 20})

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	expired, err := h.reservation.Reserve(ReserveRequest{ItemID: item.ID, Quantity: 3, ExpiresAt: &future, Actor: "opt"})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	// Backdate the first hold past its expiry.
	h.reservations.mu.Lock()
	h.reservations.reservations[expired.ID].ExpiresAt = past
	h.reservations.mu.Unlock()

	live, err := h.reservation.Reserve(ReserveRequest{ItemID: item.ID, Quantity: 5, ExpiresAt: &future, Actor: "opt"})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	released, err := h.reservation.SweepExpired(time.Now(), 100)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if released != 1 {
		t.Fatalf("released %d, want 1", released)
	}

	gotExpired, _ := h.reservation.Get(expired.ID)
	gotLive, _ := h.reservation.Get(live.ID)
	if gotExpired.Status != models.ReservationStatusExpired {
		t.Fatalf("expired hold status %s", gotExpired.Status)
	}
	if gotLive.Status != models.ReservationStatusActive {
		t.Fatalf("live hold swept: %s", gotLive.Status)
	}
	got, _ := h.inventory.GetItemByID(nil, item.ID)
	if got.Reserved != 5 {
		t.Fatalf("reserved %d, want 5", got.Reserved)
	}
}
