package services

import (
	"errors"
	"testing"

	"eyeclinic_backend/internal/models"
	"eyeclinic_backend/internal/repositories"
)

func TestTransferCreatesDestinationAndMovesLots(t *testing.T) {
	h := newStockHarness()
	desc := "Preservative-free artificial tears"
	source := h.addItem(t, models.InventoryItem{
		ClinicID: 1, SKU: "ART-201", Name: "Artificial tears", ItemType: models.ItemTypeMedication,
		Description: &desc, TracksBatches: true, CurrentStock: 12, MinimumStock: 2,
	})
	early := h.batches.add(&models.Batch{ItemID: source.ID, LotNumber: "L-A", Quantity: 4, ExpiryDate: daysFromNow(20)})
	h.batches.add(&models.Batch{ItemID: source.ID, LotNumber: "L-B", Quantity: 8, ExpiryDate: daysFromNow(90)})

	result, err := h.transfer.Transfer(TransferRequest{SourceItemID: source.ID, DestinationClinicID: 2, Quantity: 6, Actor: "pharm"})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if result.SourceStock != 6 || result.DestinationStock != 6 {
		t.Fatalf("stocks %d / %d after transfer", result.SourceStock, result.DestinationStock)
	}

	dest, err := h.inventory.GetItemBySKUAndClinic(nil, "ART-201", 2)
	if err != nil {
		t.Fatalf("destination item not created: %v", err)
	}
	if dest.ItemType != source.ItemType || dest.Name != source.Name || !dest.TracksBatches {
		t.Fatalf("descriptive attributes not carried: %+v", dest)
	}
	if dest.CurrentStock != 6 || dest.Reserved != 0 {
		t.Fatalf("destination stock %d reserved %d", dest.CurrentStock, dest.Reserved)
	}

	// FEFO on the debit: the soonest-expiry lot empties first.
	gotEarly, _ := h.batches.GetBatchByID(nil, early.ID)
	if gotEarly.Quantity != 0 {
		t.Fatalf("soonest lot should be consumed first, got %d", gotEarly.Quantity)
	}

	// Moved units keep their lot identity at the destination.
	destBatches, _ := h.batches.ListByItem(nil, dest.ID)
	if len(destBatches) != 2 {
		t.Fatalf("expected 2 destination lots, got %d", len(destBatches))
	}
	if destBatches[0].LotNumber != "L-A" || destBatches[0].Quantity != 4 {
		t.Fatalf("first destination lot %+v", destBatches[0])
	}
	if destBatches[1].LotNumber != "L-B" || destBatches[1].Quantity != 2 {
		t.Fatalf("second destination lot %+v", destBatches[1])
	}

	// Both sides carry their own audit entries.
	sourceEntries := h.txLog.byItem(source.ID)
	destEntries := h.txLog.byItem(dest.ID)
	if len(sourceEntries) != 1 || sourceEntries[0].TxType != models.TxTypeTransferOut || sourceEntries[0].Quantity != -6 {
		t.Fatalf("source entries %+v", sourceEntries)
	}
	if len(destEntries) != 1 || destEntries[0].TxType != models.TxTypeTransferIn || destEntries[0].Quantity != 6 {
		t.Fatalf("destination entries %+v", destEntries)
	}
}

func TestTransferIntoExistingDestination(t *testing.T) {
	h := newStockHarness()
	source := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "FRM-202", Name: "Frame C", ItemType: models.ItemTypeFrame, CurrentStock: 10})
	dest := h.addItem(t, models.InventoryItem{ClinicID: 2, SKU: "FRM-202", Name: "Frame C", ItemType: models.ItemTypeFrame, CurrentStock: 3})

	result, err := h.transfer.Transfer(TransferRequest{SourceItemID: source.ID, DestinationClinicID: 2, Quantity: 4, Actor: "pharm"})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if result.DestinationItemID != dest.ID {
		t.Fatalf("transfer created a new item instead of reusing %d", dest.ID)
	}
	gotDest, _ := h.inventory.GetItemByID(nil, dest.ID)
	if gotDest.CurrentStock != 7 {
		t.Fatalf("destination stock %d, want 7", gotDest.CurrentStock)
	}
}

func TestTransferInsufficientStockIsClean(t *testing.T) {
	h := newStockHarness()
	source := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "FRM-203", Name: "Frame D", ItemType: models.ItemTypeFrame, CurrentStock: 5, Reserved: 3})

	_, err := h.transfer.Transfer(TransferRequest{SourceItemID: source.ID, DestinationClinicID: 2, Quantity: 4, Actor: "pharm"})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	got, _ := h.inventory.GetItemByID(nil, source.ID)
	if got.CurrentStock != 5 {
		t.Fatalf("source mutated on failed step 1: %d", got.CurrentStock)
	}
	if _, err := h.inventory.GetItemBySKUAndClinic(nil, "FRM-203", 2); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatal("destination item created despite failed debit")
	}
}

func TestTransferPartialFailureCompensates(t *testing.T) {
	h := newStockHarness()
	source := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "MED-204", Name: "Pilocarpine", ItemType: models.ItemTypeMedication, TracksBatches: true, CurrentStock: 8})
	batch := h.batches.add(&models.Batch{ItemID: source.ID, LotNumber: "L-P", Quantity: 8, ExpiryDate: daysFromNow(60)})

	// The destination clinic already holds this sku as a different goods
	// type, so the transfer fails after the source was debited.
	h.addItem(t, models.InventoryItem{ClinicID: 2, SKU: "MED-204", Name: "Pilocarpine", ItemType: models.ItemTypeConsumable, CurrentStock: 0})

	_, err := h.transfer.Transfer(TransferRequest{SourceItemID: source.ID, DestinationClinicID: 2, Quantity: 5, Actor: "pharm"})
	if !errors.Is(err, ErrTransferPartialFailure) {
		t.Fatalf("expected ErrTransferPartialFailure, got %v", err)
	}

	// Compensation restored the source, stock and lots alike.
	got, _ := h.inventory.GetItemByID(nil, source.ID)
	if got.CurrentStock != 8 {
		t.Fatalf("source stock %d after compensation, want 8", got.CurrentStock)
	}
	gotBatch, _ := h.batches.GetBatchByID(nil, batch.ID)
	if gotBatch.Quantity != 8 || gotBatch.Status != models.BatchStatusActive {
		t.Fatalf("lot not restored: %d %s", gotBatch.Quantity, gotBatch.Status)
	}

	// The audit trail shows both the debit and the compensation, keeping the
	// balance chain intact.
	entries := h.txLog.byItem(source.ID)
	if len(entries) != 2 {
		t.Fatalf("expected debit + compensation entries, got %d", len(entries))
	}
	if entries[0].TxType != models.TxTypeTransferOut || entries[1].TxType != models.TxTypeTransferIn {
		t.Fatalf("entry types %s, %s", entries[0].TxType, entries[1].TxType)
	}
	if entries[1].BalanceBefore != entries[0].BalanceAfter || entries[1].BalanceAfter != 8 {
		t.Fatalf("compensation balances %d -> %d", entries[1].BalanceBefore, entries[1].BalanceAfter)
	}
}

func TestTransferSameClinicRejected(t *testing.T) {
	h := newStockHarness()
	source := h.addItem(t, models.InventoryItem{ClinicID: 1, SKU: "FRM-205", Name: "Frame E", ItemType: models.ItemTypeFrame, CurrentStock: 5})

	if _, err := h.transfer.Transfer(TransferRequest{SourceItemID: source.ID, DestinationClinicID: 1, Quantity: 2, Actor: "pharm"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
