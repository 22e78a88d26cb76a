package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"eyeclinic_backend/internal/models"
	"eyeclinic_backend/internal/repositories"
)

// The fakes below stand in for the Postgres repositories. They reproduce the
// guard semantics of the real conditional UPDATEs, and the fake TxRunner
// snapshots their state so a failed transaction genuinely rolls back.

type snapshotter interface {
	snapshot() interface{}
	restore(interface{})
}

// fakeTxRunner serializes transactions with a mutex, standing in for the row
// locks that serialize concurrent writers against the real store.
type fakeTxRunner struct {
	mu    sync.Mutex
	repos []snapshotter
}

func newFakeTxRunner(repos ...snapshotter) *fakeTxRunner {
	return &fakeTxRunner{repos: repos}
}

func (r *fakeTxRunner) WithinTx(fn func(executor repositories.SQLExecutor) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshots := make([]interface{}, len(r.repos))
	for i, repo := range r.repos {
		snapshots[i] = repo.snapshot()
	}
	if err := fn(nil); err != nil {
		for i, repo := range r.repos {
			repo.restore(snapshots[i])
		}
		return err
	}
	return nil
}

// fakeInventoryRepo

type fakeInventoryRepo struct {
	mu     sync.Mutex
	items  map[int64]*models.InventoryItem
	nextID int64
}

func newFakeInventoryRepo() *fakeInventoryRepo {
	return &fakeInventoryRepo{items: map[int64]*models.InventoryItem{}, nextID: 1}
}

func copyItem(item *models.InventoryItem) *models.InventoryItem {
	c := *item
	return &c
}

func (f *fakeInventoryRepo) snapshot() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := map[int64]*models.InventoryItem{}
	for id, item := range f.items {
		snap[id] = copyItem(item)
	}
	return snap
}

func (f *fakeInventoryRepo) restore(s interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = s.(map[int64]*models.InventoryItem)
}

func (f *fakeInventoryRepo) add(item *models.InventoryItem) *models.InventoryItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item.ID == 0 {
		item.ID = f.nextID
	}
	if item.ID >= f.nextID {
		f.nextID = item.ID + 1
	}
	if item.Version == 0 {
		item.Version = 1
	}
	item.IsActive = true
	f.items[item.ID] = copyItem(item)
	return item
}

func (f *fakeInventoryRepo) CreateItem(_ repositories.SQLExecutor, item *models.InventoryItem) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.SKU == item.SKU && existing.ClinicID == item.ClinicID {
			return 0, repositories.ErrDuplicateKey
		}
	}
	item.ID = f.nextID
	f.nextID++
	item.Version = 1
	f.items[item.ID] = copyItem(item)
	return item.ID, nil
}

func (f *fakeInventoryRepo) GetItemByID(_ repositories.SQLExecutor, id int64) (*models.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || !item.IsActive {
		return nil, repositories.ErrNotFound
	}
	return copyItem(item), nil
}

func (f *fakeInventoryRepo) GetItemBySKUAndClinic(_ repositories.SQLExecutor, sku string, clinicID int64) (*models.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.SKU == sku && item.ClinicID == clinicID {
			return copyItem(item), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeInventoryRepo) GetItems(filters models.ItemFilters) ([]models.InventoryItem, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []models.InventoryItem{}
	for _, item := range f.items {
		if !item.IsActive {
			continue
		}
		if filters.ClinicID != nil && item.ClinicID != *filters.ClinicID {
			continue
		}
		if filters.ItemType != nil && item.ItemType != *filters.ItemType {
			continue
		}
		if filters.Status != nil && item.Status != *filters.Status {
			continue
		}
		result = append(result, *copyItem(item))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, len(result), nil
}

func (f *fakeInventoryRepo) UpdateItemDescriptive(_ repositories.SQLExecutor, item *models.InventoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.items[item.ID]
	if !ok || !existing.IsActive {
		return repositories.ErrNotFound
	}
	updated := copyItem(item)
	updated.CurrentStock = existing.CurrentStock
	updated.Reserved = existing.Reserved
	updated.Version = existing.Version + 1
	f.items[item.ID] = updated
	return nil
}

func (f *fakeInventoryRepo) SoftDeleteItem(_ repositories.SQLExecutor, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || !item.IsActive {
		return repositories.ErrNotFound
	}
	if item.Reserved > 0 {
		return fmt.Errorf("%w: item %d has %d reserved units", repositories.ErrStockGuardFailed, id, item.Reserved)
	}
	item.IsActive = false
	item.Version++
	return nil
}

func (f *fakeInventoryRepo) AdjustStock(_ repositories.SQLExecutor, itemID int64, delta int) (*repositories.StockLevels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || !item.IsActive {
		return nil, repositories.ErrNotFound
	}
	if item.CurrentStock+delta < item.Reserved {
		return nil, fmt.Errorf("%w: item %d has stock %d, reserved %d",
			repositories.ErrStockGuardFailed, itemID, item.CurrentStock, item.Reserved)
	}
	item.CurrentStock += delta
	item.Version++
	return &repositories.StockLevels{CurrentStock: item.CurrentStock, Reserved: item.Reserved, Version: item.Version}, nil
}

func (f *fakeInventoryRepo) AdjustReserved(_ repositories.SQLExecutor, itemID int64, delta int) (*repositories.StockLevels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || !item.IsActive {
		return nil, repositories.ErrNotFound
	}
	if item.Reserved+delta < 0 || item.Reserved+delta > item.CurrentStock {
		return nil, fmt.Errorf("%w: item %d has stock %d, reserved %d",
			repositories.ErrStockGuardFailed, itemID, item.CurrentStock, item.Reserved)
	}
	item.Reserved += delta
	item.Version++
	return &repositories.StockLevels{CurrentStock: item.CurrentStock, Reserved: item.Reserved, Version: item.Version}, nil
}

func (f *fakeInventoryRepo) AdjustStockAndReserved(_ repositories.SQLExecutor, itemID int64, stockDelta, reservedDelta int) (*repositories.StockLevels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || !item.IsActive {
		return nil, repositories.ErrNotFound
	}
	newStock := item.CurrentStock + stockDelta
	newReserved := item.Reserved + reservedDelta
	if newStock < 0 || newReserved < 0 || newReserved > newStock {
		return nil, fmt.Errorf("%w: item %d has stock %d, reserved %d",
			repositories.ErrStockGuardFailed, itemID, item.CurrentStock, item.Reserved)
	}
	item.CurrentStock = newStock
	item.Reserved = newReserved
	item.Version++
	return &repositories.StockLevels{CurrentStock: item.CurrentStock, Reserved: item.Reserved, Version: item.Version}, nil
}

func (f *fakeInventoryRepo) BumpVersion(_ repositories.SQLExecutor, itemID, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return repositories.ErrNotFound
	}
	if item.Version != expectedVersion {
		return repositories.ErrConcurrentModification
	}
	item.Version++
	return nil
}

func (f *fakeInventoryRepo) SetDerivedStatus(_ repositories.SQLExecutor, itemID int64, status models.StockStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return repositories.ErrNotFound
	}
	item.Status = status
	return nil
}

// fakeBatchRepo

type fakeBatchRepo struct {
	mu      sync.Mutex
	batches map[int64]*models.Batch
	nextID  int64
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: map[int64]*models.Batch{}, nextID: 1}
}

func copyBatch(b *models.Batch) *models.Batch {
	c := *b
	return &c
}

func (f *fakeBatchRepo) snapshot() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := map[int64]*models.Batch{}
	for id, b := range f.batches {
		snap[id] = copyBatch(b)
	}
	return snap
}

func (f *fakeBatchRepo) restore(s interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = s.(map[int64]*models.Batch)
}

func (f *fakeBatchRepo) add(b *models.Batch) *models.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == 0 {
		b.ID = f.nextID
	}
	if b.ID >= f.nextID {
		f.nextID = b.ID + 1
	}
	if b.Status == "" {
		b.Status = models.BatchStatusActive
	}
	f.batches[b.ID] = copyBatch(b)
	return b
}

func (f *fakeBatchRepo) CreateBatch(_ repositories.SQLExecutor, batch *models.Batch) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.batches {
		if existing.ItemID == batch.ItemID && existing.LotNumber == batch.LotNumber {
			return 0, repositories.ErrDuplicateKey
		}
	}
	batch.ID = f.nextID
	f.nextID++
	if batch.ReceivedDate.IsZero() {
		batch.ReceivedDate = time.Now()
	}
	f.batches[batch.ID] = copyBatch(batch)
	return batch.ID, nil
}

func (f *fakeBatchRepo) GetBatchByID(_ repositories.SQLExecutor, id int64) (*models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return copyBatch(b), nil
}

func (f *fakeBatchRepo) ListByItem(_ repositories.SQLExecutor, itemID int64) ([]models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []models.Batch{}
	for _, b := range f.batches {
		if b.ItemID == itemID {
			result = append(result, *copyBatch(b))
		}
	}
	// Soonest expiry first, nil expiries last, matching the SQL ordering.
	sort.Slice(result, func(i, j int) bool {
		bi, bj := result[i], result[j]
		switch {
		case bi.ExpiryDate == nil && bj.ExpiryDate == nil:
			return bi.ID < bj.ID
		case bi.ExpiryDate == nil:
			return false
		case bj.ExpiryDate == nil:
			return true
		case !bi.ExpiryDate.Equal(*bj.ExpiryDate):
			return bi.ExpiryDate.Before(*bj.ExpiryDate)
		default:
			return bi.ID < bj.ID
		}
	})
	return result, nil
}

func (f *fakeBatchRepo) AdjustReserved(_ repositories.SQLExecutor, batchID int64, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return repositories.ErrNotFound
	}
	if b.Reserved+delta < 0 || b.Reserved+delta > b.Quantity {
		return fmt.Errorf("%w: batch %d has quantity %d, reserved %d",
			repositories.ErrStockGuardFailed, batchID, b.Quantity, b.Reserved)
	}
	b.Reserved += delta
	return nil
}

func (f *fakeBatchRepo) ConsumeAllocation(_ repositories.SQLExecutor, batchID int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return repositories.ErrNotFound
	}
	if b.Reserved < qty || b.Quantity < qty {
		return fmt.Errorf("%w: batch %d has quantity %d, reserved %d",
			repositories.ErrStockGuardFailed, batchID, b.Quantity, b.Reserved)
	}
	b.Quantity -= qty
	b.Reserved -= qty
	if b.Quantity == 0 {
		b.Status = models.BatchStatusDepleted
	}
	return nil
}

func (f *fakeBatchRepo) ReduceQuantity(_ repositories.SQLExecutor, batchID int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return repositories.ErrNotFound
	}
	if b.Quantity-b.Reserved < qty {
		return fmt.Errorf("%w: batch %d has quantity %d, reserved %d",
			repositories.ErrStockGuardFailed, batchID, b.Quantity, b.Reserved)
	}
	b.Quantity -= qty
	if b.Quantity == 0 {
		b.Status = models.BatchStatusDepleted
	}
	return nil
}

func (f *fakeBatchRepo) RestoreQuantity(_ repositories.SQLExecutor, batchID int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return repositories.ErrNotFound
	}
	if b.Status != models.BatchStatusActive && b.Status != models.BatchStatusDepleted {
		return fmt.Errorf("%w: batch %d is %s", repositories.ErrStockGuardFailed, batchID, b.Status)
	}
	b.Quantity += qty
	if b.Status == models.BatchStatusDepleted {
		b.Status = models.BatchStatusActive
	}
	return nil
}

func (f *fakeBatchRepo) SetStatus(_ repositories.SQLExecutor, batchID int64, status models.BatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return repositories.ErrNotFound
	}
	if b.Status != models.BatchStatusActive {
		return fmt.Errorf("%w: batch %d is %s, not active", repositories.ErrStockGuardFailed, batchID, b.Status)
	}
	b.Status = status
	return nil
}

func (f *fakeBatchRepo) MarkExpired(_ repositories.SQLExecutor, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, b := range f.batches {
		if b.Status == models.BatchStatusActive && b.ExpiryDate != nil && !b.ExpiryDate.After(now) {
			b.Status = models.BatchStatusExpired
			count++
		}
	}
	return count, nil
}

// fakeReservationRepo

type fakeReservationRepo struct {
	mu           sync.Mutex
	reservations map[string]*models.Reservation
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{reservations: map[string]*models.Reservation{}}
}

func copyReservation(r *models.Reservation) *models.Reservation {
	c := *r
	c.Allocations = append([]models.ReservationAllocation(nil), r.Allocations...)
	return &c
}

func (f *fakeReservationRepo) snapshot() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := map[string]*models.Reservation{}
	for id, r := range f.reservations {
		snap[id] = copyReservation(r)
	}
	return snap
}

func (f *fakeReservationRepo) restore(s interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reservations = s.(map[string]*models.Reservation)
}

func (f *fakeReservationRepo) Create(_ repositories.SQLExecutor, res *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reservations[res.ID]; ok {
		return repositories.ErrDuplicateKey
	}
	f.reservations[res.ID] = copyReservation(res)
	return nil
}

func (f *fakeReservationRepo) GetByID(_ repositories.SQLExecutor, id string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return copyReservation(r), nil
}

func (f *fakeReservationRepo) MarkTerminal(_ repositories.SQLExecutor, id string, to models.ReservationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if r.Status != models.ReservationStatusActive {
		return fmt.Errorf("%w: reservation %s is already %s", repositories.ErrConcurrentModification, id, r.Status)
	}
	r.Status = to
	return nil
}

func (f *fakeReservationRepo) ListByItem(_ repositories.SQLExecutor, itemID int64) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []models.Reservation{}
	for _, r := range f.reservations {
		if r.ItemID == itemID {
			result = append(result, *copyReservation(r))
		}
	}
	return result, nil
}

func (f *fakeReservationRepo) ListExpiredActive(now time.Time, limit int) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []models.Reservation{}
	for _, r := range f.reservations {
		if r.Status == models.ReservationStatusActive && !r.ExpiresAt.After(now) {
			result = append(result, *copyReservation(r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExpiresAt.Before(result[j].ExpiresAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// fakeTransactionRepo

type fakeTransactionRepo struct {
	mu      sync.Mutex
	entries []models.StockTransaction
	nextID  int64
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{nextID: 1}
}

func (f *fakeTransactionRepo) snapshot() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.StockTransaction(nil), f.entries...)
}

func (f *fakeTransactionRepo) restore(s interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = s.([]models.StockTransaction)
	f.nextID = int64(len(f.entries)) + 1
}

func (f *fakeTransactionRepo) Append(_ repositories.SQLExecutor, entry *models.StockTransaction) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = f.nextID
	f.nextID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	f.entries = append(f.entries, *entry)
	return entry.ID, nil
}

func (f *fakeTransactionRepo) GetByItem(itemID int64, txType *string, page, pageSize int) ([]models.StockTransaction, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []models.StockTransaction{}
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.ItemID != itemID {
			continue
		}
		if txType != nil && *txType != "" && e.TxType != *txType {
			continue
		}
		result = append(result, e)
	}
	return result, len(result), nil
}

func (f *fakeTransactionRepo) LatestBalance(_ repositories.SQLExecutor, itemID int64) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].ItemID == itemID {
			return f.entries[i].BalanceAfter, true, nil
		}
	}
	return 0, false, nil
}

// byItem returns the item's entries oldest first for chain assertions.
func (f *fakeTransactionRepo) byItem(itemID int64) []models.StockTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []models.StockTransaction{}
	for _, e := range f.entries {
		if e.ItemID == itemID {
			result = append(result, e)
		}
	}
	return result
}

// fakeAlertRepo

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts []models.StockAlert
	nextID int64
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{nextID: 1}
}

func (f *fakeAlertRepo) snapshot() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.StockAlert(nil), f.alerts...)
}

func (f *fakeAlertRepo) restore(s interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = s.([]models.StockAlert)
}

func (f *fakeAlertRepo) EnsureUnresolved(_ repositories.SQLExecutor, alert *models.StockAlert) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.ItemID == alert.ItemID && a.AlertType == alert.AlertType && !a.Resolved {
			return false, nil
		}
	}
	alert.ID = f.nextID
	f.nextID++
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	f.alerts = append(f.alerts, *alert)
	return true, nil
}

func (f *fakeAlertRepo) ResolveByTypes(_ repositories.SQLExecutor, itemID int64, types []string, actor string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	count := 0
	for i := range f.alerts {
		a := &f.alerts[i]
		if a.ItemID != itemID || a.Resolved {
			continue
		}
		for _, t := range types {
			if a.AlertType == t {
				a.Resolved = true
				a.ResolvedBy = &actor
				a.ResolvedAt = &now
				count++
				break
			}
		}
	}
	return count, nil
}

func (f *fakeAlertRepo) Resolve(_ repositories.SQLExecutor, alertID int64, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i := range f.alerts {
		a := &f.alerts[i]
		if a.ID == alertID && !a.Resolved {
			a.Resolved = true
			a.ResolvedBy = &actor
			a.ResolvedAt = &now
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (f *fakeAlertRepo) ListByItem(itemID int64, includeResolved bool) ([]models.StockAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []models.StockAlert{}
	for _, a := range f.alerts {
		if a.ItemID == itemID && (includeResolved || !a.Resolved) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (f *fakeAlertRepo) ListUnresolved(clinicID *int64, page, pageSize int) ([]models.StockAlert, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []models.StockAlert{}
	for _, a := range f.alerts {
		if !a.Resolved {
			result = append(result, a)
		}
	}
	return result, len(result), nil
}

func (f *fakeAlertRepo) unresolvedOfType(itemID int64, alertType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, a := range f.alerts {
		if a.ItemID == itemID && a.AlertType == alertType && !a.Resolved {
			count++
		}
	}
	return count
}
