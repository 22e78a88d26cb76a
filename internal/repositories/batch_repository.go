package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eyeclinic_backend/internal/models"

	"github.com/lib/pq"
)

// BatchRepository defines the interface for batch (lot) database operations.
type BatchRepository interface {
	CreateBatch(executor SQLExecutor, batch *models.Batch) (int64, error)
	GetBatchByID(executor SQLExecutor, id int64) (*models.Batch, error)
	ListByItem(executor SQLExecutor, itemID int64) ([]models.Batch, error)

	// AdjustReserved applies delta to the lot's reserved portion only when
	// 0 <= reserved+delta <= quantity.
	AdjustReserved(executor SQLExecutor, batchID int64, delta int) error
	// ConsumeAllocation deducts qty from both quantity and reserved, marking
	// the lot depleted when it reaches zero. Succeeds only when the lot holds
	// at least qty reserved units.
	ConsumeAllocation(executor SQLExecutor, batchID int64, qty int) error
	// ReduceQuantity deducts qty from the unreserved portion of the lot,
	// marking it depleted at zero. Used by direct (non-reservation) stock
	// decrements and transfer debits.
	ReduceQuantity(executor SQLExecutor, batchID int64, qty int) error
	// RestoreQuantity adds qty back to a lot, reactivating a depleted lot.
	// Compensation-only; expired, quarantined and recalled lots stay terminal.
	RestoreQuantity(executor SQLExecutor, batchID int64, qty int) error
	// SetStatus moves an active lot to a terminal status (expired,
	// quarantined, recalled). Terminal lots are never reactivated.
	SetStatus(executor SQLExecutor, batchID int64, status models.BatchStatus) error
	// MarkExpired flips every active lot whose expiry has passed. Returns the
	// number of lots transitioned.
	MarkExpired(executor SQLExecutor, now time.Time) (int, error)
}

type batchRepository struct {
	db *sql.DB
}

// NewBatchRepository creates a new instance of BatchRepository.
func NewBatchRepository(db *sql.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) executorOrDB(executor SQLExecutor) SQLExecutor {
	if executor != nil {
		return executor
	}
	return r.db
}

const batchColumns = `id, item_id, lot_number, quantity, reserved, received_date, expiry_date, status, created_at, updated_at`

func (r *batchRepository) CreateBatch(executor SQLExecutor, batch *models.Batch) (int64, error) {
	query := `INSERT INTO inventory_batches
	          (item_id, lot_number, quantity, reserved, received_date, expiry_date, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          RETURNING id`
	currentTime := time.Now()
	if batch.ReceivedDate.IsZero() {
		batch.ReceivedDate = currentTime
	}
	err := r.executorOrDB(executor).QueryRow(query,
		batch.ItemID, batch.LotNumber, batch.Quantity, batch.Reserved,
		batch.ReceivedDate, batch.ExpiryDate, batch.Status, currentTime, currentTime,
	).Scan(&batch.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			if pqErr.Code.Name() == "unique_violation" {
				return 0, fmt.Errorf("%w: lot number '%s' already exists for item %d (constraint: %s)",
					ErrDuplicateKey, batch.LotNumber, batch.ItemID, pqErr.Constraint)
			}
			if pqErr.Code.Name() == "foreign_key_violation" {
				return 0, fmt.Errorf("%w: item ID %d does not exist", ErrNotFound, batch.ItemID)
			}
		}
		return 0, fmt.Errorf("%w: creating batch: %v", ErrDatabaseError, err)
	}
	return batch.ID, nil
}

func (r *batchRepository) GetBatchByID(executor SQLExecutor, id int64) (*models.Batch, error) {
	batch := &models.Batch{}
	query := `SELECT ` + batchColumns + ` FROM inventory_batches WHERE id = $1`
	err := r.executorOrDB(executor).QueryRow(query, id).Scan(
		&batch.ID, &batch.ItemID, &batch.LotNumber, &batch.Quantity, &batch.Reserved,
		&batch.ReceivedDate, &batch.ExpiryDate, &batch.Status, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting batch by ID %d: %v", ErrDatabaseError, id, err)
	}
	return batch, nil
}

func (r *batchRepository) ListByItem(executor SQLExecutor, itemID int64) ([]models.Batch, error) {
	// Soonest expiry first; NULL expiries (non-perishables) sort last.
	query := `SELECT ` + batchColumns + ` FROM inventory_batches
	          WHERE item_id = $1
	          ORDER BY expiry_date ASC NULLS LAST, received_date ASC, id ASC`
	rows, err := r.executorOrDB(executor).Query(query, itemID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing batches for item %d: %v", ErrDatabaseError, itemID, err)
	}
	defer rows.Close()

	batches := []models.Batch{}
	for rows.Next() {
		var batch models.Batch
		if err := rows.Scan(
			&batch.ID, &batch.ItemID, &batch.LotNumber, &batch.Quantity, &batch.Reserved,
			&batch.ReceivedDate, &batch.ExpiryDate, &batch.Status, &batch.CreatedAt, &batch.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning batch: %v", ErrDatabaseError, err)
		}
		batches = append(batches, batch)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating batches: %v", ErrDatabaseError, err)
	}
	return batches, nil
}

func (r *batchRepository) AdjustReserved(executor SQLExecutor, batchID int64, delta int) error {
	query := `UPDATE inventory_batches
	          SET reserved = reserved + $1, updated_at = $2
	          WHERE id = $3 AND reserved + $1 >= 0 AND reserved + $1 <= quantity
	          RETURNING id`
	var id int64
	err := r.executorOrDB(executor).QueryRow(query, delta, time.Now(), batchID).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: adjusting reserved for batch %d: %v", ErrDatabaseError, batchID, err)
	}
	return r.disambiguateGuard(batchID)
}

func (r *batchRepository) ConsumeAllocation(executor SQLExecutor, batchID int64, qty int) error {
	query := `UPDATE inventory_batches
	          SET quantity = quantity - $1, reserved = reserved - $1,
	              status = CASE WHEN quantity - $1 = 0 THEN 'depleted' ELSE status END,
	              updated_at = $2
	          WHERE id = $3 AND reserved >= $1 AND quantity >= $1
	          RETURNING id`
	var id int64
	err := r.executorOrDB(executor).QueryRow(query, qty, time.Now(), batchID).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: consuming allocation on batch %d: %v", ErrDatabaseError, batchID, err)
	}
	return r.disambiguateGuard(batchID)
}

func (r *batchRepository) ReduceQuantity(executor SQLExecutor, batchID int64, qty int) error {
	query := `UPDATE inventory_batches
	          SET quantity = quantity - $1,
	              status = CASE WHEN quantity - $1 = 0 THEN 'depleted' ELSE status END,
	              updated_at = $2
	          WHERE id = $3 AND quantity - reserved >= $1
	          RETURNING id`
	var id int64
	err := r.executorOrDB(executor).QueryRow(query, qty, time.Now(), batchID).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: reducing quantity on batch %d: %v", ErrDatabaseError, batchID, err)
	}
	return r.disambiguateGuard(batchID)
}

func (r *batchRepository) RestoreQuantity(executor SQLExecutor, batchID int64, qty int) error {
	query := `UPDATE inventory_batches
	          SET quantity = quantity + $1,
	              status = CASE WHEN status = 'depleted' THEN 'active' ELSE status END,
	              updated_at = $2
	          WHERE id = $3 AND status IN ('active', 'depleted')
	          RETURNING id`
	var id int64
	err := r.executorOrDB(executor).QueryRow(query, qty, time.Now(), batchID).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: restoring quantity on batch %d: %v", ErrDatabaseError, batchID, err)
	}
	return r.disambiguateGuard(batchID)
}

func (r *batchRepository) SetStatus(executor SQLExecutor, batchID int64, status models.BatchStatus) error {
	query := `UPDATE inventory_batches SET status = $1, updated_at = $2
	          WHERE id = $3 AND status = 'active'`
	result, err := r.executorOrDB(executor).Exec(query, status, time.Now(), batchID)
	if err != nil {
		return fmt.Errorf("%w: setting status for batch %d: %v", ErrDatabaseError, batchID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		var current models.BatchStatus
		checkErr := r.db.QueryRow("SELECT status FROM inventory_batches WHERE id = $1", batchID).Scan(&current)
		if errors.Is(checkErr, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: batch %d is %s, not active", ErrStockGuardFailed, batchID, current)
	}
	return nil
}

func (r *batchRepository) MarkExpired(executor SQLExecutor, now time.Time) (int, error) {
	query := `UPDATE inventory_batches SET status = 'expired', updated_at = $1
	          WHERE status = 'active' AND expiry_date IS NOT NULL AND expiry_date <= $2`
	result, err := r.executorOrDB(executor).Exec(query, now, now)
	if err != nil {
		return 0, fmt.Errorf("%w: marking expired batches: %v", ErrDatabaseError, err)
	}
	rowsAffected, _ := result.RowsAffected()
	return int(rowsAffected), nil
}

func (r *batchRepository) disambiguateGuard(batchID int64) error {
	var quantity, reserved int
	checkErr := r.db.QueryRow("SELECT quantity, reserved FROM inventory_batches WHERE id = $1", batchID).
		Scan(&quantity, &reserved)
	if errors.Is(checkErr, sql.ErrNoRows) {
		return ErrNotFound
	}
	if checkErr != nil {
		return fmt.Errorf("%w: checking batch %d after failed guard: %v", ErrDatabaseError, batchID, checkErr)
	}
	return fmt.Errorf("%w: batch %d has quantity %d, reserved %d", ErrStockGuardFailed, batchID, quantity, reserved)
}
