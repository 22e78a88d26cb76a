package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"eyeclinic_backend/internal/models"

	"github.com/lib/pq"
)

// StockLevels is the post-write snapshot returned by guarded adjustments.
type StockLevels struct {
	CurrentStock int
	Reserved     int
	Version      int64
}

// InventoryRepository defines the interface for inventory item database
// operations. All mutating methods take a SQLExecutor so services control
// transaction boundaries; every successful mutation bumps the item version.
type InventoryRepository interface {
	CreateItem(executor SQLExecutor, item *models.InventoryItem) (int64, error)
	GetItemByID(executor SQLExecutor, id int64) (*models.InventoryItem, error)
	GetItemBySKUAndClinic(executor SQLExecutor, sku string, clinicID int64) (*models.InventoryItem, error)
	GetItems(filters models.ItemFilters) ([]models.InventoryItem, int, error)
	UpdateItemDescriptive(executor SQLExecutor, item *models.InventoryItem) error
	SoftDeleteItem(executor SQLExecutor, id int64) error

	// AdjustStock applies delta to current_stock only when the result stays
	// at or above the reserved quantity (and therefore above zero).
	AdjustStock(executor SQLExecutor, itemID int64, delta int) (*StockLevels, error)
	// AdjustReserved applies delta to reserved only when 0 <= reserved+delta <= current_stock.
	AdjustReserved(executor SQLExecutor, itemID int64, delta int) (*StockLevels, error)
	// AdjustStockAndReserved applies both deltas in one conditional write,
	// used when a fulfilled hold converts into a real decrement.
	AdjustStockAndReserved(executor SQLExecutor, itemID int64, stockDelta, reservedDelta int) (*StockLevels, error)
	// BumpVersion is a compare-and-swap on the version token, serializing
	// multi-statement mutations against concurrent writers.
	BumpVersion(executor SQLExecutor, itemID, expectedVersion int64) error
	SetDerivedStatus(executor SQLExecutor, itemID int64, status models.StockStatus) error
}

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository creates a new instance of InventoryRepository.
func NewInventoryRepository(db *sql.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

const itemColumns = `id, clinic_id, sku, barcode, name, item_type, description,
	current_stock, reserved, minimum_stock, reorder_point, maximum_stock, on_order,
	cost_price, sale_price, status, tracks_batches, discontinued, is_active,
	version, attributes, created_at, updated_at`

func (r *inventoryRepository) executorOrDB(executor SQLExecutor) SQLExecutor {
	if executor != nil {
		return executor
	}
	return r.db
}

func (r *inventoryRepository) CreateItem(executor SQLExecutor, item *models.InventoryItem) (int64, error) {
	attributes, err := models.EncodeItemDetails(item.Details)
	if err != nil {
		return 0, fmt.Errorf("%w: encoding item attributes: %v", ErrDatabaseError, err)
	}

	query := `INSERT INTO inventory_items
	          (clinic_id, sku, barcode, name, item_type, description,
	           current_stock, reserved, minimum_stock, reorder_point, maximum_stock, on_order,
	           cost_price, sale_price, status, tracks_batches, discontinued, is_active,
	           version, attributes, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1, $19, $20, $21)
	          RETURNING id`
	currentTime := time.Now()
	err = r.executorOrDB(executor).QueryRow(query,
		item.ClinicID, item.SKU, item.Barcode, item.Name, item.ItemType, item.Description,
		item.CurrentStock, item.Reserved, item.MinimumStock, item.ReorderPoint, item.MaximumStock, item.OnOrder,
		item.CostPrice, item.SalePrice, item.Status, item.TracksBatches, item.Discontinued, item.IsActive,
		attributes, currentTime, currentTime,
	).Scan(&item.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return 0, fmt.Errorf("%w: item sku '%s' already exists at clinic %d (constraint: %s)",
				ErrDuplicateKey, item.SKU, item.ClinicID, pqErr.Constraint)
		}
		return 0, fmt.Errorf("%w: creating inventory item: %v", ErrDatabaseError, err)
	}
	item.Version = 1
	item.CreatedAt = currentTime
	item.UpdatedAt = currentTime
	return item.ID, nil
}

func scanItem(row scanner) (*models.InventoryItem, error) {
	item := &models.InventoryItem{}
	var attributes []byte
	err := row.Scan(
		&item.ID, &item.ClinicID, &item.SKU, &item.Barcode, &item.Name, &item.ItemType, &item.Description,
		&item.CurrentStock, &item.Reserved, &item.MinimumStock, &item.ReorderPoint, &item.MaximumStock, &item.OnOrder,
		&item.CostPrice, &item.SalePrice, &item.Status, &item.TracksBatches, &item.Discontinued, &item.IsActive,
		&item.Version, &attributes, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	details, err := models.DecodeItemDetails(item.ItemType, attributes)
	if err != nil {
		return nil, err
	}
	item.Details = details
	return item, nil
}

func (r *inventoryRepository) GetItemByID(executor SQLExecutor, id int64) (*models.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE id = $1`
	item, err := scanItem(r.executorOrDB(executor).QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting inventory item by ID %d: %v", ErrDatabaseError, id, err)
	}
	return item, nil
}

func (r *inventoryRepository) GetItemBySKUAndClinic(executor SQLExecutor, sku string, clinicID int64) (*models.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE sku = $1 AND clinic_id = $2`
	item, err := scanItem(r.executorOrDB(executor).QueryRow(query, sku, clinicID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting inventory item sku %s at clinic %d: %v", ErrDatabaseError, sku, clinicID, err)
	}
	return item, nil
}

func (r *inventoryRepository) GetItems(filters models.ItemFilters) ([]models.InventoryItem, int, error) {
	items := []models.InventoryItem{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + itemColumns + `, COUNT(*) OVER() AS total_count FROM inventory_items`)

	conditions := []string{"is_active = TRUE"}
	var args []interface{}
	argCount := 1

	if filters.ClinicID != nil {
		conditions = append(conditions, fmt.Sprintf("clinic_id = $%d", argCount))
		args = append(args, *filters.ClinicID)
		argCount++
	}
	if filters.ItemType != nil {
		conditions = append(conditions, fmt.Sprintf("item_type = $%d", argCount))
		args = append(args, *filters.ItemType)
		argCount++
	}
	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filters.Status)
		argCount++
	}

	queryBuilder.WriteString(" WHERE ")
	queryBuilder.WriteString(strings.Join(conditions, " AND "))
	queryBuilder.WriteString(" ORDER BY name")

	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.Query(queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: getting inventory items: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		item := models.InventoryItem{}
		var attributes []byte
		if err := rows.Scan(
			&item.ID, &item.ClinicID, &item.SKU, &item.Barcode, &item.Name, &item.ItemType, &item.Description,
			&item.CurrentStock, &item.Reserved, &item.MinimumStock, &item.ReorderPoint, &item.MaximumStock, &item.OnOrder,
			&item.CostPrice, &item.SalePrice, &item.Status, &item.TracksBatches, &item.Discontinued, &item.IsActive,
			&item.Version, &attributes, &item.CreatedAt, &item.UpdatedAt, &totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning inventory item: %v", ErrDatabaseError, err)
		}
		details, err := models.DecodeItemDetails(item.ItemType, attributes)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: decoding item %d attributes: %v", ErrDatabaseError, item.ID, err)
		}
		item.Details = details
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating inventory items: %v", ErrDatabaseError, err)
	}
	return items, totalCount, nil
}

// UpdateItemDescriptive updates descriptive fields and thresholds. Stock
// numbers, type and sku are deliberately not touched here; quantities change
// only through the guarded adjustment methods.
func (r *inventoryRepository) UpdateItemDescriptive(executor SQLExecutor, item *models.InventoryItem) error {
	attributes, err := models.EncodeItemDetails(item.Details)
	if err != nil {
		return fmt.Errorf("%w: encoding item attributes: %v", ErrDatabaseError, err)
	}

	query := `UPDATE inventory_items SET
	          name = $1, barcode = $2, description = $3,
	          minimum_stock = $4, reorder_point = $5, maximum_stock = $6, on_order = $7,
	          cost_price = $8, sale_price = $9, discontinued = $10, attributes = $11,
	          version = version + 1, updated_at = $12
	          WHERE id = $13 AND is_active = TRUE`
	result, err := r.executorOrDB(executor).Exec(query,
		item.Name, item.Barcode, item.Description,
		item.MinimumStock, item.ReorderPoint, item.MaximumStock, item.OnOrder,
		item.CostPrice, item.SalePrice, item.Discontinued, attributes,
		time.Now(), item.ID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("%w: barcode already in use (constraint: %s)", ErrDuplicateKey, pqErr.Constraint)
		}
		return fmt.Errorf("%w: updating inventory item ID %d: %v", ErrDatabaseError, item.ID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *inventoryRepository) SoftDeleteItem(executor SQLExecutor, id int64) error {
	query := `UPDATE inventory_items SET is_active = FALSE, version = version + 1, updated_at = $1
	          WHERE id = $2 AND is_active = TRUE AND reserved = 0`
	result, err := r.executorOrDB(executor).Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("%w: soft-deleting inventory item ID %d: %v", ErrDatabaseError, id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		// Either absent or still holding reservations; let the caller decide.
		var reserved int
		checkErr := r.db.QueryRow("SELECT reserved FROM inventory_items WHERE id = $1 AND is_active = TRUE", id).Scan(&reserved)
		if errors.Is(checkErr, sql.ErrNoRows) {
			return ErrNotFound
		}
		if checkErr == nil && reserved > 0 {
			return fmt.Errorf("%w: item ID %d has %d reserved units", ErrStockGuardFailed, id, reserved)
		}
		return ErrNotFound
	}
	return nil
}

// guardedAdjust runs one conditional UPDATE and disambiguates a zero-row
// result into ErrNotFound vs ErrStockGuardFailed.
func (r *inventoryRepository) guardedAdjust(executor SQLExecutor, itemID int64, query string, args ...interface{}) (*StockLevels, error) {
	levels := &StockLevels{}
	err := r.executorOrDB(executor).QueryRow(query, args...).Scan(&levels.CurrentStock, &levels.Reserved, &levels.Version)
	if err == nil {
		return levels, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: adjusting stock for item ID %d: %v", ErrDatabaseError, itemID, err)
	}
	var current, reserved int
	checkErr := r.db.QueryRow("SELECT current_stock, reserved FROM inventory_items WHERE id = $1 AND is_active = TRUE", itemID).
		Scan(&current, &reserved)
	if errors.Is(checkErr, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if checkErr != nil {
		return nil, fmt.Errorf("%w: checking item ID %d after failed guard: %v", ErrDatabaseError, itemID, checkErr)
	}
	return nil, fmt.Errorf("%w: item ID %d has stock %d, reserved %d", ErrStockGuardFailed, itemID, current, reserved)
}

func (r *inventoryRepository) AdjustStock(executor SQLExecutor, itemID int64, delta int) (*StockLevels, error) {
	query := `UPDATE inventory_items
	          SET current_stock = current_stock + $1, version = version + 1, updated_at = $2
	          WHERE id = $3 AND is_active = TRUE AND current_stock + $1 >= reserved
	          RETURNING current_stock, reserved, version`
	return r.guardedAdjust(executor, itemID, query, delta, time.Now(), itemID)
}

func (r *inventoryRepository) AdjustReserved(executor SQLExecutor, itemID int64, delta int) (*StockLevels, error) {
	query := `UPDATE inventory_items
	          SET reserved = reserved + $1, version = version + 1, updated_at = $2
	          WHERE id = $3 AND is_active = TRUE
	            AND reserved + $1 >= 0 AND reserved + $1 <= current_stock
	          RETURNING current_stock, reserved, version`
	return r.guardedAdjust(executor, itemID, query, delta, time.Now(), itemID)
}

func (r *inventoryRepository) AdjustStockAndReserved(executor SQLExecutor, itemID int64, stockDelta, reservedDelta int) (*StockLevels, error) {
	query := `UPDATE inventory_items
	          SET current_stock = current_stock + $1, reserved = reserved + $2,
	              version = version + 1, updated_at = $3
	          WHERE id = $4 AND is_active = TRUE
	            AND current_stock + $1 >= 0
	            AND reserved + $2 >= 0
	            AND reserved + $2 <= current_stock + $1
	          RETURNING current_stock, reserved, version`
	return r.guardedAdjust(executor, itemID, query, stockDelta, reservedDelta, time.Now(), itemID)
}

func (r *inventoryRepository) BumpVersion(executor SQLExecutor, itemID, expectedVersion int64) error {
	query := `UPDATE inventory_items SET version = version + 1, updated_at = $1
	          WHERE id = $2 AND version = $3`
	result, err := r.executorOrDB(executor).Exec(query, time.Now(), itemID, expectedVersion)
	if err != nil {
		return fmt.Errorf("%w: bumping version for item ID %d: %v", ErrDatabaseError, itemID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		var exists bool
		checkErr := r.db.QueryRow("SELECT TRUE FROM inventory_items WHERE id = $1", itemID).Scan(&exists)
		if errors.Is(checkErr, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: item ID %d expected version %d", ErrConcurrentModification, itemID, expectedVersion)
	}
	return nil
}

// SetDerivedStatus writes the recomputed status without bumping the version:
// status is derived state, not a caller mutation.
func (r *inventoryRepository) SetDerivedStatus(executor SQLExecutor, itemID int64, status models.StockStatus) error {
	result, err := r.executorOrDB(executor).Exec(
		`UPDATE inventory_items SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), itemID,
	)
	if err != nil {
		return fmt.Errorf("%w: setting status for item ID %d: %v", ErrDatabaseError, itemID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
