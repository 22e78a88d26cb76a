package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"eyeclinic_backend/internal/models"
)

// ReportRepository serves the read-only reporting queries. Nothing here ever
// mutates.
type ReportRepository interface {
	Valuation(clinicID *int64) ([]models.ValuationLine, error)
	LowStock(clinicID *int64) ([]models.LowStockLine, error)
	ExpiringBatches(clinicID *int64, within time.Duration) ([]models.ExpiringBatchLine, error)
}

type reportRepository struct {
	db *sql.DB
}

// NewReportRepository creates a new instance of ReportRepository.
func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Valuation(clinicID *int64) ([]models.ValuationLine, error) {
	query := `SELECT item_type, COUNT(*), COALESCE(SUM(current_stock), 0),
	                 COALESCE(SUM(current_stock * cost_price), 0),
	                 COALESCE(SUM(current_stock * sale_price), 0)
	          FROM inventory_items
	          WHERE is_active = TRUE`
	var args []interface{}
	if clinicID != nil {
		query += " AND clinic_id = $1"
		args = append(args, *clinicID)
	}
	query += " GROUP BY item_type ORDER BY item_type"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: running valuation report: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	lines := []models.ValuationLine{}
	for rows.Next() {
		var line models.ValuationLine
		if err := rows.Scan(&line.ItemType, &line.ItemCount, &line.TotalUnits, &line.CostValue, &line.RetailValue); err != nil {
			return nil, fmt.Errorf("%w: scanning valuation line: %v", ErrDatabaseError, err)
		}
		lines = append(lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating valuation lines: %v", ErrDatabaseError, err)
	}
	return lines, nil
}

func (r *reportRepository) LowStock(clinicID *int64) ([]models.LowStockLine, error) {
	query := `SELECT id, clinic_id, sku, name, item_type, current_stock, reserved,
	                 reorder_point, minimum_stock, on_order
	          FROM inventory_items
	          WHERE is_active = TRUE AND discontinued = FALSE
	            AND current_stock <= reorder_point`
	var args []interface{}
	if clinicID != nil {
		query += " AND clinic_id = $1"
		args = append(args, *clinicID)
	}
	query += " ORDER BY current_stock - reorder_point ASC, name"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: running low-stock report: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	lines := []models.LowStockLine{}
	for rows.Next() {
		var line models.LowStockLine
		if err := rows.Scan(
			&line.ItemID, &line.ClinicID, &line.SKU, &line.Name, &line.ItemType,
			&line.CurrentStock, &line.Reserved, &line.ReorderPoint, &line.MinimumStock, &line.OnOrder,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning low-stock line: %v", ErrDatabaseError, err)
		}
		lines = append(lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating low-stock lines: %v", ErrDatabaseError, err)
	}
	return lines, nil
}

func (r *reportRepository) ExpiringBatches(clinicID *int64, within time.Duration) ([]models.ExpiringBatchLine, error) {
	now := time.Now()
	query := `SELECT b.id, b.item_id, i.clinic_id, i.sku, i.name, b.lot_number, b.quantity, b.expiry_date
	          FROM inventory_batches b
	          JOIN inventory_items i ON b.item_id = i.id
	          WHERE b.status = 'active' AND b.quantity > 0
	            AND b.expiry_date IS NOT NULL AND b.expiry_date <= $1
	            AND i.is_active = TRUE`
	args := []interface{}{now.Add(within)}
	if clinicID != nil {
		query += " AND i.clinic_id = $2"
		args = append(args, *clinicID)
	}
	query += " ORDER BY b.expiry_date ASC, i.name"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: running expiring-lots report: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	lines := []models.ExpiringBatchLine{}
	for rows.Next() {
		var line models.ExpiringBatchLine
		if err := rows.Scan(
			&line.BatchID, &line.ItemID, &line.ClinicID, &line.SKU, &line.Name,
			&line.LotNumber, &line.Quantity, &line.ExpiryDate,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning expiring-lot line: %v", ErrDatabaseError, err)
		}
		line.DaysLeft = int(time.Until(line.ExpiryDate).Hours() / 24)
		lines = append(lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating expiring-lot lines: %v", ErrDatabaseError, err)
	}
	return lines, nil
}
