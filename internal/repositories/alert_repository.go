package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eyeclinic_backend/internal/models"

	"github.com/lib/pq"
)

// AlertRepository defines the interface for stock alert database operations.
type AlertRepository interface {
	// EnsureUnresolved inserts the alert unless an unresolved alert of the
	// same type already exists for the item. Returns true when a row was
	// created.
	EnsureUnresolved(executor SQLExecutor, alert *models.StockAlert) (bool, error)
	// ResolveByTypes resolves any unresolved alerts of the given types for
	// the item, recording actor and timestamp. Returns the number resolved.
	ResolveByTypes(executor SQLExecutor, itemID int64, types []string, actor string) (int, error)
	Resolve(executor SQLExecutor, alertID int64, actor string) error
	ListByItem(itemID int64, includeResolved bool) ([]models.StockAlert, error)
	ListUnresolved(clinicID *int64, page, pageSize int) ([]models.StockAlert, int, error)
}

type alertRepository struct {
	db *sql.DB
}

// NewAlertRepository creates a new instance of AlertRepository.
func NewAlertRepository(db *sql.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) executorOrDB(executor SQLExecutor) SQLExecutor {
	if executor != nil {
		return executor
	}
	return r.db
}

func (r *alertRepository) EnsureUnresolved(executor SQLExecutor, alert *models.StockAlert) (bool, error) {
	query := `INSERT INTO stock_alerts (item_id, alert_type, severity, message, resolved, created_at)
	          SELECT $1, $2, $3, $4, FALSE, $5
	          WHERE NOT EXISTS (
	              SELECT 1 FROM stock_alerts
	              WHERE item_id = $1 AND alert_type = $2 AND resolved = FALSE
	          )
	          RETURNING id`
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	err := r.executorOrDB(executor).QueryRow(query,
		alert.ItemID, alert.AlertType, alert.Severity, alert.Message, alert.CreatedAt,
	).Scan(&alert.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// An unresolved alert of this type already exists.
			return false, nil
		}
		return false, fmt.Errorf("%w: ensuring alert for item %d: %v", ErrDatabaseError, alert.ItemID, err)
	}
	return true, nil
}

func (r *alertRepository) ResolveByTypes(executor SQLExecutor, itemID int64, types []string, actor string) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}
	query := `UPDATE stock_alerts SET resolved = TRUE, resolved_by = $1, resolved_at = $2
	          WHERE item_id = $3 AND resolved = FALSE AND alert_type = ANY($4)`
	result, err := r.executorOrDB(executor).Exec(query, actor, time.Now(), itemID, pq.Array(types))
	if err != nil {
		return 0, fmt.Errorf("%w: resolving alerts for item %d: %v", ErrDatabaseError, itemID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	return int(rowsAffected), nil
}

func (r *alertRepository) Resolve(executor SQLExecutor, alertID int64, actor string) error {
	query := `UPDATE stock_alerts SET resolved = TRUE, resolved_by = $1, resolved_at = $2
	          WHERE id = $3 AND resolved = FALSE`
	result, err := r.executorOrDB(executor).Exec(query, actor, time.Now(), alertID)
	if err != nil {
		return fmt.Errorf("%w: resolving alert %d: %v", ErrDatabaseError, alertID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *alertRepository) ListByItem(itemID int64, includeResolved bool) ([]models.StockAlert, error) {
	query := `SELECT id, item_id, alert_type, severity, message, resolved, resolved_by, resolved_at, created_at
	          FROM stock_alerts WHERE item_id = $1`
	if !includeResolved {
		query += " AND resolved = FALSE"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(query, itemID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing alerts for item %d: %v", ErrDatabaseError, itemID, err)
	}
	defer rows.Close()
	return scanAlerts(rows, nil)
}

func (r *alertRepository) ListUnresolved(clinicID *int64, page, pageSize int) ([]models.StockAlert, int, error) {
	query := `SELECT sa.id, sa.item_id, sa.alert_type, sa.severity, sa.message,
	                 sa.resolved, sa.resolved_by, sa.resolved_at, sa.created_at,
	                 COUNT(*) OVER() AS total_count
	          FROM stock_alerts sa
	          JOIN inventory_items ii ON sa.item_id = ii.id
	          WHERE sa.resolved = FALSE`
	var args []interface{}
	if clinicID != nil {
		query += " AND ii.clinic_id = $1"
		args = append(args, *clinicID)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	query += fmt.Sprintf(" ORDER BY sa.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: listing unresolved alerts: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	totalCount := 0
	alerts, err := scanAlerts(rows, &totalCount)
	if err != nil {
		return nil, 0, err
	}
	return alerts, totalCount, nil
}

func scanAlerts(rows *sql.Rows, totalCount *int) ([]models.StockAlert, error) {
	alerts := []models.StockAlert{}
	for rows.Next() {
		var alert models.StockAlert
		dest := []interface{}{
			&alert.ID, &alert.ItemID, &alert.AlertType, &alert.Severity, &alert.Message,
			&alert.Resolved, &alert.ResolvedBy, &alert.ResolvedAt, &alert.CreatedAt,
		}
		if totalCount != nil {
			dest = append(dest, totalCount)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scanning alert: %v", ErrDatabaseError, err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating alerts: %v", ErrDatabaseError, err)
	}
	return alerts, nil
}
