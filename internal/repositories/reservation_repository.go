package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eyeclinic_backend/internal/models"

	"github.com/lib/pq"
)

// ReservationRepository defines the interface for reservation database
// operations. A reservation row and its allocation rows are always written
// together inside the caller's transaction.
type ReservationRepository interface {
	Create(executor SQLExecutor, res *models.Reservation) error
	GetByID(executor SQLExecutor, id string) (*models.Reservation, error)
	// MarkTerminal transitions an active reservation to a terminal status.
	// The write is conditional on status = 'active', so the second of two
	// racing terminations loses with ErrConcurrentModification.
	MarkTerminal(executor SQLExecutor, id string, to models.ReservationStatus) error
	ListByItem(executor SQLExecutor, itemID int64) ([]models.Reservation, error)
	// ListExpiredActive returns active reservations whose expiry has passed,
	// oldest first, for the external sweep scheduler.
	ListExpiredActive(now time.Time, limit int) ([]models.Reservation, error)
}

type reservationRepository struct {
	db *sql.DB
}

// NewReservationRepository creates a new instance of ReservationRepository.
func NewReservationRepository(db *sql.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) executorOrDB(executor SQLExecutor) SQLExecutor {
	if executor != nil {
		return executor
	}
	return r.db
}

func (r *reservationRepository) Create(executor SQLExecutor, res *models.Reservation) error {
	exec := r.executorOrDB(executor)
	currentTime := time.Now()
	query := `INSERT INTO reservations
	          (id, item_id, kind, reference, quantity, status, expires_at, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := exec.Exec(query,
		res.ID, res.ItemID, res.Kind, res.Reference, res.Quantity, res.Status,
		res.ExpiresAt, currentTime, currentTime,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("%w: reservation %s already exists", ErrDuplicateKey, res.ID)
		}
		return fmt.Errorf("%w: creating reservation: %v", ErrDatabaseError, err)
	}

	for _, alloc := range res.Allocations {
		_, err := exec.Exec(
			`INSERT INTO reservation_allocations (reservation_id, batch_id, lot_number, quantity)
			 VALUES ($1, $2, $3, $4)`,
			res.ID, alloc.BatchID, alloc.LotNumber, alloc.Quantity,
		)
		if err != nil {
			return fmt.Errorf("%w: creating reservation allocation: %v", ErrDatabaseError, err)
		}
	}
	res.CreatedAt = currentTime
	res.UpdatedAt = currentTime
	return nil
}

func (r *reservationRepository) GetByID(executor SQLExecutor, id string) (*models.Reservation, error) {
	exec := r.executorOrDB(executor)
	res := &models.Reservation{}
	query := `SELECT id, item_id, kind, reference, quantity, status, expires_at, created_at, updated_at
	          FROM reservations WHERE id = $1`
	err := exec.QueryRow(query, id).Scan(
		&res.ID, &res.ItemID, &res.Kind, &res.Reference, &res.Quantity, &res.Status,
		&res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting reservation %s: %v", ErrDatabaseError, id, err)
	}

	allocs, err := r.loadAllocations(exec, id)
	if err != nil {
		return nil, err
	}
	res.Allocations = allocs
	return res, nil
}

func (r *reservationRepository) loadAllocations(exec SQLExecutor, reservationID string) ([]models.ReservationAllocation, error) {
	rows, err := exec.Query(
		`SELECT batch_id, lot_number, quantity FROM reservation_allocations
		 WHERE reservation_id = $1 ORDER BY batch_id`,
		reservationID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: loading allocations for reservation %s: %v", ErrDatabaseError, reservationID, err)
	}
	defer rows.Close()

	allocs := []models.ReservationAllocation{}
	for rows.Next() {
		var alloc models.ReservationAllocation
		if err := rows.Scan(&alloc.BatchID, &alloc.LotNumber, &alloc.Quantity); err != nil {
			return nil, fmt.Errorf("%w: scanning reservation allocation: %v", ErrDatabaseError, err)
		}
		allocs = append(allocs, alloc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating reservation allocations: %v", ErrDatabaseError, err)
	}
	return allocs, nil
}

func (r *reservationRepository) MarkTerminal(executor SQLExecutor, id string, to models.ReservationStatus) error {
	if !to.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal reservation status", ErrDatabaseError, to)
	}
	query := `UPDATE reservations SET status = $1, updated_at = $2
	          WHERE id = $3 AND status = 'active'`
	result, err := r.executorOrDB(executor).Exec(query, to, time.Now(), id)
	if err != nil {
		return fmt.Errorf("%w: marking reservation %s %s: %v", ErrDatabaseError, id, to, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		var current models.ReservationStatus
		checkErr := r.db.QueryRow("SELECT status FROM reservations WHERE id = $1", id).Scan(&current)
		if errors.Is(checkErr, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: reservation %s is already %s", ErrConcurrentModification, id, current)
	}
	return nil
}

func (r *reservationRepository) ListByItem(executor SQLExecutor, itemID int64) ([]models.Reservation, error) {
	exec := r.executorOrDB(executor)
	rows, err := exec.Query(
		`SELECT id, item_id, kind, reference, quantity, status, expires_at, created_at, updated_at
		 FROM reservations WHERE item_id = $1 ORDER BY created_at DESC`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing reservations for item %d: %v", ErrDatabaseError, itemID, err)
	}
	defer rows.Close()

	reservations := []models.Reservation{}
	for rows.Next() {
		var res models.Reservation
		if err := rows.Scan(
			&res.ID, &res.ItemID, &res.Kind, &res.Reference, &res.Quantity, &res.Status,
			&res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning reservation: %v", ErrDatabaseError, err)
		}
		reservations = append(reservations, res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating reservations: %v", ErrDatabaseError, err)
	}

	for i := range reservations {
		allocs, err := r.loadAllocations(exec, reservations[i].ID)
		if err != nil {
			return nil, err
		}
		reservations[i].Allocations = allocs
	}
	return reservations, nil
}

func (r *reservationRepository) ListExpiredActive(now time.Time, limit int) ([]models.Reservation, error) {
	rows, err := r.db.Query(
		`SELECT id, item_id, kind, reference, quantity, status, expires_at, created_at, updated_at
		 FROM reservations
		 WHERE status = 'active' AND expires_at <= $1
		 ORDER BY expires_at ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing expired reservations: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	reservations := []models.Reservation{}
	for rows.Next() {
		var res models.Reservation
		if err := rows.Scan(
			&res.ID, &res.ItemID, &res.Kind, &res.Reference, &res.Quantity, &res.Status,
			&res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning expired reservation: %v", ErrDatabaseError, err)
		}
		reservations = append(reservations, res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating expired reservations: %v", ErrDatabaseError, err)
	}
	return reservations, nil
}
