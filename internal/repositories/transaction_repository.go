package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eyeclinic_backend/internal/models"
)

// TransactionRepository is the append-only audit trail. Entries are never
// updated or deleted.
type TransactionRepository interface {
	Append(executor SQLExecutor, entry *models.StockTransaction) (int64, error)
	GetByItem(itemID int64, txType *string, page, pageSize int) ([]models.StockTransaction, int, error)
	// LatestBalance returns the balance_after of the newest entry for the
	// item, with found=false when no entries exist yet.
	LatestBalance(executor SQLExecutor, itemID int64) (balance int, found bool, err error)
}

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new instance of TransactionRepository.
func NewTransactionRepository(db *sql.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) executorOrDB(executor SQLExecutor) SQLExecutor {
	if executor != nil {
		return executor
	}
	return r.db
}

func (r *transactionRepository) Append(executor SQLExecutor, entry *models.StockTransaction) (int64, error) {
	query := `INSERT INTO stock_transactions
	          (item_id, tx_type, quantity, actor, reason, reference, unit_price, balance_before, balance_after, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING id`
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	err := r.executorOrDB(executor).QueryRow(query,
		entry.ItemID, entry.TxType, entry.Quantity, entry.Actor, entry.Reason, entry.Reference,
		entry.UnitPrice, entry.BalanceBefore, entry.BalanceAfter, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: appending stock transaction: %v", ErrDatabaseError, err)
	}
	return entry.ID, nil
}

func (r *transactionRepository) GetByItem(itemID int64, txType *string, page, pageSize int) ([]models.StockTransaction, int, error) {
	entries := []models.StockTransaction{}
	totalCount := 0

	query := `SELECT id, item_id, tx_type, quantity, actor, reason, reference, unit_price,
	                 balance_before, balance_after, created_at,
	                 COUNT(*) OVER() AS total_count
	          FROM stock_transactions
	          WHERE item_id = $1`
	args := []interface{}{itemID}
	if txType != nil && *txType != "" {
		query += " AND tx_type = $2"
		args = append(args, *txType)
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: getting stock transactions: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.StockTransaction
		if err := rows.Scan(
			&entry.ID, &entry.ItemID, &entry.TxType, &entry.Quantity, &entry.Actor,
			&entry.Reason, &entry.Reference, &entry.UnitPrice, &entry.BalanceBefore, &entry.BalanceAfter,
			&entry.CreatedAt, &totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning stock transaction: %v", ErrDatabaseError, err)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating stock transactions: %v", ErrDatabaseError, err)
	}
	return entries, totalCount, nil
}

func (r *transactionRepository) LatestBalance(executor SQLExecutor, itemID int64) (int, bool, error) {
	var balance int
	err := r.executorOrDB(executor).QueryRow(
		`SELECT balance_after FROM stock_transactions WHERE item_id = $1 ORDER BY id DESC LIMIT 1`,
		itemID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: getting latest balance for item %d: %v", ErrDatabaseError, itemID, err)
	}
	return balance, true, nil
}
