package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/transaction"
)

const transactionColumns = `id, source_product_id, target_product_id, type, amount, fee, occurred_at`

// TransactionRepository is the Postgres transaction.Ledger
type TransactionRepository struct {
	db *DB
}

var _ transaction.Ledger = (*TransactionRepository)(nil)

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	var target sql.NullString

	err := row.Scan(
		&tx.ID, &tx.SourceProductID, &target, &tx.Type,
		&tx.Amount, &tx.Fee, &tx.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if target.Valid {
		tx.TargetProductID = target.String
	}
	return &tx, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *TransactionRepository) Get(ctx context.Context, id string) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, failure.NotFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (r *TransactionRepository) List(ctx context.Context) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY occurred_at, id`
	return r.query(ctx, "list transactions", query)
}

func (r *TransactionRepository) GetByProduct(ctx context.Context, productID string) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE source_product_id = $1
		ORDER BY occurred_at, id
	`
	return r.query(ctx, "list product transactions", query, productID)
}

func (r *TransactionRepository) GetByProductAndRange(ctx context.Context, productID string, start, end time.Time) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE source_product_id = $1
		  AND occurred_at BETWEEN $2 AND $3
		ORDER BY occurred_at, id
	`
	return r.query(ctx, "list product transactions in range", query, productID, start, end)
}

func (r *TransactionRepository) GetByRange(ctx context.Context, start, end time.Time) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE occurred_at BETWEEN $1 AND $2
		ORDER BY occurred_at, id
	`
	return r.query(ctx, "list transactions in range", query, start, end)
}

func (r *TransactionRepository) GetByRangeAndProductIDs(ctx context.Context, productIDs []string, start, end time.Time) ([]*transaction.Transaction, error) {
	if len(productIDs) == 0 {
		return []*transaction.Transaction{}, nil
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (source_product_id = ANY($1) OR target_product_id = ANY($1))
		  AND occurred_at BETWEEN $2 AND $3
		ORDER BY occurred_at, id
	`
	return r.query(ctx, "list products transactions in range", query, pq.Array(productIDs), start, end)
}

func (r *TransactionRepository) Save(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (id, source_product_id, target_product_id, type, amount, fee, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.SourceProductID, nullable(tx.TargetProductID), string(tx.Type),
		tx.Amount, tx.Fee, tx.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) Update(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET source_product_id = $2,
		    target_product_id = $3,
		    type = $4,
		    amount = $5,
		    fee = $6,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.SourceProductID, nullable(tx.TargetProductID), string(tx.Type), tx.Amount, tx.Fee,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return requireRow(result, "transaction", tx.ID)
}

func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return requireRow(result, "transaction", id)
}

func (r *TransactionRepository) query(ctx context.Context, op, query string, args ...any) ([]*transaction.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	transactions := make([]*transaction.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

func requireRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return failure.NotFound(resource, id)
	}
	return nil
}
