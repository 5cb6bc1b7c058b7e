package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
)

const transactionColumns = `id, external_id, hash, account_id, date, description, amount,
	raw_location, normalized_location, location_resolved, is_business,
	category, confidence, trip_id, business_purpose, needs_review`

// SaveTransactions inserts transactions in one pooled transaction,
// ignoring rows whose external id is already present.
func (s *Store) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(transactions) == 0 {
		return nil
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.SaveTransactionsTx(ctx, tx, transactions)
	})
}

// SaveTransactionsTx inserts transactions within an existing transaction,
// so batch chunks can commit as a unit.
func (s *Store) SaveTransactionsTx(ctx context.Context, tx *sql.Tx, transactions []model.Transaction) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			external_id, hash, account_id, date, description, amount, raw_location
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		txn := &transactions[i]
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}

		if _, err := stmt.ExecContext(ctx,
			txn.ExternalID,
			txn.Hash,
			txn.AccountID,
			txn.Date,
			txn.Description,
			txn.Amount.InexactFloat64(),
			txn.RawLocation,
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", txn.ExternalID, err)
		}
	}
	return nil
}

// UpdateClassificationsTx writes classification results for a chunk of
// transactions within an existing transaction.
func (s *Store) UpdateClassificationsTx(ctx context.Context, tx *sql.Tx, transactions []model.Transaction) error {
	stmt, err := tx.PrepareContext(ctx, `
		UPDATE transactions SET
			normalized_location = ?,
			location_resolved = ?,
			is_business = ?,
			category = ?,
			confidence = ?,
			needs_review = ?,
			business_purpose = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE external_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		txn := &transactions[i]
		if _, err := stmt.ExecContext(ctx,
			txn.NormalizedLocation,
			txn.LocationResolved,
			txn.IsBusiness,
			txn.Category,
			txn.Confidence,
			txn.NeedsReview,
			txn.BusinessPurpose,
			txn.ExternalID,
		); err != nil {
			return fmt.Errorf("failed to update transaction %s: %w", txn.ExternalID, err)
		}
	}
	return nil
}

// GetTransactionByExternalID returns a single transaction or ErrNotFound.
func (s *Store) GetTransactionByExternalID(ctx context.Context, externalID string) (*model.Transaction, error) {
	if err := validateString(externalID, "externalID"); err != nil {
		return nil, err
	}

	var txn model.Transaction
	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE external_id = ?`, externalID)
		return scanTransaction(row, &txn)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &txn, nil
}

// GetTransactionsByDateRange returns transactions in date order. Either
// bound may be nil.
func (s *Store) GetTransactionsByDateRange(ctx context.Context, start, end *time.Time) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	args := make([]any, 0, 2)
	if start != nil {
		query += ` AND date >= ?`
		args = append(args, *start)
	}
	if end != nil {
		query += ` AND date <= ?`
		args = append(args, *end)
	}
	query += ` ORDER BY date ASC, id ASC`

	var transactions []model.Transaction
	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		transactions, err = scanTransactions(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return transactions, nil
}

// GetTransactionsByTrip returns the member transactions of a trip in date
// order.
func (s *Store) GetTransactionsByTrip(ctx context.Context, tripID int64) ([]model.Transaction, error) {
	var transactions []model.Transaction
	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE trip_id = ? ORDER BY date ASC, id ASC`, tripID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		transactions, err = scanTransactions(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query trip transactions: %w", err)
	}
	return transactions, nil
}

// PurgeTransactions removes all transactions. Ingested records are never
// deleted through any other path.
func (s *Store) PurgeTransactions(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM trips`)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner, txn *model.Transaction) error {
	var (
		accountID   sql.NullString
		rawLoc      sql.NullString
		normLoc     sql.NullString
		category    sql.NullString
		purpose     sql.NullString
		tripID      sql.NullInt64
		amountFloat float64
	)

	if err := row.Scan(
		&txn.ID,
		&txn.ExternalID,
		&txn.Hash,
		&accountID,
		&txn.Date,
		&txn.Description,
		&amountFloat,
		&rawLoc,
		&normLoc,
		&txn.LocationResolved,
		&txn.IsBusiness,
		&category,
		&txn.Confidence,
		&tripID,
		&purpose,
		&txn.NeedsReview,
	); err != nil {
		return err
	}

	txn.Amount = decimal.NewFromFloat(amountFloat)
	txn.AccountID = accountID.String
	txn.RawLocation = rawLoc.String
	txn.NormalizedLocation = normLoc.String
	txn.Category = category.String
	txn.BusinessPurpose = purpose.String
	if tripID.Valid {
		id := tripID.Int64
		txn.TripID = &id
	}
	return nil
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var transactions []model.Transaction
	for rows.Next() {
		var txn model.Transaction
		if err := scanTransaction(rows, &txn); err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}
