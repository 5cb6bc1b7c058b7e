package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
)

const tripColumns = `id, start_date, end_date, dominant_location, business_purpose,
	total_amount, category_totals, confidence, needs_review, status`

// SaveTripTx inserts a trip and links its member transactions within an
// existing transaction, so a trip and its membership always commit
// atomically.
func (s *Store) SaveTripTx(ctx context.Context, tx *sql.Tx, trip *model.Trip) error {
	totalsJSON, err := marshalCategoryTotals(trip.CategoryTotals)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO trips (
			start_date, end_date, dominant_location, business_purpose,
			total_amount, category_totals, confidence, needs_review, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trip.StartDate,
		trip.EndDate,
		trip.DominantLocation,
		trip.BusinessPurpose,
		trip.TotalAmount.InexactFloat64(),
		totalsJSON,
		trip.Confidence,
		trip.NeedsReview,
		string(trip.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}

	tripID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get trip id: %w", err)
	}
	trip.ID = tripID

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE transactions SET trip_id = ?, updated_at = CURRENT_TIMESTAMP WHERE external_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range trip.Transactions {
		member := &trip.Transactions[i]
		member.TripID = &tripID
		if _, err := stmt.ExecContext(ctx, tripID, member.ExternalID); err != nil {
			return fmt.Errorf("failed to link transaction %s to trip %d: %w", member.ExternalID, tripID, err)
		}
	}
	return nil
}

// UpdateTripReviewTx writes the aggregated confidence and review flags for
// a trip within an existing transaction.
func (s *Store) UpdateTripReviewTx(ctx context.Context, tx *sql.Tx, trip *model.Trip) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE trips SET
			confidence = ?, needs_review = ?, status = ?, business_purpose = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, trip.Confidence, trip.NeedsReview, string(trip.Status), trip.BusinessPurpose, trip.ID)
	if err != nil {
		return fmt.Errorf("failed to update trip %d: %w", trip.ID, err)
	}
	return nil
}

// GetTrip returns a trip with its member transactions loaded, or
// ErrNotFound.
func (s *Store) GetTrip(ctx context.Context, id int64) (*model.Trip, error) {
	var trip model.Trip
	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, id)
		return scanTrip(row, &trip)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: trip %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	transactions, err := s.GetTransactionsByTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	trip.Transactions = transactions
	trip.TransactionIDs = make([]int64, len(transactions))
	for i, txn := range transactions {
		trip.TransactionIDs[i] = txn.ID
	}
	return &trip, nil
}

// ListTrips returns all trips ordered by start date, without member
// transactions.
func (s *Store) ListTrips(ctx context.Context) ([]model.Trip, error) {
	var trips []model.Trip
	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT `+tripColumns+` FROM trips ORDER BY start_date ASC, id ASC`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var trip model.Trip
			if err := scanTrip(rows, &trip); err != nil {
				return err
			}
			trips = append(trips, trip)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

// DissolveTripTx deletes a trip and clears membership on its transactions.
// Used when all members are reclassified as non-business or removed.
func (s *Store) DissolveTripTx(ctx context.Context, tx *sql.Tx, tripID int64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET trip_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE trip_id = ?`, tripID); err != nil {
		return fmt.Errorf("failed to unlink trip %d members: %w", tripID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, tripID); err != nil {
		return fmt.Errorf("failed to delete trip %d: %w", tripID, err)
	}
	return nil
}

// DeleteUnsubmittedTripsInRangeTx dissolves all draft/needs_review/ready
// trips overlapping the date range. Reprocessing runs call this first so
// regrouping an unchanged transaction set stays idempotent; submitted trips
// are never touched.
func (s *Store) DeleteUnsubmittedTripsInRangeTx(ctx context.Context, tx *sql.Tx, start, end *time.Time) error {
	query := `SELECT id FROM trips WHERE status != ?`
	args := []any{string(model.TripStatusSubmitted)}
	if start != nil {
		query += ` AND end_date >= ?`
		args = append(args, *start)
	}
	if end != nil {
		query += ` AND start_date <= ?`
		args = append(args, *end)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query trips in range: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, id := range ids {
		if err := s.DissolveTripTx(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

func scanTrip(row rowScanner, trip *model.Trip) error {
	var (
		dominant    sql.NullString
		purpose     sql.NullString
		totalsJSON  sql.NullString
		totalAmount float64
		status      string
	)

	if err := row.Scan(
		&trip.ID,
		&trip.StartDate,
		&trip.EndDate,
		&dominant,
		&purpose,
		&totalAmount,
		&totalsJSON,
		&trip.Confidence,
		&trip.NeedsReview,
		&status,
	); err != nil {
		return err
	}

	trip.DominantLocation = dominant.String
	trip.BusinessPurpose = purpose.String
	trip.TotalAmount = decimal.NewFromFloat(totalAmount)
	trip.Status = model.TripStatus(status)

	if totalsJSON.Valid && totalsJSON.String != "" {
		totals, err := unmarshalCategoryTotals(totalsJSON.String)
		if err != nil {
			return err
		}
		trip.CategoryTotals = totals
	}
	return nil
}

func marshalCategoryTotals(totals map[string]decimal.Decimal) (string, error) {
	if totals == nil {
		return "{}", nil
	}
	plain := make(map[string]string, len(totals))
	for category, amount := range totals {
		plain[category] = amount.StringFixed(2)
	}
	data, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("failed to marshal category totals: %w", err)
	}
	return string(data), nil
}

func unmarshalCategoryTotals(data string) (map[string]decimal.Decimal, error) {
	var plain map[string]string
	if err := json.Unmarshal([]byte(data), &plain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal category totals: %w", err)
	}
	totals := make(map[string]decimal.Decimal, len(plain))
	for category, amount := range plain {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid category total %q: %w", amount, err)
		}
		totals[category] = d
	}
	return totals, nil
}
