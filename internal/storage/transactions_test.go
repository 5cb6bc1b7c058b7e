package storage_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
	"github.com/wayfare-dev/wayfare/internal/testutil"
)

func makeTransaction(externalID string, date time.Time, description string, amount float64) model.Transaction {
	return model.Transaction{
		ExternalID:  externalID,
		AccountID:   "acct-1",
		Date:        date,
		Description: description,
		Amount:      decimal.NewFromFloat(amount),
	}
}

func TestSaveTransactionsDeduplicates(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	batch := []model.Transaction{
		makeTransaction("txn-1", date, "DELTA AIR LINES", 450.00),
		makeTransaction("txn-2", date, "MARRIOTT SEATTLE WA", 189.50),
	}
	require.NoError(t, store.SaveTransactions(ctx, batch))

	// Re-importing the same records must be a no-op.
	require.NoError(t, store.SaveTransactions(ctx, batch))

	all, err := store.GetTransactionsByDateRange(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetTransactionByExternalID(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	date := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		makeTransaction("txn-42", date, "UBER TRIP", 23.75),
	}))

	txn, err := store.GetTransactionByExternalID(ctx, "txn-42")
	require.NoError(t, err)
	assert.Equal(t, "UBER TRIP", txn.Description)
	assert.True(t, txn.Amount.Equal(decimal.NewFromFloat(23.75)))
	assert.NotEmpty(t, txn.Hash, "hash is generated on insert")

	_, err = store.GetTransactionByExternalID(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetTransactionsByDateRange(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		makeTransaction("jan", jan, "one", 1),
		makeTransaction("feb", feb, "two", 2),
		makeTransaction("mar", mar, "three", 3),
	}))

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	inRange, err := store.GetTransactionsByDateRange(ctx, &from, &to)
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, "feb", inRange[0].ExternalID)

	// Open-ended lower bound.
	upTo, err := store.GetTransactionsByDateRange(ctx, nil, &to)
	require.NoError(t, err)
	assert.Len(t, upTo, 2)

	// Results come back in date order.
	all, err := store.GetTransactionsByDateRange(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Date.Before(all[1].Date))
	assert.True(t, all[1].Date.Before(all[2].Date))
}

func TestUpdateClassifications(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	txns := []model.Transaction{
		makeTransaction("txn-c", date, "HILTON CHICAGO IL", 240.00),
	}
	require.NoError(t, store.SaveTransactions(ctx, txns))

	txns[0].NormalizedLocation = "CHICAGO IL"
	txns[0].LocationResolved = true
	txns[0].IsBusiness = true
	txns[0].Category = "HOTEL"
	txns[0].Confidence = 0.9025
	txns[0].NeedsReview = false

	require.NoError(t, store.WithTx(ctx, func(tx *sql.Tx) error {
		return store.UpdateClassificationsTx(ctx, tx, txns)
	}))

	got, err := store.GetTransactionByExternalID(ctx, "txn-c")
	require.NoError(t, err)
	assert.Equal(t, "HOTEL", got.Category)
	assert.Equal(t, "CHICAGO IL", got.NormalizedLocation)
	assert.True(t, got.LocationResolved)
	assert.True(t, got.IsBusiness)
	assert.InDelta(t, 0.9025, got.Confidence, 1e-9)
}
