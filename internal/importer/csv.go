// Package importer parses card-export CSV files into transactions.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
)

// Header names accepted for each field, checked in order. Chase exports
// use "Transaction Date"; some issuers use plain "Date".
var (
	dateHeaders        = []string{"Transaction Date", "Date", "Posting Date"}
	descriptionHeaders = []string{"Description", "Merchant"}
	amountHeaders      = []string{"Amount"}
	locationHeaders    = []string{"Location", "City/State"}
)

var dateLayouts = []string{"01/02/2006", "2006-01-02", "01/02/06"}

// ParseCSV reads a card-export CSV and returns expense transactions sorted
// by date. Card exports record expenses as negative amounts; amounts are
// normalized to positive and credits (payments, refunds) are skipped.
// Malformed rows are logged and skipped rather than failing the import.
func ParseCSV(r io.Reader, accountID string) ([]model.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, common.NewUserError("CSV file is empty or unreadable", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var (
		transactions []model.Transaction
		line         = 1
		skipped      int
	)
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("Skipping malformed CSV row", "line", line, "error", err)
			skipped++
			continue
		}

		txn, ok := parseRow(record, cols, accountID, line)
		if !ok {
			skipped++
			continue
		}
		if txn != nil {
			transactions = append(transactions, *txn)
		}
	}

	sort.SliceStable(transactions, func(i, j int) bool {
		if !transactions[i].Date.Equal(transactions[j].Date) {
			return transactions[i].Date.Before(transactions[j].Date)
		}
		return transactions[i].ExternalID < transactions[j].ExternalID
	})

	slog.Info("CSV import parsed", "transactions", len(transactions), "skipped", skipped)
	return transactions, nil
}

type columns struct {
	date        int
	description int
	amount      int
	location    int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{date: -1, description: -1, amount: -1, location: -1}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	find := func(names []string) int {
		for _, name := range names {
			if i, ok := index[name]; ok {
				return i
			}
		}
		return -1
	}

	cols.date = find(dateHeaders)
	cols.description = find(descriptionHeaders)
	cols.amount = find(amountHeaders)
	cols.location = find(locationHeaders)

	if cols.date < 0 || cols.description < 0 || cols.amount < 0 {
		return cols, common.NewUserError(
			"CSV is missing required columns (date, description, amount)",
			fmt.Errorf("header: %v", header))
	}
	return cols, nil
}

// parseRow converts one record. The second return value is false when the
// row is malformed; a nil transaction with true means a credit was skipped.
func parseRow(record []string, cols columns, accountID string, line int) (*model.Transaction, bool) {
	if cols.date >= len(record) || cols.description >= len(record) || cols.amount >= len(record) {
		slog.Warn("Skipping short CSV row", "line", line, "fields", len(record))
		return nil, false
	}

	date, err := parseDate(record[cols.date])
	if err != nil {
		slog.Warn("Skipping row with unparseable date", "line", line, "value", record[cols.date])
		return nil, false
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(record[cols.amount], ",", ""))
	if err != nil {
		slog.Warn("Skipping row with unparseable amount", "line", line, "value", record[cols.amount])
		return nil, false
	}
	if amount.IsPositive() || amount.IsZero() {
		// Payments and refunds are not expenses.
		return nil, true
	}

	description := strings.TrimSpace(record[cols.description])
	if description == "" {
		slog.Warn("Skipping row with empty description", "line", line)
		return nil, false
	}

	rawLocation := ""
	if cols.location >= 0 && cols.location < len(record) {
		rawLocation = strings.TrimSpace(record[cols.location])
	}

	txn := &model.Transaction{
		Date:        date,
		AccountID:   accountID,
		Description: description,
		RawLocation: rawLocation,
		Amount:      amount.Abs(),
	}
	txn.ExternalID = txn.GenerateHash()
	txn.Hash = txn.ExternalID
	return txn, true
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", value)
}
