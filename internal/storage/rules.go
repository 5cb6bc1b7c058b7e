package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
)

// SaveRuleSet stores a classification rule-set version. Versions are
// immutable once written; reloading rules means writing a new version.
func (s *Store) SaveRuleSet(ctx context.Context, rs model.RuleSet) error {
	if rs.Version <= 0 {
		return fmt.Errorf("rule set version must be > 0, got %d", rs.Version)
	}

	data, err := json.Marshal(rs.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO rule_sets (version, rules) VALUES (?, ?)`,
			rs.Version, string(data))
		return err
	})
}

// GetRuleSet returns a specific rule-set version or ErrNotFound.
func (s *Store) GetRuleSet(ctx context.Context, version int) (*model.RuleSet, error) {
	var data string
	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT rules FROM rule_sets WHERE version = ?`, version)
		return row.Scan(&data)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule set version %d", common.ErrNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule set: %w", err)
	}

	return unmarshalRuleSet(version, data)
}

// LatestRuleSet returns the highest stored rule-set version or ErrNotFound
// when no rule set has been stored yet.
func (s *Store) LatestRuleSet(ctx context.Context) (*model.RuleSet, error) {
	var (
		version int
		data    string
	)
	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT version, rules FROM rule_sets ORDER BY version DESC LIMIT 1`)
		return row.Scan(&version, &data)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no rule sets stored", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest rule set: %w", err)
	}

	return unmarshalRuleSet(version, data)
}

func unmarshalRuleSet(version int, data string) (*model.RuleSet, error) {
	var rules []model.ClassificationRule
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule set %d: %w", version, err)
	}
	return &model.RuleSet{Version: version, Rules: rules}, nil
}
