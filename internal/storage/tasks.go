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

// UpsertTask mirrors a background task's current state into the tasks
// table for auditing across restarts.
func (s *Store) UpsertTask(ctx context.Context, task model.Task) error {
	var resultJSON sql.NullString
	if task.Result != nil {
		data, err := json.Marshal(task.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal task result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, kind, state, progress, result, error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				state = excluded.state,
				progress = excluded.progress,
				result = excluded.result,
				error = excluded.error,
				updated_at = excluded.updated_at
		`,
			task.ID,
			task.Kind,
			string(task.State),
			task.Progress,
			resultJSON,
			task.Error,
			task.CreatedAt,
			task.UpdatedAt,
		)
		return err
	})
}

// GetTask returns a persisted task record or ErrTaskNotFound. The result
// payload is returned as raw JSON.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var (
		task       model.Task
		state      string
		resultJSON sql.NullString
		errDetail  sql.NullString
	)
	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT id, kind, state, progress, result, error, created_at, updated_at FROM tasks WHERE id = ?`, id)
		return row.Scan(&task.ID, &task.Kind, &state, &task.Progress,
			&resultJSON, &errDetail, &task.CreatedAt, &task.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	task.State = model.TaskState(state)
	task.Error = errDetail.String
	if resultJSON.Valid && resultJSON.String != "" {
		task.Result = json.RawMessage(resultJSON.String)
	}
	return &task, nil
}

// ListTasks returns the most recently updated tasks, newest first.
func (s *Store) ListTasks(ctx context.Context, limit int) ([]model.Task, error) {
	if limit <= 0 {
		limit = 50
	}

	var tasks []model.Task
	err := s.pool.WithConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx,
			`SELECT id, kind, state, progress, result, error, created_at, updated_at
			 FROM tasks ORDER BY updated_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				task       model.Task
				state      string
				resultJSON sql.NullString
				errDetail  sql.NullString
			)
			if err := rows.Scan(&task.ID, &task.Kind, &state, &task.Progress,
				&resultJSON, &errDetail, &task.CreatedAt, &task.UpdatedAt); err != nil {
				return err
			}
			task.State = model.TaskState(state)
			task.Error = errDetail.String
			if resultJSON.Valid && resultJSON.String != "" {
				task.Result = json.RawMessage(resultJSON.String)
			}
			tasks = append(tasks, task)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}
