package storage_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
	"github.com/wayfare-dev/wayfare/internal/testutil"
)

func TestUpsertAndGetTask(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	task := model.Task{
		ID:        "task-1",
		Kind:      "reprocess",
		State:     model.TaskQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertTask(ctx, task))

	// Subsequent upserts update state in place.
	task.State = model.TaskCompleted
	task.Progress = 100
	task.Result = map[string]int{"processed": 42}
	task.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.UpsertTask(ctx, task))

	got, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.State)
	assert.Equal(t, 100, got.Progress)

	raw, ok := got.Result.(json.RawMessage)
	require.True(t, ok)
	var payload map[string]int
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, 42, payload["processed"])

	_, err = store.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrTaskNotFound)
}

func TestListTasksNewestFirst(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.UpsertTask(ctx, model.Task{
			ID:        id,
			Kind:      "reprocess",
			State:     model.TaskCompleted,
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	tasks, err := store.ListTasks(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "c", tasks[0].ID)
	assert.Equal(t, "b", tasks[1].ID)
}
