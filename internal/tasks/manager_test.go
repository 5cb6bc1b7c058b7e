package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
)

func testConfig() Config {
	return Config{
		Workers:          2,
		QueueSize:        8,
		WatchdogInterval: time.Hour,
		WatchdogStale:    time.Hour,
	}
}

func startManager(t *testing.T, run RunFunc, cfg Config) *Manager {
	t.Helper()
	m := NewManager(run, cfg)
	m.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitForState(t *testing.T, m *Manager, id string, want model.TaskState) model.Task {
	t.Helper()
	var task model.Task
	require.Eventually(t, func() bool {
		got, err := m.Status(id)
		if err != nil {
			return false
		}
		task = got
		return got.State == want
	}, 5*time.Second, 5*time.Millisecond, "task never reached state %s", want)
	return task
}

func TestSubmitReturnsImmediately(t *testing.T) {
	release := make(chan struct{})
	m := startManager(t, func(ctx context.Context, _ model.JobSpec, _ func(int)) (any, error) {
		<-release
		return nil, nil
	}, testConfig())

	id, err := m.Submit(model.JobSpec{Kind: "reprocess"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, err := m.Status(id)
	require.NoError(t, err)
	assert.Contains(t, []model.TaskState{model.TaskQueued, model.TaskRunning}, task.State)

	close(release)
	waitForState(t, m, id, model.TaskCompleted)
}

func TestTaskCompletesWithResultAndProgress(t *testing.T) {
	m := startManager(t, func(ctx context.Context, _ model.JobSpec, report func(int)) (any, error) {
		report(50)
		return map[string]int{"processed": 7}, nil
	}, testConfig())

	id, err := m.Submit(model.JobSpec{})
	require.NoError(t, err)

	task := waitForState(t, m, id, model.TaskCompleted)
	assert.Equal(t, 100, task.Progress, "completion forces progress to 100")
	assert.NotNil(t, task.Result)
	assert.Empty(t, task.Error)
}

func TestTaskFailureRecordsError(t *testing.T) {
	m := startManager(t, func(ctx context.Context, _ model.JobSpec, _ func(int)) (any, error) {
		return nil, assert.AnError
	}, testConfig())

	id, err := m.Submit(model.JobSpec{})
	require.NoError(t, err)

	task := waitForState(t, m, id, model.TaskError)
	assert.Contains(t, task.Error, assert.AnError.Error())
}

func TestTaskPanicBecomesError(t *testing.T) {
	m := startManager(t, func(ctx context.Context, _ model.JobSpec, _ func(int)) (any, error) {
		panic("boom")
	}, testConfig())

	id, err := m.Submit(model.JobSpec{})
	require.NoError(t, err)

	task := waitForState(t, m, id, model.TaskError)
	assert.Contains(t, task.Error, "boom")

	// The worker survives the panic and keeps serving jobs.
	id2, err := m.Submit(model.JobSpec{})
	require.NoError(t, err)
	waitForState(t, m, id2, model.TaskError)
}

func TestCancelQueuedTaskNeverRuns(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1

	var ran sync.Map
	block := make(chan struct{})
	m := startManager(t, func(ctx context.Context, spec model.JobSpec, _ func(int)) (any, error) {
		ran.Store(spec.Kind, true)
		<-block
		return nil, nil
	}, cfg)

	first, err := m.Submit(model.JobSpec{Kind: "first"})
	require.NoError(t, err)
	waitForState(t, m, first, model.TaskRunning)

	// The single worker is busy, so this one stays queued.
	second, err := m.Submit(model.JobSpec{Kind: "second"})
	require.NoError(t, err)
	require.NoError(t, m.Cancel(second))

	task, err := m.Status(second)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCancelled, task.State)

	close(block)
	waitForState(t, m, first, model.TaskCompleted)

	_, secondRan := ran.Load("second")
	assert.False(t, secondRan, "a cancelled queued task must never execute")
}

func TestCancelRunningTaskStopsAtCheckpoint(t *testing.T) {
	started := make(chan struct{})
	m := startManager(t, func(ctx context.Context, _ model.JobSpec, _ func(int)) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, testConfig())

	id, err := m.Submit(model.JobSpec{})
	require.NoError(t, err)
	<-started

	require.NoError(t, m.Cancel(id))
	waitForState(t, m, id, model.TaskCancelled)

	// Terminal states are absorbing: cancelling again is a no-op.
	require.NoError(t, m.Cancel(id))
}

func TestWatchdogMarksStalledTask(t *testing.T) {
	cfg := testConfig()
	cfg.WatchdogInterval = 10 * time.Millisecond
	cfg.WatchdogStale = 30 * time.Millisecond

	m := startManager(t, func(ctx context.Context, _ model.JobSpec, _ func(int)) (any, error) {
		// Never reports progress; the watchdog should put it down.
		<-ctx.Done()
		return nil, ctx.Err()
	}, cfg)

	id, err := m.Submit(model.JobSpec{})
	require.NoError(t, err)

	task := waitForState(t, m, id, model.TaskError)
	assert.Contains(t, task.Error, common.ErrTaskWatchdogTimeout.Error())
}

func TestWatchdogSparesReportingTask(t *testing.T) {
	cfg := testConfig()
	cfg.WatchdogInterval = 10 * time.Millisecond
	cfg.WatchdogStale = 50 * time.Millisecond

	m := startManager(t, func(ctx context.Context, _ model.JobSpec, report func(int)) (any, error) {
		for i := 0; i < 10; i++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(20 * time.Millisecond):
				report(i * 10)
			}
		}
		return nil, nil
	}, cfg)

	id, err := m.Submit(model.JobSpec{})
	require.NoError(t, err)

	task := waitForState(t, m, id, model.TaskCompleted)
	assert.Empty(t, task.Error)
}

func TestSubmitValidatesDates(t *testing.T) {
	m := startManager(t, func(ctx context.Context, _ model.JobSpec, _ func(int)) (any, error) {
		return nil, nil
	}, testConfig())

	start := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -5)
	_, err := m.Submit(model.JobSpec{StartDate: &start, EndDate: &end})
	require.Error(t, err)

	var userErr *common.UserError
	assert.ErrorAs(t, err, &userErr)
}

func TestStatusUnknownTask(t *testing.T) {
	m := startManager(t, func(ctx context.Context, _ model.JobSpec, _ func(int)) (any, error) {
		return nil, nil
	}, testConfig())

	_, err := m.Status("nope")
	assert.ErrorIs(t, err, common.ErrTaskNotFound)

	err = m.Cancel("nope")
	assert.ErrorIs(t, err, common.ErrTaskNotFound)
}

func TestQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1

	block := make(chan struct{})
	defer close(block)
	m := startManager(t, func(ctx context.Context, _ model.JobSpec, _ func(int)) (any, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, nil
	}, cfg)

	// First occupies the worker, second fills the queue.
	first, err := m.Submit(model.JobSpec{})
	require.NoError(t, err)
	waitForState(t, m, first, model.TaskRunning)
	_, err = m.Submit(model.JobSpec{})
	require.NoError(t, err)

	_, err = m.Submit(model.JobSpec{})
	assert.ErrorIs(t, err, common.ErrQueueFull)
}
