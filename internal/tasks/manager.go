// Package tasks runs batch jobs in the background with bounded
// concurrency, cooperative cancellation, and a stall watchdog.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
)

// RunFunc executes one job. Implementations must honor ctx cancellation
// and call report with progress in [0,100] as the job advances; the
// watchdog treats a silent job as stalled.
type RunFunc func(ctx context.Context, spec model.JobSpec, report func(progress int)) (any, error)

// TaskStore mirrors task state into durable storage. Implemented by
// storage.Store; a nil store keeps bookkeeping in memory only.
type TaskStore interface {
	UpsertTask(ctx context.Context, task model.Task) error
}

// Config controls manager concurrency and watchdog behavior.
type Config struct {
	Store            TaskStore
	Workers          int
	QueueSize        int
	WatchdogInterval time.Duration
	WatchdogStale    time.Duration
}

type job struct {
	id   string
	spec model.JobSpec
}

type entry struct {
	task     model.Task
	cancel   context.CancelFunc
	lastBeat time.Time
}

// Manager owns the task registry, the FIFO queue, and the worker pool.
type Manager struct {
	run    RunFunc
	cfg    Config
	queue  chan job
	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	tasks  map[string]*entry
	closed bool
}

// NewManager creates a manager; call Start before submitting work.
func NewManager(run RunFunc, cfg Config) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = 15 * time.Second
	}
	if cfg.WatchdogStale <= 0 {
		cfg.WatchdogStale = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		run:   run,
		cfg:   cfg,
		queue: make(chan job, cfg.QueueSize),
		ctx:   ctx,
		stop:  cancel,
		tasks: make(map[string]*entry),
	}
}

// Start launches the worker pool and the watchdog.
func (m *Manager) Start() {
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	m.wg.Add(1)
	go m.watchdog()
}

// Submit enqueues a job and returns its task ID immediately. The task
// starts in the queued state; ErrQueueFull is returned when the queue is
// at capacity rather than blocking the caller.
func (m *Manager) Submit(spec model.JobSpec) (string, error) {
	if spec.StartDate != nil && spec.EndDate != nil && spec.EndDate.Before(*spec.StartDate) {
		return "", common.NewUserError(
			"End date must not be before start date",
			errors.New("end date before start date"))
	}
	if spec.Kind == "" {
		spec.Kind = "reprocess"
	}

	now := time.Now().UTC()
	task := model.Task{
		ID:        uuid.NewString(),
		Kind:      spec.Kind,
		State:     model.TaskQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The enqueue happens under the lock so Shutdown cannot close the
	// queue between the closed check and the send. The send never blocks:
	// a full queue is rejected instead.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: manager is shut down", common.ErrQueueFull)
	}
	select {
	case m.queue <- job{id: task.ID, spec: spec}:
		m.tasks[task.ID] = &entry{task: task, lastBeat: now}
	default:
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %d tasks pending", common.ErrQueueFull, len(m.queue))
	}
	m.mu.Unlock()

	m.mirror(task)
	slog.Info("Task queued", "task_id", task.ID, "kind", task.Kind)
	return task.ID, nil
}

// Status returns a copy of the task's current state without blocking on
// any running work.
func (m *Manager) Status(id string) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", common.ErrTaskNotFound, id)
	}
	return e.task, nil
}

// List returns copies of all tracked tasks.
func (m *Manager) List() []model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Task, 0, len(m.tasks))
	for _, e := range m.tasks {
		out = append(out, e.task)
	}
	return out
}

// Cancel requests cancellation of a task. A queued task is cancelled
// directly and never runs; a running task is signalled through its
// context and stops at the next chunk boundary. Cancelling a terminal
// task is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrTaskNotFound, id)
	}
	if e.task.State.Terminal() {
		return nil
	}

	if e.task.State == model.TaskQueued {
		m.transitionLocked(e, model.TaskCancelled, nil, "")
		return nil
	}
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

// Shutdown stops accepting work, cancels running tasks, and waits for
// the workers to drain, up to the context deadline.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.stop()
	close(m.queue)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case j, ok := <-m.queue:
			if !ok {
				return
			}
			m.execute(j)
		}
	}
}

// execute runs a single dequeued job with panic containment: a panicking
// job takes down its own task, never the worker.
func (m *Manager) execute(j job) {
	m.mu.Lock()
	e, ok := m.tasks[j.id]
	if !ok || e.task.State != model.TaskQueued {
		// Cancelled while queued.
		m.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(m.ctx)
	e.cancel = cancel
	e.lastBeat = time.Now().UTC()
	m.transitionLocked(e, model.TaskRunning, nil, "")
	m.mu.Unlock()
	defer cancel()

	report := func(progress int) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if e.task.State != model.TaskRunning {
			return
		}
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		e.task.Progress = progress
		e.task.UpdatedAt = time.Now().UTC()
		e.lastBeat = e.task.UpdatedAt
	}

	var (
		result any
		runErr error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("task panic: %v", r)
			}
		}()
		result, runErr = m.run(jobCtx, j.spec, report)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case runErr == nil:
		m.transitionLocked(e, model.TaskCompleted, result, "")
	case errors.Is(runErr, context.Canceled):
		m.transitionLocked(e, model.TaskCancelled, nil, "")
	default:
		m.transitionLocked(e, model.TaskError, nil, runErr.Error())
	}
}

// watchdog marks running tasks that have not reported progress within the
// stale window as errored and cancels their contexts.
func (m *Manager) watchdog() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.tasks {
		if e.task.State != model.TaskRunning {
			continue
		}
		if now.Sub(e.lastBeat) < m.cfg.WatchdogStale {
			continue
		}
		slog.Warn("Task stalled, cancelling", "task_id", id,
			"last_progress", e.task.Progress, "stale_for", now.Sub(e.lastBeat))
		m.transitionLocked(e, model.TaskError, nil,
			fmt.Sprintf("%v: no progress for %s", common.ErrTaskWatchdogTimeout, now.Sub(e.lastBeat).Round(time.Second)))
		if e.cancel != nil {
			e.cancel()
		}
	}
}

// transitionLocked applies a state change if it is legal from the current
// state. Terminal states are absorbing; an illegal transition is dropped,
// which keeps a late worker update from reviving a watchdog-errored task.
// Callers must hold m.mu.
func (m *Manager) transitionLocked(e *entry, next model.TaskState, result any, errDetail string) {
	if !legalTransition(e.task.State, next) {
		return
	}

	e.task.State = next
	e.task.UpdatedAt = time.Now().UTC()
	e.task.Error = errDetail
	if result != nil {
		e.task.Result = result
	}
	if next == model.TaskCompleted {
		e.task.Progress = 100
	}

	m.mirror(e.task)
	slog.Info("Task state changed", "task_id", e.task.ID, "state", next)
}

func legalTransition(from, to model.TaskState) bool {
	switch from {
	case model.TaskQueued:
		return to == model.TaskRunning || to == model.TaskCancelled
	case model.TaskRunning:
		return to == model.TaskCompleted || to == model.TaskError || to == model.TaskCancelled
	}
	return false
}

// mirror writes the task snapshot to durable storage on a best-effort
// basis; persistence failures never affect the in-memory lifecycle.
func (m *Manager) mirror(task model.Task) {
	if m.cfg.Store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.cfg.Store.UpsertTask(ctx, task); err != nil {
		common.LogError(err, "Failed to persist task state", common.Fields{
			"task_id": task.ID,
			"state":   string(task.State),
		})
	}
}
