package model

import "time"

// TaskState is the lifecycle state of a background task.
type TaskState string

// Task state constants. Transitions are monotonic:
// queued -> running -> completed | error | cancelled, with queued -> cancelled
// allowed for tasks that never started.
const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskError     TaskState = "error"
	TaskCancelled TaskState = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskError, TaskCancelled:
		return true
	case TaskQueued, TaskRunning:
		return false
	}
	return false
}

// Task represents one asynchronous batch job driving a single pipeline
// invocation.
type Task struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Result    any
	ID        string
	Kind      string
	Error     string
	State     TaskState
	Progress  int
}

// JobSpec describes the work a submitted task should perform.
type JobSpec struct {
	StartDate *time.Time
	EndDate   *time.Time
	Kind      string
}
