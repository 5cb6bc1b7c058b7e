// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound            = errors.New("not found")
	ErrPoolExhausted       = errors.New("connection pool exhausted")
	ErrPoolClosed          = errors.New("connection pool closed")
	ErrTransactionRollback = errors.New("storage transaction rolled back")

	// Task errors.
	ErrTaskNotFound        = errors.New("task not found")
	ErrTaskWatchdogTimeout = errors.New("task watchdog timeout")
	ErrQueueFull           = errors.New("task queue full")

	// Pipeline errors.
	ErrInvalidGroupingParameters = errors.New("invalid grouping parameters")
	ErrNoTransactions            = errors.New("no transactions to process")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrPoolExhausted) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
