package core

import "errors"

// customError is an error that carries a retryable flag, so loops can tell
// a condition worth retrying from a fatal one.
type customError struct {
	message   string
	retryable bool
}

// NewError creates an error with the given message and retryable status.
func NewError(msg string, retryable bool) error {
	return &customError{
		message:   msg,
		retryable: retryable,
	}
}

func (e *customError) Error() string {
	return e.message
}

func (e *customError) IsRetryable() bool {
	return e.retryable
}

// IsRetryable reports whether err, or an error it wraps, was created with
// NewError and marked retryable.
func IsRetryable(err error) bool {
	var e *customError
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return false
}

var (
	// ErrListen means the shared listening socket could not be set up.
	ErrListen = NewError("listener setup failed", false)
	// ErrNotifierCreate means a worker could not create its readiness notifier.
	ErrNotifierCreate = NewError("notifier create failed", false)
	// ErrNotifierRegister means a worker could not register a descriptor.
	ErrNotifierRegister = NewError("notifier register failed", false)
	// ErrWaitInterrupted is a readiness wait cut short by a signal.
	ErrWaitInterrupted = NewError("notifier wait interrupted", true)
	// ErrWorkersExited means every worker process ended before shutdown was requested.
	ErrWorkersExited = NewError("all workers exited", false)
)
