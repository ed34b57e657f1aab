package asyncwin

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when registering on, or operating through, an
	// Event, handle or loop whose owner has been destroyed.
	ErrClosed = errors.New("asyncwin: closed")

	// ErrCancelled is the outcome of a pending wait that was deregistered
	// before it resolved, and of a task dropped by loop shutdown.
	ErrCancelled = errors.New("asyncwin: cancelled")

	// ErrConstructionFailed matches every [ConstructionError].
	ErrConstructionFailed = errors.New("asyncwin: construction failed")

	// ErrTaskFailed matches every [TaskFailedError].
	ErrTaskFailed = errors.New("asyncwin: task failed")

	// ErrLoopStarted is returned by [EventLoop.BlockOn] when called more
	// than once.
	ErrLoopStarted = errors.New("asyncwin: event loop already started")
)

// ConstructionError reports that the native resource behind an async
// constructor could not be created.
type ConstructionError struct {
	Resource string
	Err      error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("asyncwin: construction of %s failed: %v", e.Resource, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

func (e *ConstructionError) Is(target error) bool { return target == ErrConstructionFailed }

// TaskFailedError carries the unrecovered panic (or thrown value) that ended
// a task. It unwraps to every error value in its panic stack, so
// errors.Is(err, ErrClosed) works for a task that died on a closed Event.
type TaskFailedError struct {
	pv *panicvalue
}

func (e *TaskFailedError) Error() string {
	return "asyncwin: task failed: " + e.pv.Error()
}

// Value returns the latest panic value.
func (e *TaskFailedError) Value() any { return e.pv.last() }

func (e *TaskFailedError) Unwrap() []error { return e.pv.Unwrap() }

func (e *TaskFailedError) Is(target error) bool { return target == ErrTaskFailed }
