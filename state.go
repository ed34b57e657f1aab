package asyncwin

// A LoopState is a stage in the lifetime of an [EventLoop].
//
//	NotStarted -> Running -> (Suspended <-> Running)* -> Exited
//
// Transitions are driven only by the native loop's lifecycle notifications
// and by loop-level failures, which move the loop straight to Exited.
type LoopState int32

const (
	StateNotStarted LoopState = iota
	StateRunning
	StateSuspended
	StateExited
)

func (s LoopState) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	case StateExited:
		return "Exited"
	}
	return "Unknown"
}

// canTransition reports whether a loop in state s may move to next.
func (s LoopState) canTransition(next LoopState) bool {
	switch s {
	case StateNotStarted:
		return next == StateRunning || next == StateExited
	case StateRunning:
		return next == StateSuspended || next == StateExited
	case StateSuspended:
		return next == StateRunning || next == StateExited
	}
	return false
}
