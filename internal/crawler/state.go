package crawler

// State is the lifecycle state of a Generator.
//
//	Idle -> Running -> Completed
//	     \          \-> Cancelled
//	      \-> Fatal
type State int

const (
	// StateIdle is the initial state; Run has not been called.
	StateIdle State = iota

	// StateRunning means fetches are being dispatched.
	StateRunning

	// StateCompleted means the frontier drained and the sitemap was built.
	StateCompleted

	// StateFatal means the run could not be initialized.
	StateFatal

	// StateCancelled means the context was cancelled while running.
	StateCancelled
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFatal:
		return "fatal"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state can no longer change.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFatal || s == StateCancelled
}
