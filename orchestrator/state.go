package orchestrator

// State is the lifecycle state of an Orchestrator
type State int32

const (
	// Uninitialized is the state before the model has been loaded
	Uninitialized State = iota
	// Ready accepts a detection request
	Ready
	// Busy has a session in flight, requests are dropped
	Busy
	// Disabled rejects all requests, entered on load failure or Close
	Disabled
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Busy:
		return "busy"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// SessionState is the progress of a single detection request
type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionPreprocessing
	SessionInferring
	SessionPostprocessing
	SessionCompleted
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionPreprocessing:
		return "preprocessing"
	case SessionInferring:
		return "inferring"
	case SessionPostprocessing:
		return "postprocessing"
	case SessionCompleted:
		return "completed"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session has finished
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}
