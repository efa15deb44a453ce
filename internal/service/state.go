// Package service ties the worker supervisor, the capability sessions, and
// the RPC server together into one lifecycle.
package service

// State represents the current state of the service.
type State int

const (
	// StateStarting indicates the worker is being spawned and connected.
	StateStarting State = iota

	// StateReady indicates both capability sessions are established.
	StateReady

	// StateServing indicates the RPC server is accepting requests.
	StateServing

	// StateStopping indicates teardown is in progress.
	StateStopping

	// StateStopped indicates the service has fully shut down.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateServing:
		return "serving"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true if the service is starting up or serving.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateReady || s == StateServing
}

// IsTerminal returns true if the state is a terminal state (stopped).
func (s State) IsTerminal() bool {
	return s == StateStopped
}
