package apogee

// SubsystemState is the lifecycle state of a registered subsystem.
//
// The state machine is:
//
//	Inactive --(start requested & readiness go)--> Starting
//	Starting --(Init succeeds)--> Running
//	Starting --(Init fails)--> Error
//	Running  --(stop requested & no dependents active)--> Stopping
//	Stopping --(Shutdown returns & workers joined)--> Inactive
//	Error    --(manual Reset only)--> Inactive
//
// Inactive and Error are terminal for the cycle: there is no automatic retry.
type SubsystemState int

const (
	// StateInactive means the subsystem is registered but not running.
	StateInactive SubsystemState = iota
	// StateStarting means the subsystem's Init callback is in flight.
	StateStarting
	// StateRunning means the subsystem is fully operational.
	StateRunning
	// StateStopping means a stop was accepted and shutdown is in flight.
	StateStopping
	// StateError means Init failed; a manual Reset is required before the
	// subsystem may be started again.
	StateError
)

var stateStrings = [...]string{
	StateInactive: "Inactive",
	StateStarting: "Starting",
	StateRunning:  "Running",
	StateStopping: "Stopping",
	StateError:    "Error",
}

// String returns the human-readable name of the state.
func (s SubsystemState) String() string {
	if s < StateInactive || s > StateError {
		return "Unknown"
	}
	return stateStrings[s]
}
