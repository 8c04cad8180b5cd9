// Package session drives a compiled workflow graph as resumable sessions.
// Each session is a single run of the workflow: started once, checkpointed
// after every step, optionally suspended for human input, and resumed from
// its latest durable checkpoint.
package session

import "fmt"

// Status is the lifecycle state of a session.
type Status int

const (
	// StatusNotStarted means no checkpoint exists yet for the session.
	StatusNotStarted Status = iota
	// StatusRunning means the session has checkpoints but has neither
	// terminated nor suspended.
	StatusRunning
	// StatusSuspended means the session is paused awaiting resume data.
	StatusSuspended
	// StatusTerminated means the session reached END.
	StatusTerminated
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "NOT_STARTED"
	case StatusRunning:
		return "RUNNING"
	case StatusSuspended:
		return "SUSPENDED"
	case StatusTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// InvalidStateError is returned when an operation is not legal in the
// session's current status: starting a session twice, or resuming a session
// that is not suspended. The session is left unchanged.
type InvalidStateError struct {
	SessionID string
	Status    Status
	Op        string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s session %s in status %s", e.Op, e.SessionID, e.Status)
}

// Snapshot is the result of inspecting a session.
type Snapshot[S any] struct {
	// SessionID identifies the session.
	SessionID string

	// Status is the session's lifecycle state.
	Status Status

	// Node is the node recorded by the latest checkpoint. For a suspended
	// session it is the node awaiting resume data.
	Node string

	// Seq is the sequence number of the latest checkpoint.
	Seq int

	// State is the accumulated workflow state at the latest checkpoint.
	State S

	// Payload is the pending suspension payload, present only when Status
	// is StatusSuspended.
	Payload any
}
