// Package store defines the checkpoint model and the persistence interface
// shared by all checkpoint backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a session has no checkpoints.
var ErrNotFound = errors.New("checkpoint not found")

// StorageError wraps a backend failure during a checkpoint read or write.
// The operation is fatal; the session's last durable checkpoint remains the
// source of truth.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("checkpoint storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Checkpoint is a durable snapshot of a session after a completed step.
// Checkpoints for a session form a total order by Seq; resuming always
// continues from the highest-Seq checkpoint.
type Checkpoint struct {
	// ID uniquely identifies this checkpoint.
	ID string `json:"id"`

	// SessionID identifies the workflow run the checkpoint belongs to.
	SessionID string `json:"session_id"`

	// Seq is the position of this checkpoint in the session's total order,
	// starting at 1.
	Seq int `json:"seq"`

	// NodeName is the node that produced this snapshot. For a suspended
	// checkpoint it is the node awaiting resume data.
	NodeName string `json:"node_name"`

	// Terminal marks the session as finished; no further steps will run.
	Terminal bool `json:"terminal"`

	// Suspended marks the session as paused awaiting external input.
	Suspended bool `json:"suspended"`

	// Payload is the suspension payload, present only when Suspended.
	Payload any `json:"payload,omitempty"`

	// State is the full accumulated workflow state at this point.
	State any `json:"state"`

	// Timestamp records when the checkpoint was written.
	Timestamp time.Time `json:"timestamp"`
}

// CheckpointStore persists checkpoints keyed by session id. Implementations
// must be safe for concurrent use by independent sessions and must write
// atomically: a partially written checkpoint must never become visible.
type CheckpointStore interface {
	// Save stores a checkpoint.
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Latest returns the highest-Seq checkpoint for a session, or
	// ErrNotFound if the session has none. Reads are idempotent: two reads
	// without an intervening write return identical snapshots.
	Latest(ctx context.Context, sessionID string) (*Checkpoint, error)

	// List returns all checkpoints for a session in ascending Seq order.
	List(ctx context.Context, sessionID string) ([]*Checkpoint, error)

	// Clear removes all checkpoints for a session.
	Clear(ctx context.Context, sessionID string) error
}
