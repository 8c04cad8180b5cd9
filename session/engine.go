package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/mailtriage/graph"
	"github.com/smallnest/mailtriage/log"
	"github.com/smallnest/mailtriage/store"
)

// Engine executes sessions of a compiled workflow graph against a checkpoint
// store. Sessions are fully independent: the engine holds no cross-session
// state, so any number of sessions may run concurrently.
type Engine[S any] struct {
	runnable *graph.Runnable[S]
	store    store.CheckpointStore
	logger   log.Logger
}

// NewEngine creates an engine over a compiled graph and a checkpoint store.
func NewEngine[S any](runnable *graph.Runnable[S], checkpoints store.CheckpointStore) *Engine[S] {
	return &Engine[S]{
		runnable: runnable,
		store:    checkpoints,
		logger:   log.GetDefaultLogger(),
	}
}

// SetLogger replaces the engine's logger.
func (e *Engine[S]) SetLogger(logger log.Logger) {
	e.logger = logger
}

// NewSession returns a fresh opaque session id.
func (e *Engine[S]) NewSession() string {
	return uuid.NewString()
}

// Start begins a new session with the given initial state and drives it until
// it terminates or suspends. Starting a session that already has checkpoints
// fails with InvalidStateError and mutates nothing.
func (e *Engine[S]) Start(ctx context.Context, sessionID string, initial S) (*Snapshot[S], error) {
	_, err := e.store.Latest(ctx, sessionID)
	if err == nil {
		snap, ierr := e.Inspect(ctx, sessionID)
		status := StatusRunning
		if ierr == nil {
			status = snap.Status
		}
		return nil, &InvalidStateError{SessionID: sessionID, Status: status, Op: "start"}
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	e.logger.Info("session %s: starting", sessionID)
	return e.run(ctx, sessionID, initial, nil, 0)
}

// Resume continues a suspended session with externally supplied data. The
// suspended node is re-entered with the resume data injected. Resuming a
// session in any other status fails with InvalidStateError and mutates
// nothing.
func (e *Engine[S]) Resume(ctx context.Context, sessionID string, resumeData any) (*Snapshot[S], error) {
	latest, err := e.store.Latest(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &InvalidStateError{SessionID: sessionID, Status: StatusNotStarted, Op: "resume"}
		}
		return nil, err
	}
	if !latest.Suspended {
		status := StatusRunning
		if latest.Terminal {
			status = StatusTerminated
		}
		return nil, &InvalidStateError{SessionID: sessionID, Status: status, Op: "resume"}
	}

	state, err := decodeState[S](latest.State)
	if err != nil {
		return nil, fmt.Errorf("failed to decode checkpointed state: %w", err)
	}

	e.logger.Info("session %s: resuming at node %s", sessionID, latest.NodeName)
	config := &graph.Config{
		ResumeFrom:  []string{latest.NodeName},
		ResumeValue: resumeData,
	}
	return e.run(ctx, sessionID, state, config, latest.Seq)
}

// Inspect reports the session's status, its latest state snapshot, and the
// pending suspension payload if it is suspended. Inspect never mutates the
// session.
func (e *Engine[S]) Inspect(ctx context.Context, sessionID string) (*Snapshot[S], error) {
	latest, err := e.store.Latest(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &Snapshot[S]{SessionID: sessionID, Status: StatusNotStarted}, nil
		}
		return nil, err
	}

	state, err := decodeState[S](latest.State)
	if err != nil {
		return nil, fmt.Errorf("failed to decode checkpointed state: %w", err)
	}

	snap := &Snapshot[S]{
		SessionID: sessionID,
		Status:    StatusRunning,
		Node:      latest.NodeName,
		Seq:       latest.Seq,
		State:     state,
	}
	switch {
	case latest.Terminal:
		snap.Status = StatusTerminated
	case latest.Suspended:
		snap.Status = StatusSuspended
		snap.Payload = latest.Payload
	}
	return snap, nil
}

// History returns the session's checkpoints in execution order, usable as an
// execution log.
func (e *Engine[S]) History(ctx context.Context, sessionID string) ([]*store.Checkpoint, error) {
	return e.store.List(ctx, sessionID)
}

// Clear removes all durable traces of a session.
func (e *Engine[S]) Clear(ctx context.Context, sessionID string) error {
	return e.store.Clear(ctx, sessionID)
}

// run drives the graph from the given state, checkpointing after every
// completed superstep. seq is the sequence number of the last durable
// checkpoint, 0 for a fresh session.
func (e *Engine[S]) run(ctx context.Context, sessionID string, state S, config *graph.Config, seq int) (*Snapshot[S], error) {
	if config == nil {
		config = &graph.Config{}
	}
	if config.Configurable == nil {
		config.Configurable = map[string]any{}
	}
	config.Configurable["session_id"] = sessionID

	hooked := e.runnable.WithStepHook(func(ctx context.Context, nodes []string, stepState S) error {
		seq++
		nodeName := strings.Join(nodes, ",")
		e.logger.Debug("session %s: step %d completed node(s) %s", sessionID, seq, nodeName)
		return e.store.Save(ctx, &store.Checkpoint{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Seq:       seq,
			NodeName:  nodeName,
			State:     stepState,
			Timestamp: time.Now(),
		})
	})

	final, err := hooked.InvokeWithConfig(ctx, state, config)
	if err != nil {
		var interrupt *graph.GraphInterrupt
		if errors.As(err, &interrupt) {
			seq++
			cp := &store.Checkpoint{
				ID:        uuid.NewString(),
				SessionID: sessionID,
				Seq:       seq,
				NodeName:  interrupt.Node,
				Suspended: true,
				Payload:   interrupt.Value,
				State:     final,
				Timestamp: time.Now(),
			}
			if saveErr := e.store.Save(ctx, cp); saveErr != nil {
				return nil, saveErr
			}
			e.logger.Info("session %s: suspended at node %s", sessionID, interrupt.Node)
			return &Snapshot[S]{
				SessionID: sessionID,
				Status:    StatusSuspended,
				Node:      interrupt.Node,
				Seq:       seq,
				State:     final,
				Payload:   interrupt.Value,
			}, nil
		}
		return nil, err
	}

	seq++
	cp := &store.Checkpoint{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Seq:       seq,
		NodeName:  graph.END,
		Terminal:  true,
		State:     final,
		Timestamp: time.Now(),
	}
	if err := e.store.Save(ctx, cp); err != nil {
		return nil, err
	}

	e.logger.Info("session %s: terminated after %d steps", sessionID, seq)
	return &Snapshot[S]{
		SessionID: sessionID,
		Status:    StatusTerminated,
		Node:      graph.END,
		Seq:       seq,
		State:     final,
	}, nil
}

// decodeState converts a checkpointed state back into S. Backends that JSON
// round-trip the state return a map, so a JSON re-decode is the common path.
func decodeState[S any](raw any) (S, error) {
	if s, ok := raw.(S); ok {
		return s, nil
	}
	var s S
	data, err := json.Marshal(raw)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, err
	}
	return s, nil
}
