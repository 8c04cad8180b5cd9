// Package memory provides an in-memory checkpoint store, primarily for tests
// and single-process runs.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/smallnest/mailtriage/store"
)

// MemoryCheckpointStore implements store.CheckpointStore in process memory.
// Checkpoints are stored JSON-encoded so that readers always receive an
// isolated snapshot, never a pointer into the store.
type MemoryCheckpointStore struct {
	mu       sync.RWMutex
	sessions map[string][][]byte
}

// NewMemoryCheckpointStore creates a new in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		sessions: make(map[string][][]byte),
	}
}

// Save stores a checkpoint.
func (s *MemoryCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return &store.StorageError{Op: "save", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[checkpoint.SessionID] = append(s.sessions[checkpoint.SessionID], data)
	return nil
}

// Latest returns the highest-Seq checkpoint for a session.
func (s *MemoryCheckpointStore) Latest(ctx context.Context, sessionID string) (*store.Checkpoint, error) {
	checkpoints, err := s.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		return nil, store.ErrNotFound
	}
	return checkpoints[len(checkpoints)-1], nil
}

// List returns all checkpoints for a session in ascending Seq order.
// Saves already happen in Seq order, so insertion order is Seq order.
func (s *MemoryCheckpointStore) List(ctx context.Context, sessionID string) ([]*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}

	checkpoints := make([]*store.Checkpoint, 0, len(raw))
	for _, data := range raw {
		var cp store.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, &store.StorageError{Op: "list", Err: err}
		}
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, nil
}

// Clear removes all checkpoints for a session.
func (s *MemoryCheckpointStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
