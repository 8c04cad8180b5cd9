// Package file provides a checkpoint store backed by JSON files on disk.
// Each session gets its own directory; each checkpoint is one file named by
// its zero-padded sequence number. Writes go through a temp file and rename,
// so a checkpoint is either fully durable or absent.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smallnest/mailtriage/store"
)

// FileCheckpointStore implements store.CheckpointStore on the filesystem.
type FileCheckpointStore struct {
	root string
}

// NewFileCheckpointStore creates a file-based checkpoint store rooted at path.
func NewFileCheckpointStore(path string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, &store.StorageError{Op: "init", Err: err}
	}
	return &FileCheckpointStore{root: path}, nil
}

func (s *FileCheckpointStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// Save stores a checkpoint atomically via temp file + rename.
func (s *FileCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	dir := s.sessionDir(checkpoint.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &store.StorageError{Op: "save", Err: err}
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return &store.StorageError{Op: "save", Err: err}
	}

	final := filepath.Join(dir, fmt.Sprintf("%08d.json", checkpoint.Seq))
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return &store.StorageError{Op: "save", Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &store.StorageError{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &store.StorageError{Op: "save", Err: err}
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return &store.StorageError{Op: "save", Err: err}
	}
	return nil
}

// Latest returns the highest-Seq checkpoint for a session.
func (s *FileCheckpointStore) Latest(ctx context.Context, sessionID string) (*store.Checkpoint, error) {
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
func (s *FileCheckpointStore) List(ctx context.Context, sessionID string) ([]*store.Checkpoint, error) {
	dir := s.sessionDir(sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &store.StorageError{Op: "list", Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	checkpoints := make([]*store.Checkpoint, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, &store.StorageError{Op: "list", Err: err}
		}
		var cp store.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, &store.StorageError{Op: "list", Err: err}
		}
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, nil
}

// Clear removes all checkpoints for a session.
func (s *FileCheckpointStore) Clear(ctx context.Context, sessionID string) error {
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return &store.StorageError{Op: "clear", Err: err}
	}
	return nil
}
