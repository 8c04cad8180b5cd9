// Package sqlite provides a checkpoint store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/mailtriage/store"
)

// SqliteCheckpointStore implements store.CheckpointStore using SQLite.
type SqliteCheckpointStore struct {
	db        *sql.DB
	tableName string
}

// SqliteOptions configuration for the SQLite connection.
type SqliteOptions struct {
	Path      string
	TableName string // Default "checkpoints"
}

// NewSqliteCheckpointStore creates a new SQLite checkpoint store.
func NewSqliteCheckpointStore(opts SqliteOptions) (*SqliteCheckpointStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, &store.StorageError{Op: "init", Err: err}
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}

	s := &SqliteCheckpointStore{db: db, tableName: tableName}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the checkpoint table if it does not exist.
func (s *SqliteCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			node_name TEXT NOT NULL,
			terminal INTEGER NOT NULL,
			suspended INTEGER NOT NULL,
			payload TEXT,
			state TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			UNIQUE (session_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return &store.StorageError{Op: "init", Err: err}
	}
	return nil
}

// Close closes the database connection.
func (s *SqliteCheckpointStore) Close() error {
	return s.db.Close()
}

// Save stores a checkpoint. The insert is a single statement, so the
// checkpoint becomes visible atomically or not at all.
func (s *SqliteCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	stateJSON, err := json.Marshal(checkpoint.State)
	if err != nil {
		return &store.StorageError{Op: "save", Err: err}
	}
	payloadJSON, err := json.Marshal(checkpoint.Payload)
	if err != nil {
		return &store.StorageError{Op: "save", Err: err}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, seq, node_name, terminal, suspended, payload, state, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		checkpoint.ID,
		checkpoint.SessionID,
		checkpoint.Seq,
		checkpoint.NodeName,
		boolToInt(checkpoint.Terminal),
		boolToInt(checkpoint.Suspended),
		string(payloadJSON),
		string(stateJSON),
		checkpoint.Timestamp,
	)
	if err != nil {
		return &store.StorageError{Op: "save", Err: err}
	}
	return nil
}

// Latest returns the highest-Seq checkpoint for a session.
func (s *SqliteCheckpointStore) Latest(ctx context.Context, sessionID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, seq, node_name, terminal, suspended, payload, state, timestamp
		FROM %s
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, s.tableName)

	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, &store.StorageError{Op: "latest", Err: err}
	}
	return cp, nil
}

// List returns all checkpoints for a session in ascending Seq order.
func (s *SqliteCheckpointStore) List(ctx context.Context, sessionID string) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, seq, node_name, terminal, suspended, payload, state, timestamp
		FROM %s
		WHERE session_id = ?
		ORDER BY seq ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, &store.StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var checkpoints []*store.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, &store.StorageError{Op: "list", Err: err}
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.StorageError{Op: "list", Err: err}
	}
	return checkpoints, nil
}

// Clear removes all checkpoints for a session.
func (s *SqliteCheckpointStore) Clear(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return &store.StorageError{Op: "clear", Err: err}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*store.Checkpoint, error) {
	var cp store.Checkpoint
	var terminal, suspended int
	var payloadJSON, stateJSON string

	err := row.Scan(
		&cp.ID,
		&cp.SessionID,
		&cp.Seq,
		&cp.NodeName,
		&terminal,
		&suspended,
		&payloadJSON,
		&stateJSON,
		&cp.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	cp.Terminal = terminal != 0
	cp.Suspended = suspended != 0
	if payloadJSON != "" && payloadJSON != "null" {
		if err := json.Unmarshal([]byte(payloadJSON), &cp.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &cp, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
