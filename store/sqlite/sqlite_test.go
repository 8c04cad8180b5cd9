package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/mailtriage/store"
)

func newTestStore(t *testing.T) *SqliteCheckpointStore {
	t.Helper()
	s, err := NewSqliteCheckpointStore(SqliteOptions{
		Path: filepath.Join(t.TempDir(), "checkpoints.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSqliteCheckpointStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Latest(ctx, "sess-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Save(ctx, &store.Checkpoint{
		ID:        "cp-1",
		SessionID: "sess-1",
		Seq:       1,
		NodeName:  "intake",
		State:     map[string]any{"email_content": "my login is broken"},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	err = s.Save(ctx, &store.Checkpoint{
		ID:        "cp-2",
		SessionID: "sess-1",
		Seq:       2,
		NodeName:  "review",
		Suspended: true,
		Payload:   map[string]any{"email_id": "email_1"},
		State:     map[string]any{"email_content": "my login is broken", "draft_response": "We are on it"},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	latest, err := s.Latest(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Seq)
	assert.True(t, latest.Suspended)

	payload, ok := latest.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "email_1", payload["email_id"])

	state, ok := latest.State.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "We are on it", state["draft_response"])

	list, err := s.List(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "intake", list[0].NodeName)

	require.NoError(t, s.Clear(ctx, "sess-1"))
	_, err = s.Latest(ctx, "sess-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDuplicateSeqRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := &store.Checkpoint{
		ID:        "cp-1",
		SessionID: "sess-1",
		Seq:       1,
		NodeName:  "intake",
		State:     map[string]any{},
		Timestamp: time.Now(),
	}
	require.NoError(t, s.Save(ctx, cp))

	dup := *cp
	dup.ID = "cp-1b"
	err := s.Save(ctx, &dup)
	var storageErr *store.StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, sessionID := range []string{"sess-a", "sess-b"} {
		err := s.Save(ctx, &store.Checkpoint{
			ID:        "cp-" + sessionID,
			SessionID: sessionID,
			Seq:       1,
			NodeName:  "intake",
			State:     map[string]any{"owner": sessionID},
			Timestamp: time.Now(),
		})
		require.NoError(t, err)
	}

	require.NoError(t, s.Clear(ctx, "sess-a"))

	_, err := s.Latest(ctx, "sess-a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	latest, err := s.Latest(ctx, "sess-b")
	require.NoError(t, err)
	assert.Equal(t, "sess-b", latest.State.(map[string]any)["owner"])
}
