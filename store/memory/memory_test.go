package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/mailtriage/store"
)

func checkpoint(sessionID string, seq int) *store.Checkpoint {
	return &store.Checkpoint{
		ID:        fmt.Sprintf("cp-%s-%d", sessionID, seq),
		SessionID: sessionID,
		Seq:       seq,
		NodeName:  "classify",
		State:     map[string]any{"email_id": "email_1", "seq": seq},
		Timestamp: time.Now(),
	}
}

func TestMemoryCheckpointStore(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	_, err := s.Latest(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Save(ctx, checkpoint("sess-1", 1)))
	require.NoError(t, s.Save(ctx, checkpoint("sess-1", 2)))
	require.NoError(t, s.Save(ctx, checkpoint("sess-1", 3)))

	latest, err := s.Latest(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Seq)

	list, err := s.List(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 1, list[0].Seq)
	assert.Equal(t, 3, list[2].Seq)

	require.NoError(t, s.Clear(ctx, "sess-1"))
	_, err = s.Latest(ctx, "sess-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIdempotentReads(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, checkpoint("sess-1", 1)))

	first, err := s.Latest(ctx, "sess-1")
	require.NoError(t, err)
	second, err := s.Latest(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Mutating a returned snapshot must not leak into the store.
	first.State.(map[string]any)["email_id"] = "tampered"
	again, err := s.Latest(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "email_1", again.State.(map[string]any)["email_id"])
}

func TestConcurrentSessions(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		sessionID := fmt.Sprintf("sess-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seq := 1; seq <= 5; seq++ {
				assert.NoError(t, s.Save(ctx, checkpoint(sessionID, seq)))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		latest, err := s.Latest(ctx, fmt.Sprintf("sess-%d", i))
		require.NoError(t, err)
		assert.Equal(t, 5, latest.Seq)
	}
}
