package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/mailtriage/graph"
	"github.com/smallnest/mailtriage/log"
	"github.com/smallnest/mailtriage/store/memory"
)

type approvalState struct {
	Input    string `json:"input"`
	Output   string `json:"output"`
	Approved bool   `json:"approved"`
}

// buildApprovalGraph compiles a three-step workflow whose middle step
// suspends for approval unless auto is true.
func buildApprovalGraph(t *testing.T, auto bool) *graph.Runnable[approvalState] {
	t.Helper()

	g := graph.NewStateGraph[approvalState]()
	g.AddNode("process", "", func(ctx context.Context, s approvalState) (graph.NodeResult[approvalState], error) {
		s.Output = "processed:" + s.Input
		return graph.Continue(s), nil
	})
	g.AddNode("approve", "", func(ctx context.Context, s approvalState) (graph.NodeResult[approvalState], error) {
		if auto {
			s.Approved = true
			return graph.Goto(s, "finish"), nil
		}
		decision, ok := graph.ResumeValue(ctx)
		if !ok {
			return graph.Suspend[approvalState](map[string]any{"output": s.Output}), nil
		}
		if decision.(bool) {
			s.Approved = true
			return graph.Goto(s, "finish"), nil
		}
		return graph.Goto(s, graph.END), nil
	})
	g.AddNode("finish", "", func(ctx context.Context, s approvalState) (graph.NodeResult[approvalState], error) {
		s.Output += ":done"
		return graph.Continue(s), nil
	})
	g.SetEntryPoint("process")
	g.AddEdge("process", "approve")
	// approve routes dynamically to finish or END.
	g.AddEdge("finish", graph.END)

	runnable, err := g.Compile()
	require.NoError(t, err)
	return runnable
}

func newEngine(t *testing.T, auto bool) *Engine[approvalState] {
	t.Helper()
	e := NewEngine(buildApprovalGraph(t, auto), memory.NewMemoryCheckpointStore())
	e.SetLogger(&log.NoOpLogger{})
	return e
}

func TestStartRunsToTermination(t *testing.T) {
	e := newEngine(t, true)
	ctx := context.Background()
	sessionID := e.NewSession()

	snap, err := e.Start(ctx, sessionID, approvalState{Input: "x"})
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, snap.Status)
	assert.Equal(t, "processed:x:done", snap.State.Output)
	assert.Nil(t, snap.Payload)

	inspected, err := e.Inspect(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, inspected.Status)
	assert.Equal(t, "processed:x:done", inspected.State.Output)
}

func TestStartSuspends(t *testing.T) {
	e := newEngine(t, false)
	ctx := context.Background()
	sessionID := e.NewSession()

	snap, err := e.Start(ctx, sessionID, approvalState{Input: "x"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, snap.Status)
	assert.Equal(t, "approve", snap.Node)

	payload, ok := snap.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "processed:x", payload["output"])

	inspected, err := e.Inspect(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, inspected.Status)
	assert.NotNil(t, inspected.Payload)
}

func TestDoubleStartRejected(t *testing.T) {
	e := newEngine(t, true)
	ctx := context.Background()
	sessionID := e.NewSession()

	_, err := e.Start(ctx, sessionID, approvalState{Input: "x"})
	require.NoError(t, err)

	before, err := e.Inspect(ctx, sessionID)
	require.NoError(t, err)

	_, err = e.Start(ctx, sessionID, approvalState{Input: "y"})
	var invalid *InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "start", invalid.Op)

	// Rejected start must not mutate the session.
	after, err := e.Inspect(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestResumeNotSuspendedRejected(t *testing.T) {
	ctx := context.Background()

	t.Run("not started", func(t *testing.T) {
		e := newEngine(t, true)
		_, err := e.Resume(ctx, "nope", true)
		var invalid *InvalidStateError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, StatusNotStarted, invalid.Status)
	})

	t.Run("terminated", func(t *testing.T) {
		e := newEngine(t, true)
		sessionID := e.NewSession()
		_, err := e.Start(ctx, sessionID, approvalState{Input: "x"})
		require.NoError(t, err)

		_, err = e.Resume(ctx, sessionID, true)
		var invalid *InvalidStateError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, StatusTerminated, invalid.Status)
	})
}

func TestResumeApproved(t *testing.T) {
	e := newEngine(t, false)
	ctx := context.Background()
	sessionID := e.NewSession()

	_, err := e.Start(ctx, sessionID, approvalState{Input: "x"})
	require.NoError(t, err)

	snap, err := e.Resume(ctx, sessionID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, snap.Status)
	assert.True(t, snap.State.Approved)
	assert.Equal(t, "processed:x:done", snap.State.Output)
}

func TestResumeRejectedEndsWithoutFinish(t *testing.T) {
	e := newEngine(t, false)
	ctx := context.Background()
	sessionID := e.NewSession()

	_, err := e.Start(ctx, sessionID, approvalState{Input: "x"})
	require.NoError(t, err)

	snap, err := e.Resume(ctx, sessionID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, snap.Status)
	assert.False(t, snap.State.Approved)
	assert.Equal(t, "processed:x", snap.State.Output)
}

func TestHistoryOrdering(t *testing.T) {
	e := newEngine(t, true)
	ctx := context.Background()
	sessionID := e.NewSession()

	_, err := e.Start(ctx, sessionID, approvalState{Input: "x"})
	require.NoError(t, err)

	history, err := e.History(ctx, sessionID)
	require.NoError(t, err)
	// process, approve, finish, terminal marker
	require.Len(t, history, 4)
	for i, cp := range history {
		assert.Equal(t, i+1, cp.Seq)
	}
	assert.True(t, history[len(history)-1].Terminal)
}

func TestInspectNotStarted(t *testing.T) {
	e := newEngine(t, true)
	snap, err := e.Inspect(context.Background(), "unknown-session")
	require.NoError(t, err)
	assert.Equal(t, StatusNotStarted, snap.Status)
}
