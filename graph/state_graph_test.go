package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Value string
	Seen  []string
}

func appendNode(name string) NodeFunc[testState] {
	return func(ctx context.Context, state testState) (NodeResult[testState], error) {
		state.Value += name
		state.Seen = append(state.Seen, name)
		return Continue(state), nil
	}
}

func TestLinearExecution(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("A", "", appendNode("A"))
	g.AddNode("B", "", appendNode("B"))
	g.AddNode("C", "", appendNode("C"))
	g.SetEntryPoint("A")
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")
	g.AddEdge("C", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	res, err := runnable.Invoke(context.Background(), testState{Value: "start"})
	require.NoError(t, err)
	assert.Equal(t, "startABC", res.Value)
}

func TestDuplicateNodeName(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("A", "", appendNode("A"))
	g.AddNode("A", "", appendNode("A"))
	g.SetEntryPoint("A")
	g.AddEdge("A", END)

	_, err := g.Compile()
	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, "A", confErr.Node)
}

func TestEntryPointRequired(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("A", "", appendNode("A"))
	g.AddEdge("A", END)

	_, err := g.Compile()
	assert.ErrorIs(t, err, ErrEntryPointNotSet)
}

func TestMixedStaticAndConditionalEdges(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("A", "", appendNode("A"))
	g.AddNode("B", "", appendNode("B"))
	g.SetEntryPoint("A")
	g.AddEdge("A", "B")
	g.AddConditionalEdge("A", func(ctx context.Context, state testState) string { return "B" })
	g.AddEdge("B", END)

	_, err := g.Compile()
	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, "A", confErr.Node)
}

func TestEdgeFromEnd(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("A", "", appendNode("A"))
	g.SetEntryPoint("A")
	g.AddEdge("A", END)
	g.AddEdge(END, "A")

	_, err := g.Compile()
	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, END, confErr.Node)
}

func TestDynamicRouting(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("decide", "", func(ctx context.Context, state testState) (NodeResult[testState], error) {
		if state.Value == "left" {
			return Goto(state, "L"), nil
		}
		return Goto(state, "R"), nil
	})
	g.AddNode("L", "", appendNode("L"))
	g.AddNode("R", "", appendNode("R"))
	g.SetEntryPoint("decide")
	g.AddEdge("L", END)
	g.AddEdge("R", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	res, err := runnable.Invoke(context.Background(), testState{Value: "left"})
	require.NoError(t, err)
	assert.Equal(t, "leftL", res.Value)

	res, err = runnable.Invoke(context.Background(), testState{Value: "right"})
	require.NoError(t, err)
	assert.Equal(t, "rightR", res.Value)
}

func TestDynamicRouteToEnd(t *testing.T) {
	var ran atomic.Int32
	g := NewStateGraph[testState]()
	g.AddNode("decide", "", func(ctx context.Context, state testState) (NodeResult[testState], error) {
		return Goto(state, END), nil
	})
	g.AddNode("never", "", func(ctx context.Context, state testState) (NodeResult[testState], error) {
		ran.Add(1)
		return Continue(state), nil
	})
	g.SetEntryPoint("decide")
	g.AddEdge("never", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	_, err = runnable.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), ran.Load())
}

func TestConditionalEdge(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("A", "", appendNode("A"))
	g.AddNode("B", "", appendNode("B"))
	g.SetEntryPoint("A")
	g.AddConditionalEdge("A", func(ctx context.Context, state testState) string {
		if state.Value == "startA" {
			return "B"
		}
		return END
	})
	g.AddEdge("B", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	res, err := runnable.Invoke(context.Background(), testState{Value: "start"})
	require.NoError(t, err)
	assert.Equal(t, "startAB", res.Value)
}

func TestForkJoin(t *testing.T) {
	type forkState struct {
		Left  string
		Right string
		Join  int
	}

	merger := func(ctx context.Context, current forkState, updates []forkState) (forkState, error) {
		for _, u := range updates {
			if u.Left != "" {
				current.Left = u.Left
			}
			if u.Right != "" {
				current.Right = u.Right
			}
			if u.Join != 0 {
				current.Join = u.Join
			}
		}
		return current, nil
	}

	g := NewStateGraph[forkState]()
	g.AddNode("fork", "", func(ctx context.Context, state forkState) (NodeResult[forkState], error) {
		return Continue(state), nil
	})
	g.AddNode("left", "", func(ctx context.Context, state forkState) (NodeResult[forkState], error) {
		return Continue(forkState{Left: "L"}), nil
	})
	g.AddNode("right", "", func(ctx context.Context, state forkState) (NodeResult[forkState], error) {
		return Continue(forkState{Right: "R"}), nil
	})
	g.AddNode("join", "", func(ctx context.Context, state forkState) (NodeResult[forkState], error) {
		// Both branch updates must be visible here.
		if state.Left == "" || state.Right == "" {
			return NodeResult[forkState]{}, errors.New("join ran before both branches merged")
		}
		state.Join = 1
		return Continue(state), nil
	})
	g.SetStateMerger(merger)
	g.SetEntryPoint("fork")
	g.AddEdge("fork", "left")
	g.AddEdge("fork", "right")
	g.AddEdge("left", "join")
	g.AddEdge("right", "join")
	g.AddEdge("join", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	res, err := runnable.Invoke(context.Background(), forkState{})
	require.NoError(t, err)
	assert.Equal(t, "L", res.Left)
	assert.Equal(t, "R", res.Right)
	assert.Equal(t, 1, res.Join)
}

func TestSuspendAndResume(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("work", "", appendNode("W"))
	g.AddNode("approve", "", func(ctx context.Context, state testState) (NodeResult[testState], error) {
		decision, ok := ResumeValue(ctx)
		if !ok {
			return Suspend[testState](map[string]any{"question": "approve?"}), nil
		}
		if decision == "yes" {
			state.Value += "+approved"
			return Goto(state, "finish"), nil
		}
		return Goto(state, END), nil
	})
	g.AddNode("finish", "", appendNode("F"))
	g.SetEntryPoint("work")
	g.AddEdge("work", "approve")
	g.AddEdge("finish", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	res, err := runnable.Invoke(context.Background(), testState{Value: "start"})
	require.Error(t, err)

	var interrupt *GraphInterrupt
	require.ErrorAs(t, err, &interrupt)
	assert.Equal(t, "approve", interrupt.Node)
	assert.Equal(t, map[string]any{"question": "approve?"}, interrupt.Value)

	// Suspension must not apply any update from the suspended node.
	assert.Equal(t, "startW", res.Value)

	resumed, err := runnable.InvokeWithConfig(context.Background(), res, &Config{
		ResumeFrom:  []string{interrupt.Node},
		ResumeValue: "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, "startW+approvedF", resumed.Value)
}

func TestStepHook(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("A", "", appendNode("A"))
	g.AddNode("B", "", appendNode("B"))
	g.SetEntryPoint("A")
	g.AddEdge("A", "B")
	g.AddEdge("B", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	var steps []string
	hooked := runnable.WithStepHook(func(ctx context.Context, nodes []string, state testState) error {
		steps = append(steps, nodes...)
		return nil
	})

	_, err = hooked.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, steps)
}

func TestStepHookErrorAbortsRun(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("A", "", appendNode("A"))
	g.AddNode("B", "", appendNode("B"))
	g.SetEntryPoint("A")
	g.AddEdge("A", "B")
	g.AddEdge("B", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	hookErr := errors.New("disk full")
	hooked := runnable.WithStepHook(func(ctx context.Context, nodes []string, state testState) error {
		return hookErr
	})

	_, err = hooked.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, hookErr)
}

func TestNodeErrorPropagates(t *testing.T) {
	nodeErr := errors.New("boom")
	g := NewStateGraph[testState]()
	g.AddNode("A", "", func(ctx context.Context, state testState) (NodeResult[testState], error) {
		return NodeResult[testState]{}, nodeErr
	})
	g.SetEntryPoint("A")
	g.AddEdge("A", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	_, err = runnable.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, nodeErr)
}

func TestDrawMermaid(t *testing.T) {
	g := NewStateGraph[testState]()
	g.AddNode("A", "first step", appendNode("A"))
	g.AddNode("B", "", appendNode("B"))
	g.SetEntryPoint("A")
	g.AddEdge("A", "B")
	g.AddEdge("B", END)

	diagram := NewExporter(g).DrawMermaid()
	assert.Contains(t, diagram, "flowchart TD")
	assert.Contains(t, diagram, "START --> A")
	assert.Contains(t, diagram, "A --> B")
	assert.Contains(t, diagram, "B --> END")
}
