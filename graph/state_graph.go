package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// StateGraph is a builder for a workflow graph over a state type S.
//
// Example usage:
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("classify", "Classify the input", classifyFn)
//	g.AddEdge("classify", "handle")
//	g.SetEntryPoint("classify")
//	runnable, err := g.Compile()
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]Node[S]

	// nodeOrder preserves registration order for deterministic merging
	nodeOrder []string

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// conditionalEdges maps a "From" node to a function deriving the "To" node
	conditionalEdges map[string]func(ctx context.Context, state S) string

	// entryPoint is the single edge out of the START pseudo-node
	entryPoint string

	// stateMerger merges partial updates into the current state
	stateMerger StateMerger[S]

	// errs accumulates definition errors, surfaced by Compile
	errs []error
}

// NewStateGraph creates a new, empty StateGraph for state type S.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
	}
}

// AddNode registers a step under a unique name. Registering the same name
// twice is a ConfigurationError, reported by Compile.
func (g *StateGraph[S]) AddNode(name string, description string, fn NodeFunc[S]) {
	if _, exists := g.nodes[name]; exists {
		g.errs = append(g.errs, &ConfigurationError{Node: name, Reason: "duplicate node name"})
		return
	}
	if name == START || name == END {
		g.errs = append(g.errs, &ConfigurationError{Node: name, Reason: "reserved node name"})
		return
	}
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
	g.nodeOrder = append(g.nodeOrder, name)
}

// AddEdge adds a static edge between the "from" and "to" nodes. Multiple
// static edges from the same node declare a parallel fan-out: every successor
// runs, and all of their updates are merged before any shared successor
// executes (join barrier).
func (g *StateGraph[S]) AddEdge(from, to string) {
	if from == START {
		g.SetEntryPoint(to)
		return
	}
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// AddConditionalEdge adds a conditional edge where the target node is derived
// from the state at runtime. A node may have either static edges or a
// conditional edge, not both.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	if _, exists := g.conditionalEdges[from]; exists {
		g.errs = append(g.errs, &ConfigurationError{Node: from, Reason: "duplicate conditional edge"})
		return
	}
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the node the START pseudo-node points at.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	if g.entryPoint != "" && g.entryPoint != name {
		g.errs = append(g.errs, &ConfigurationError{Node: START, Reason: "entry point set more than once"})
		return
	}
	g.entryPoint = name
}

// SetStateMerger sets the merge function applied to node updates. Without a
// merger, a superstep's updates replace the state in node order.
func (g *StateGraph[S]) SetStateMerger(merger StateMerger[S]) {
	g.stateMerger = merger
}

// Compile validates the graph definition and returns an executable Runnable.
func (g *StateGraph[S]) Compile() (*Runnable[S], error) {
	if len(g.errs) > 0 {
		return nil, g.errs[0]
	}
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, &ConfigurationError{Node: g.entryPoint, Reason: "entry point is not a registered node"}
	}

	staticOut := make(map[string]int)
	for _, edge := range g.edges {
		if edge.From == END {
			return nil, &ConfigurationError{Node: END, Reason: "END must not have outgoing edges"}
		}
		if _, ok := g.nodes[edge.From]; !ok {
			return nil, &ConfigurationError{Node: edge.From, Reason: "edge from unknown node"}
		}
		if edge.To != END {
			if _, ok := g.nodes[edge.To]; !ok {
				return nil, &ConfigurationError{Node: edge.To, Reason: "edge to unknown node"}
			}
		}
		staticOut[edge.From]++
	}
	for from := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return nil, &ConfigurationError{Node: from, Reason: "conditional edge from unknown node"}
		}
		if staticOut[from] > 0 {
			return nil, &ConfigurationError{Node: from, Reason: "node mixes static and conditional edges"}
		}
	}

	return &Runnable[S]{graph: g}, nil
}

// Runnable is a compiled, executable state graph.
type Runnable[S any] struct {
	graph *StateGraph[S]

	// stepHook, when set, runs after each superstep's updates are merged.
	// A hook error aborts the run; the failed superstep's state is not
	// considered committed by the caller.
	stepHook func(ctx context.Context, nodes []string, state S) error
}

// WithStepHook returns a Runnable that calls hook after every completed
// superstep. Used by the session engine to checkpoint durably.
func (r *Runnable[S]) WithStepHook(hook func(ctx context.Context, nodes []string, state S) error) *Runnable[S] {
	return &Runnable[S]{graph: r.graph, stepHook: hook}
}

// Invoke executes the compiled graph from its entry point.
func (r *Runnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the compiled graph with the given invocation
// config. When the config carries ResumeFrom, execution re-enters those nodes
// instead of the entry point; a ResumeValue becomes visible to the re-entered
// nodes through ResumeValue(ctx).
//
// On suspension the returned error is a *GraphInterrupt and the returned state
// is the last fully merged state.
func (r *Runnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	state := initialState
	currentNodes := []string{r.graph.entryPoint}

	if config != nil {
		ctx = WithConfig(ctx, config)
		if len(config.ResumeFrom) > 0 {
			currentNodes = config.ResumeFrom
		}
		if config.ResumeValue != nil {
			ctx = WithResumeValue(ctx, config.ResumeValue)
		}
	}

	for len(currentNodes) > 0 {
		active := make([]string, 0, len(currentNodes))
		for _, node := range currentNodes {
			if node != END {
				active = append(active, node)
			}
		}
		currentNodes = active
		if len(currentNodes) == 0 {
			break
		}

		results, err := r.executeSuperstep(ctx, currentNodes, state)
		if err != nil {
			var zero S
			return zero, err
		}

		// Suspension wins over everything else in the superstep: no update
		// from this superstep is applied.
		for i, res := range results {
			if res.Suspend != nil {
				return state, &GraphInterrupt{
					Node:  currentNodes[i],
					State: state,
					Value: res.Suspend.Value,
				}
			}
		}

		updates := make([]S, len(results))
		for i, res := range results {
			updates[i] = res.Update
		}
		state, err = r.mergeState(ctx, state, updates)
		if err != nil {
			var zero S
			return zero, err
		}

		if r.stepHook != nil {
			if err := r.stepHook(ctx, currentNodes, state); err != nil {
				return state, err
			}
		}

		currentNodes, err = r.determineNextNodes(ctx, currentNodes, state, results)
		if err != nil {
			var zero S
			return zero, err
		}
	}

	return state, nil
}

// executeSuperstep runs all current nodes concurrently and collects their
// results. Node updates never touch shared state here; merging happens after
// the barrier.
func (r *Runnable[S]) executeSuperstep(ctx context.Context, nodes []string, state S) ([]NodeResult[S], error) {
	results := make([]NodeResult[S], len(nodes))
	errs := make([]error, len(nodes))

	var wg sync.WaitGroup
	for i, nodeName := range nodes {
		node, ok := r.graph.nodes[nodeName]
		if !ok {
			errs[i] = fmt.Errorf("%w: %s", ErrNodeNotFound, nodeName)
			continue
		}

		idx := i
		n := node
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					errs[idx] = fmt.Errorf("panic in node %s: %v", n.Name, p)
				}
			}()

			res, err := n.Function(ctx, state)
			if err != nil {
				errs[idx] = fmt.Errorf("error in node %s: %w", n.Name, err)
				return
			}
			results[idx] = res
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// mergeState applies the superstep's updates to the current state.
func (r *Runnable[S]) mergeState(ctx context.Context, current S, updates []S) (S, error) {
	if r.graph.stateMerger != nil {
		state, err := r.graph.stateMerger(ctx, current, updates)
		if err != nil {
			var zero S
			return zero, fmt.Errorf("state merge failed: %w", err)
		}
		return state, nil
	}
	state := current
	if len(updates) > 0 {
		state = updates[len(updates)-1]
	}
	return state, nil
}

// determineNextNodes computes the next superstep from dynamic routing
// decisions, conditional edges, and static edges, in that priority order.
func (r *Runnable[S]) determineNextNodes(ctx context.Context, currentNodes []string, state S, results []NodeResult[S]) ([]string, error) {
	nextSet := make(map[string]bool)

	for i, nodeName := range currentNodes {
		if next := results[i].Next; next != "" {
			if r.hasStaticEdge(nodeName) {
				return nil, &ConfigurationError{Node: nodeName, Reason: "node mixes static edges with dynamic routing"}
			}
			if next != END {
				if _, ok := r.graph.nodes[next]; !ok {
					return nil, fmt.Errorf("%w: %s (routed from %s)", ErrNodeNotFound, next, nodeName)
				}
			}
			nextSet[next] = true
			continue
		}

		if condition, ok := r.graph.conditionalEdges[nodeName]; ok {
			next := condition(ctx, state)
			if next == "" {
				return nil, fmt.Errorf("conditional edge returned empty next node from %s", nodeName)
			}
			nextSet[next] = true
			continue
		}

		found := false
		for _, edge := range r.graph.edges {
			if edge.From == nodeName {
				nextSet[edge.To] = true
				found = true
				// No break: multiple edges from one node fan out.
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, nodeName)
		}
	}

	next := make([]string, 0, len(nextSet))
	for node := range nextSet {
		next = append(next, node)
	}
	sort.Strings(next)
	return next, nil
}

func (r *Runnable[S]) hasStaticEdge(from string) bool {
	for _, edge := range r.graph.edges {
		if edge.From == from {
			return true
		}
	}
	return false
}
