// Package graph implements a directed workflow graph with typed state,
// static and dynamic routing, parallel fan-out with a join barrier, and
// cooperative suspension for human-in-the-loop steps.
package graph

import (
	"context"
	"errors"
)

// START is the name of the pseudo-node every graph enters through.
const START = "START"

// END is a special constant used to represent the terminal node in the graph.
const END = "END"

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")
)

// Node represents a named step in the graph.
type Node[S any] struct {
	// Name is the unique identifier for the node.
	Name string

	// Description describes the functionality of the node.
	Description string

	// Function is the step function associated with the node.
	Function NodeFunc[S]
}

// NodeFunc is the signature of a step function. It receives the full current
// state and returns a NodeResult describing the partial update and, optionally,
// a routing or suspension decision.
type NodeFunc[S any] func(ctx context.Context, state S) (NodeResult[S], error)

// Edge represents a static edge in the graph. A node with multiple static
// edges fans out to all of its successors in parallel.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}

// StateMerger merges partial updates into the current state. It is called once
// per superstep with the updates produced by all nodes that ran in that
// superstep, in registration order. A merger must never drop fields that are
// absent from an update.
type StateMerger[S any] func(ctx context.Context, current S, updates []S) (S, error)

// NodeResult is the tagged result of a step function.
//
// Exactly one of three shapes is meaningful:
//   - Continue: a partial update, routing follows static edges.
//   - Goto: a partial update plus an explicit next node.
//   - Suspend: no update; execution halts until resumed with external data.
type NodeResult[S any] struct {
	// Update is the partial state update to merge.
	Update S

	// Next overrides static edges when non-empty. END terminates the run.
	Next string

	// Suspend, when non-nil, halts the run and surfaces the payload to the
	// caller. The update is not applied.
	Suspend *Suspension
}

// Suspension carries the payload a suspending node hands to the caller.
type Suspension struct {
	// Value is the opaque payload describing what is needed from the human.
	Value any
}

// Continue returns a result that merges update and follows static edges.
func Continue[S any](update S) NodeResult[S] {
	return NodeResult[S]{Update: update}
}

// Goto returns a result that merges update and jumps to the named node.
func Goto[S any](update S, next string) NodeResult[S] {
	return NodeResult[S]{Update: update, Next: next}
}

// Suspend returns a result that halts execution and surfaces value to the
// caller. The suspended node is re-entered on resume.
func Suspend[S any](value any) NodeResult[S] {
	return NodeResult[S]{Suspend: &Suspension{Value: value}}
}
