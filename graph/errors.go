package graph

import "fmt"

// ConfigurationError reports a malformed graph definition. It is returned by
// AddNode for duplicate names and by Compile for invalid edge wiring; a graph
// that fails to compile must not be executed.
type ConfigurationError struct {
	// Node is the node the error relates to, if any.
	Node string
	// Reason describes what is wrong with the definition.
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("graph configuration error at node %s: %s", e.Node, e.Reason)
	}
	return fmt.Sprintf("graph configuration error: %s", e.Reason)
}

// GraphInterrupt is returned by Invoke when a node suspends execution.
// The caller inspects the payload, gathers external input, and resumes from
// Node with a resume value.
type GraphInterrupt struct {
	// Node that suspended.
	Node string
	// State at the time of suspension. The suspending node's update, if any,
	// has not been applied.
	State any
	// Value is the payload provided by the suspending node.
	Value any
}

func (e *GraphInterrupt) Error() string {
	return fmt.Sprintf("graph suspended at node %s", e.Node)
}
