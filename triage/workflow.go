package triage

import (
	"github.com/smallnest/mailtriage/graph"
	"github.com/smallnest/mailtriage/session"
	"github.com/smallnest/mailtriage/store"
)

// BuildGraph wires the triage workflow:
//
//	intake → classify → {search_documentation ∥ bug_tracking} → draft
//	       → (review)? → dispatch → END
//
// The two classify successors fan out in parallel and both merge before
// draft runs. Draft and review route dynamically.
func BuildGraph(nodes *Nodes) *graph.StateGraph[EmailState] {
	g := graph.NewStateGraph[EmailState]()

	g.AddNode(NodeIntake, "Extract and parse email content", nodes.Intake)
	g.AddNode(NodeClassify, "Classify email intent and urgency", nodes.Classify)
	g.AddNode(NodeSearch, "Retrieve relevant documentation", nodes.SearchDocumentation)
	g.AddNode(NodeBug, "Create bug tracking ticket", nodes.BugTracking)
	g.AddNode(NodeDraft, "Generate response draft", nodes.Draft)
	g.AddNode(NodeReview, "Pause for human review", nodes.Review)
	g.AddNode(NodeDispatch, "Send the email response", nodes.Dispatch)

	g.SetStateMerger(MergeStates)
	g.SetEntryPoint(NodeIntake)

	g.AddEdge(NodeIntake, NodeClassify)
	g.AddEdge(NodeClassify, NodeSearch)
	g.AddEdge(NodeClassify, NodeBug)
	g.AddEdge(NodeSearch, NodeDraft)
	g.AddEdge(NodeBug, NodeDraft)
	// draft and review route dynamically; no static edges.
	g.AddEdge(NodeDispatch, graph.END)

	return g
}

// NewEngine compiles the triage graph and binds it to a checkpoint store.
func NewEngine(nodes *Nodes, checkpoints store.CheckpointStore) (*session.Engine[EmailState], error) {
	runnable, err := BuildGraph(nodes).Compile()
	if err != nil {
		return nil, err
	}
	return session.NewEngine(runnable, checkpoints), nil
}
