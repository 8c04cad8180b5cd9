package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/smallnest/mailtriage/graph"
	"github.com/smallnest/mailtriage/log"
)

// Node names in the triage workflow.
const (
	NodeIntake   = "intake"
	NodeClassify = "classify"
	NodeSearch   = "search_documentation"
	NodeBug      = "bug_tracking"
	NodeDraft    = "draft"
	NodeReview   = "review"
	NodeDispatch = "dispatch"
)

// ReviewDecision is the resume data supplied by the human reviewer.
type ReviewDecision struct {
	Approved       bool   `json:"approved"`
	EditedResponse string `json:"edited_response,omitempty"`
}

// ReviewPayload is the suspension payload surfaced to the reviewer.
type ReviewPayload struct {
	EmailID       string  `json:"email_id"`
	OriginalEmail string  `json:"original_email"`
	DraftResponse string  `json:"draft_response"`
	Urgency       Urgency `json:"urgency"`
	Intent        Intent  `json:"intent"`
	Action        string  `json:"action"`
}

// Nodes bundles the workflow's step functions with their external
// capabilities. Capabilities are constructed once at process start and passed
// in explicitly; there is no ambient client.
type Nodes struct {
	Classifier Classifier
	Drafter    Drafter
	Searcher   Searcher
	Sender     Sender
	Logger     log.Logger
}

func (n *Nodes) logger() log.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return log.GetDefaultLogger()
}

// Intake normalizes the raw email input. Currently a no-op transform; it
// never fails on well-formed input.
func (n *Nodes) Intake(ctx context.Context, state EmailState) (graph.NodeResult[EmailState], error) {
	return graph.Continue(EmailState{
		EmailContent: strings.TrimSpace(state.EmailContent),
	}), nil
}

// Classify invokes the classification capability and validates the result
// against the enumerated intent and urgency values.
func (n *Nodes) Classify(ctx context.Context, state EmailState) (graph.NodeResult[EmailState], error) {
	classification, err := n.Classifier.Classify(ctx, state.EmailContent, state.SenderEmail)
	if err != nil {
		return graph.NodeResult[EmailState]{}, err
	}
	if err := classification.Validate(); err != nil {
		return graph.NodeResult[EmailState]{}, err
	}

	n.logger().Debug("email %s classified as intent=%s urgency=%s", state.EmailID, classification.Intent, classification.Urgency)
	return graph.Continue(EmailState{Classification: &classification}), nil
}

// SearchDocumentation queries the knowledge-search capability. It always
// succeeds: zero matches and internal lookup failures both surface as result
// strings consumed downstream by Draft.
func (n *Nodes) SearchDocumentation(ctx context.Context, state EmailState) (graph.NodeResult[EmailState], error) {
	query := state.EmailContent
	if state.Classification != nil && state.Classification.Topic != "" {
		query = state.Classification.Topic
	}

	results := n.Searcher.Search(ctx, query)
	if len(results) == 0 {
		results = []string{"No relevant documentation found."}
	}
	return graph.Continue(EmailState{SearchResults: results}), nil
}

// BugTracking synthesizes a new unique ticket identifier. A ticket is created
// for every email regardless of intent.
func (n *Nodes) BugTracking(ctx context.Context, state EmailState) (graph.NodeResult[EmailState], error) {
	ticketID := "BUG_" + uuid.NewString()
	return graph.Continue(EmailState{TicketID: ticketID}), nil
}

// Draft invokes the drafting capability with the email, its classification,
// and all accumulated context, then routes to review or dispatch depending on
// whether the classification requires human escalation.
func (n *Nodes) Draft(ctx context.Context, state EmailState) (graph.NodeResult[EmailState], error) {
	response, err := n.Drafter.Draft(ctx, DraftPrompt(state))
	if err != nil {
		return graph.NodeResult[EmailState]{}, fmt.Errorf("drafting failed: %w", err)
	}

	update := EmailState{DraftResponse: response}
	if state.Classification != nil && state.Classification.NeedsReview() {
		n.logger().Info("email %s needs approval", state.EmailID)
		return graph.Goto(update, NodeReview), nil
	}
	return graph.Goto(update, NodeDispatch), nil
}

// Review pauses for human review. On first entry it suspends with the draft
// and classification; on resume it applies the reviewer's decision: approved
// replies (optionally edited) go to dispatch, rejected replies end the
// workflow with no further state change.
func (n *Nodes) Review(ctx context.Context, state EmailState) (graph.NodeResult[EmailState], error) {
	raw, ok := graph.ResumeValue(ctx)
	if !ok {
		var urgency Urgency
		var intent Intent
		if state.Classification != nil {
			urgency = state.Classification.Urgency
			intent = state.Classification.Intent
		}
		return graph.Suspend[EmailState](&ReviewPayload{
			EmailID:       state.EmailID,
			OriginalEmail: state.EmailContent,
			DraftResponse: state.DraftResponse,
			Urgency:       urgency,
			Intent:        intent,
			Action:        "Please review and approve/edit this response",
		}), nil
	}

	decision, err := decodeDecision(raw)
	if err != nil {
		return graph.NodeResult[EmailState]{}, fmt.Errorf("invalid review decision: %w", err)
	}

	if !decision.Approved {
		n.logger().Info("email %s rejected by reviewer, ending without sending", state.EmailID)
		return graph.Goto(EmailState{}, graph.END), nil
	}

	response := state.DraftResponse
	if decision.EditedResponse != "" {
		response = decision.EditedResponse
	}
	return graph.Goto(EmailState{DraftResponse: response}, NodeDispatch), nil
}

// Dispatch sends the final reply. It always succeeds and marks the session
// terminal via the graph reaching END.
func (n *Nodes) Dispatch(ctx context.Context, state EmailState) (graph.NodeResult[EmailState], error) {
	if err := n.Sender.Send(ctx, state.SenderEmail, state.DraftResponse); err != nil {
		return graph.NodeResult[EmailState]{}, fmt.Errorf("dispatch failed: %w", err)
	}
	return graph.Continue(EmailState{}), nil
}

// DraftPrompt builds the drafting prompt from the email and all accumulated
// context.
func DraftPrompt(state EmailState) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Draft a response to this customer email:\n%s\n\n", state.EmailContent)

	intent, urgency := "unknown", "medium"
	if state.Classification != nil {
		intent = string(state.Classification.Intent)
		urgency = string(state.Classification.Urgency)
	}
	fmt.Fprintf(&sb, "Email intent: %s\nUrgency level: %s\n\n", intent, urgency)

	if len(state.SearchResults) > 0 {
		sb.WriteString("Relevant documentation:\n")
		for _, doc := range state.SearchResults {
			fmt.Fprintf(&sb, "- %s\n", doc)
		}
		sb.WriteString("\n")
	}
	if state.CustomerHistory != nil {
		tier := "standard"
		if t, ok := state.CustomerHistory["tier"].(string); ok {
			tier = t
		}
		fmt.Fprintf(&sb, "Customer tier: %s\n\n", tier)
	}

	sb.WriteString("Guidelines:\n")
	sb.WriteString("- Be professional and helpful\n")
	sb.WriteString("- Address their specific concern\n")
	sb.WriteString("- Use the provided documentation when relevant\n")
	sb.WriteString("- Be brief\n")
	return sb.String()
}

// decodeDecision accepts a ReviewDecision directly or any JSON-shaped value
// (e.g. a map restored from a checkpoint store).
func decodeDecision(raw any) (ReviewDecision, error) {
	switch v := raw.(type) {
	case ReviewDecision:
		return v, nil
	case *ReviewDecision:
		return *v, nil
	default:
		var decision ReviewDecision
		data, err := json.Marshal(raw)
		if err != nil {
			return decision, err
		}
		if err := json.Unmarshal(data, &decision); err != nil {
			return decision, err
		}
		return decision, nil
	}
}
