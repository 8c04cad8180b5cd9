// Package triage implements the email triage workflow: classify an inbound
// support email, gather supporting context, draft a reply, optionally pause
// for human approval, and dispatch the final reply.
package triage

import (
	"context"
	"fmt"
)

// Intent classifies what the customer wants.
type Intent string

const (
	IntentQuestion Intent = "question"
	IntentBug      Intent = "bug"
	IntentBilling  Intent = "billing"
	IntentFeature  Intent = "feature"
	IntentComplex  Intent = "complex"
)

// Valid reports whether the intent is one of the enumerated values.
func (i Intent) Valid() bool {
	switch i {
	case IntentQuestion, IntentBug, IntentBilling, IntentFeature, IntentComplex:
		return true
	}
	return false
}

// Urgency classifies how quickly the email needs attention.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Valid reports whether the urgency is one of the enumerated values.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Classification is the structured result of classifying an email.
type Classification struct {
	Intent  Intent  `json:"intent"`
	Urgency Urgency `json:"urgency"`
	Topic   string  `json:"topic"`
	Summary string  `json:"summary"`
}

// Validate checks the enumerated fields.
func (c Classification) Validate() error {
	if !c.Intent.Valid() {
		return &ClassificationError{Reason: fmt.Sprintf("invalid intent %q", c.Intent)}
	}
	if !c.Urgency.Valid() {
		return &ClassificationError{Reason: fmt.Sprintf("invalid urgency %q", c.Urgency)}
	}
	return nil
}

// NeedsReview is the single policy point controlling human-in-the-loop
// escalation: high or critical urgency, or a complex request.
func (c Classification) NeedsReview() bool {
	return c.Urgency == UrgencyHigh || c.Urgency == UrgencyCritical || c.Intent == IntentComplex
}

// EmailState is the workflow state threaded through every step. The three
// raw email fields are set at session creation; everything else is filled in
// by steps as partial updates.
type EmailState struct {
	// Raw email data
	EmailContent string `json:"email_content"`
	SenderEmail  string `json:"sender_email"`
	EmailID      string `json:"email_id"`

	// Classification result
	Classification *Classification `json:"classification,omitempty"`

	// Bug tracking
	TicketID string `json:"ticket_id,omitempty"`

	// Raw search results
	SearchResults   []string       `json:"search_results,omitempty"`
	CustomerHistory map[string]any `json:"customer_history,omitempty"`

	// Generated content
	DraftResponse string `json:"draft_response,omitempty"`
}

// MergeStates overlays partial updates onto the current state in order. A
// field set by an earlier step is never cleared: only fields present in an
// update overwrite. Used as the graph's state merger, including at the
// fork/join barrier where both branch updates land in the same superstep.
func MergeStates(ctx context.Context, current EmailState, updates []EmailState) (EmailState, error) {
	for _, u := range updates {
		if u.EmailContent != "" {
			current.EmailContent = u.EmailContent
		}
		if u.SenderEmail != "" {
			current.SenderEmail = u.SenderEmail
		}
		if u.EmailID != "" {
			current.EmailID = u.EmailID
		}
		if u.Classification != nil {
			current.Classification = u.Classification
		}
		if u.TicketID != "" {
			current.TicketID = u.TicketID
		}
		if u.SearchResults != nil {
			current.SearchResults = u.SearchResults
		}
		if u.CustomerHistory != nil {
			current.CustomerHistory = u.CustomerHistory
		}
		if u.DraftResponse != "" {
			current.DraftResponse = u.DraftResponse
		}
	}
	return current, nil
}
