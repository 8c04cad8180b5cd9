package triage

import (
	"context"
	"fmt"
)

// ClassificationError reports that the classification capability returned
// unusable output (malformed, or outside the enumerated intent/urgency
// values). It is surfaced to the caller, never silently defaulted.
type ClassificationError struct {
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("classification failed: %s", e.Reason)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Classifier is the external classification capability.
type Classifier interface {
	Classify(ctx context.Context, emailContent, senderEmail string) (Classification, error)
}

// Drafter is the external drafting capability.
type Drafter interface {
	Draft(ctx context.Context, prompt string) (string, error)
}

// Searcher is the external knowledge-search capability. Search never fails
// the caller: internal errors surface as diagnostic result strings.
type Searcher interface {
	Search(ctx context.Context, query string) []string
}

// Sender delivers the final reply. The production implementation is a stub
// that logs the outgoing message.
type Sender interface {
	Send(ctx context.Context, recipient, body string) error
}
