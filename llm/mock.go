package llm

import (
	"context"
	"sync"

	"github.com/smallnest/mailtriage/triage"
)

// MockClassifier returns a fixed classification. Useful for tests and for
// running the workflow without an API key.
type MockClassifier struct {
	mu     sync.Mutex
	calls  int
	Result triage.Classification
	Err    error
}

var _ triage.Classifier = (*MockClassifier)(nil)

// Classify returns the configured result or error.
func (m *MockClassifier) Classify(ctx context.Context, emailContent, senderEmail string) (triage.Classification, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.Err != nil {
		return triage.Classification{}, m.Err
	}
	return m.Result, nil
}

// Calls returns how many times Classify was invoked.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockDrafter returns a fixed response and records the prompts it saw.
type MockDrafter struct {
	mu       sync.Mutex
	prompts  []string
	Response string
	Err      error
}

var _ triage.Drafter = (*MockDrafter)(nil)

// Draft returns the configured response or error.
func (m *MockDrafter) Draft(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// Prompts returns the prompts passed to Draft, in order.
func (m *MockDrafter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// MockSender records dispatched replies.
type MockSender struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

// SentMessage is one recorded dispatch.
type SentMessage struct {
	Recipient string
	Body      string
}

var _ triage.Sender = (*MockSender)(nil)

// Send records the message.
func (m *MockSender) Send(ctx context.Context, recipient, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{Recipient: recipient, Body: body})
	return nil
}

// Sent returns the recorded messages, in order.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// MockSearcher returns fixed search results.
type MockSearcher struct {
	mu      sync.Mutex
	queries []string
	Results []string
}

var _ triage.Searcher = (*MockSearcher)(nil)

// Search returns the configured results.
func (m *MockSearcher) Search(ctx context.Context, query string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	return append([]string(nil), m.Results...)
}

// Queries returns the queries passed to Search, in order.
func (m *MockSearcher) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}
