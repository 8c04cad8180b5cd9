// Package kb implements the knowledge-base collaborator: a flat JSON file of
// documents with case-insensitive keyword search. Search never fails its
// caller; internal errors surface as diagnostic result strings so the
// workflow degrades instead of aborting.
package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/smallnest/mailtriage/triage"
)

// Document is one knowledge-base record.
type Document struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

// Store is a file-backed knowledge base.
type Store struct {
	path string
	mu   sync.Mutex
}

var _ triage.Searcher = (*Store)(nil)

// Open opens the knowledge base at path, seeding it with the default
// documents if the file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save(DefaultDocuments()); err != nil {
			return nil, fmt.Errorf("failed to seed knowledge base: %w", err)
		}
	}
	return s, nil
}

// Search returns the documents matching the query by case-insensitive keyword
// match on content or id. Zero matches and internal failures are both valid,
// non-error results.
func (s *Store) Search(ctx context.Context, query string) []string {
	docs, err := s.load()
	if err != nil {
		return []string{fmt.Sprintf("Error loading documentation: %v", err)}
	}
	if len(docs) == 0 {
		return []string{"Knowledge base is empty."}
	}

	queryLower := strings.ToLower(query)
	var results []string
	for _, doc := range docs {
		if strings.Contains(strings.ToLower(doc.Content), queryLower) ||
			strings.Contains(strings.ToLower(doc.ID), queryLower) {
			results = append(results, formatDoc(doc))
		}
	}
	if len(results) == 0 {
		return []string{"No relevant documentation found."}
	}
	return results
}

// AddDocument appends a new document, rejecting duplicate ids.
func (s *Store) AddDocument(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range docs {
		if existing.ID == doc.ID {
			return fmt.Errorf("document with ID %q already exists", doc.ID)
		}
	}
	return s.save(append(docs, doc))
}

// ListAll returns a one-line-per-document summary of the knowledge base.
func (s *Store) ListAll() (string, error) {
	docs, err := s.load()
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "The knowledge base is empty.", nil
	}

	lines := make([]string, 0, len(docs))
	for _, doc := range docs {
		content := doc.Content
		if len(content) > 50 {
			content = content[:50] + "..."
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", doc.ID, content))
	}
	return strings.Join(lines, "\n"), nil
}

func formatDoc(doc Document) string {
	category := doc.Category
	if category == "" {
		category = "General"
	}
	return fmt.Sprintf("Doc ID %s (%s): %s", doc.ID, category, doc.Content)
}

func (s *Store) load() ([]Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) save(docs []Document) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".kb-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// DefaultDocuments is the seed content written on first open.
func DefaultDocuments() []Document {
	return []Document{
		{
			ID:       "8492",
			Category: "Billing Policy",
			Content:  "If a user reports being double-charged, verify their subscription status. If duplicate charges exist within a 24-hour window, automatically approve the refund for the most recent charge. Inform the customer that refunds take 7-8 business days to process.",
		},
		{
			ID:       "1022",
			Category: "Known Bugs",
			Content:  "We are currently tracking a 'blank white screen on login' issue (Internal Ticket #UI-992). Workaround: Ask the user to clear their browser cache or use an Incognito/Private window. A permanent fix is scheduled for Patch 2.4 tomorrow.",
		},
		{
			ID:       "2271",
			Category: "Known Bugs",
			Content:  "We are currently tracking a submission error when users try and fill our gifting form.",
		},
		{
			ID:       "551",
			Category: "General Tone",
			Content:  "Always apologize for billing errors and express empathy when users are blocked by technical bugs.",
		},
	}
}
