// Package llm implements the triage language-model capabilities: structured
// email classification and reply drafting. Backends include the OpenAI API
// and any langchaingo model; a deterministic mock supports tests and demos.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallnest/mailtriage/triage"
)

// ClassifyPrompt builds the classification prompt for an email.
func ClassifyPrompt(emailContent, senderEmail string) string {
	var sb strings.Builder
	sb.WriteString("Analyze this customer email and classify it:\n\n")
	fmt.Fprintf(&sb, "Email: %s\n", emailContent)
	fmt.Fprintf(&sb, "From: %s\n\n", senderEmail)
	sb.WriteString("Respond with a JSON object with these fields:\n")
	sb.WriteString(`- "intent": one of "question", "bug", "billing", "feature", "complex"` + "\n")
	sb.WriteString(`- "urgency": one of "low", "medium", "high", "critical"` + "\n")
	sb.WriteString(`- "topic": a short topic label` + "\n")
	sb.WriteString(`- "summary": a one-sentence summary` + "\n")
	return sb.String()
}

// ParseClassification decodes a model response into a Classification and
// validates its enumerated fields. Any failure is a ClassificationError.
func ParseClassification(response string) (triage.Classification, error) {
	var classification triage.Classification

	payload := extractJSON(response)
	if payload == "" {
		return classification, &triage.ClassificationError{Reason: "no JSON object in model output"}
	}
	if err := json.Unmarshal([]byte(payload), &classification); err != nil {
		return classification, &triage.ClassificationError{Reason: "malformed model output", Err: err}
	}
	if err := classification.Validate(); err != nil {
		return classification, err
	}
	return classification, nil
}

// extractJSON returns the outermost JSON object in s, tolerating models that
// wrap their answer in prose or code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
