package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/mailtriage/triage"
)

func TestClassifyPrompt(t *testing.T) {
	prompt := ClassifyPrompt("I was billed twice", "user@example.com")
	assert.Contains(t, prompt, "I was billed twice")
	assert.Contains(t, prompt, "user@example.com")
	assert.Contains(t, prompt, `"intent"`)
	assert.Contains(t, prompt, `"urgency"`)
}

func TestParseClassification(t *testing.T) {
	classification, err := ParseClassification(`{"intent":"billing","urgency":"critical","topic":"double charge","summary":"Customer billed twice"}`)
	require.NoError(t, err)
	assert.Equal(t, triage.IntentBilling, classification.Intent)
	assert.Equal(t, triage.UrgencyCritical, classification.Urgency)
	assert.Equal(t, "double charge", classification.Topic)
}

func TestParseClassificationWithProse(t *testing.T) {
	response := "Here is the classification:\n```json\n{\"intent\":\"question\",\"urgency\":\"low\",\"topic\":\"t\",\"summary\":\"s\"}\n```"
	classification, err := ParseClassification(response)
	require.NoError(t, err)
	assert.Equal(t, triage.IntentQuestion, classification.Intent)
}

func TestParseClassificationOutOfEnum(t *testing.T) {
	_, err := ParseClassification(`{"intent":"spam","urgency":"low","topic":"t","summary":"s"}`)
	var classErr *triage.ClassificationError
	assert.ErrorAs(t, err, &classErr)

	_, err = ParseClassification(`{"intent":"question","urgency":"immediate","topic":"t","summary":"s"}`)
	assert.ErrorAs(t, err, &classErr)
}

func TestParseClassificationMalformed(t *testing.T) {
	var classErr *triage.ClassificationError

	_, err := ParseClassification("the model refused to answer")
	assert.ErrorAs(t, err, &classErr)

	_, err = ParseClassification(`{"intent": }`)
	assert.ErrorAs(t, err, &classErr)
}
