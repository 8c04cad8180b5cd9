package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/mailtriage/triage"
)

// LangChainModel adapts any langchaingo model to the triage capabilities,
// so providers without a dedicated client here (Anthropic, Google, Ollama,
// ...) can serve classification and drafting.
type LangChainModel struct {
	model llms.Model
}

var (
	_ triage.Classifier = (*LangChainModel)(nil)
	_ triage.Drafter    = (*LangChainModel)(nil)
)

// NewLangChainModel wraps a langchaingo model.
func NewLangChainModel(model llms.Model) *LangChainModel {
	return &LangChainModel{model: model}
}

// Classify prompts the model for a JSON classification and validates the
// result. The JSON object is extracted from the completion, so models that
// wrap their answer in prose still parse.
func (m *LangChainModel) Classify(ctx context.Context, emailContent, senderEmail string) (triage.Classification, error) {
	completion, err := llms.GenerateFromSinglePrompt(ctx, m.model, ClassifyPrompt(emailContent, senderEmail))
	if err != nil {
		return triage.Classification{}, &triage.ClassificationError{Reason: "model call failed", Err: err}
	}
	return ParseClassification(completion)
}

// Draft prompts the model for the reply text.
func (m *LangChainModel) Draft(ctx context.Context, prompt string) (string, error) {
	completion, err := llms.GenerateFromSinglePrompt(ctx, m.model, prompt)
	if err != nil {
		return "", fmt.Errorf("draft call failed: %w", err)
	}
	return completion, nil
}
