package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/mailtriage/triage"
)

// OpenAIOptions configures the OpenAI-backed capabilities.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // Optional, for compatible endpoints
	Model   string // Default gpt-4o-mini
}

// OpenAIModel implements triage.Classifier and triage.Drafter over the
// OpenAI chat completion API.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

var (
	_ triage.Classifier = (*OpenAIModel)(nil)
	_ triage.Drafter    = (*OpenAIModel)(nil)
)

// NewOpenAIModel creates OpenAI-backed classify and draft capabilities.
func NewOpenAIModel(opts OpenAIOptions) *OpenAIModel {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIModel{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Classify asks the model for a structured classification in JSON mode and
// validates the result.
func (m *OpenAIModel) Classify(ctx context.Context, emailContent, senderEmail string) (triage.Classification, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You classify customer support emails. Answer with a single JSON object.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: ClassifyPrompt(emailContent, senderEmail),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return triage.Classification{}, &triage.ClassificationError{Reason: "model call failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return triage.Classification{}, &triage.ClassificationError{Reason: "model returned no choices"}
	}
	return ParseClassification(resp.Choices[0].Message.Content)
}

// Draft asks the model to write the reply.
func (m *OpenAIModel) Draft(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write professional, brief customer support replies.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("draft call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("draft call returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
