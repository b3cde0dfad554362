package promptgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
)

// ChatSynthesizer is the production Synthesizer: a single chat completion
// against an OpenAI-compatible backend (OpenRouter in deployment).
type ChatSynthesizer struct {
	client *openaisdk.Client
	model  string
}

func NewChatSynthesizer(client *openaisdk.Client, model string) (*ChatSynthesizer, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("synthesis model is required")
	}
	return &ChatSynthesizer{client: client, model: model}, nil
}

func (s *ChatSynthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(s.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
