package content

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIFiller implements Filler using the chat completions endpoint — the
// optional AI leg the original AIService fell back from when no key was
// configured.
type OpenAIFiller struct {
	client *openai.Client
	model  string
}

func NewOpenAIFiller(apiKey, model string) *OpenAIFiller {
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAIFiller{client: openai.NewClient(apiKey), model: model}
}

func (f *OpenAIFiller) Fill(ctx context.Context, prompt string) (string, error) {
	resp, err := f.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: f.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: 200,
	})
	if err != nil {
		return "", fmt.Errorf("openai fill: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai fill: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
