// Package refine rewrites raw transcripts with a chat model.
package refine

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"dictate/internal/remote"
)

// Refiner rewrites text under a system prompt.
type Refiner interface {
	Refine(ctx context.Context, model, prompt, text string) (string, error)
}

// OpenAI refines through an OpenAI-compatible chat completions API.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI wraps client.
func NewOpenAI(client *openai.Client) *OpenAI {
	return &OpenAI{client: client}
}

// Refine sends prompt as the system message and text as the user message.
func (o *OpenAI) Refine(ctx context.Context, model, prompt, text string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", remote.Classify("refine", err)
	}
	if len(resp.Choices) == 0 {
		return "", &remote.Error{Op: "refine", Kind: remote.KindFailure, Err: errors.New("no choices in response")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Func adapts a function to Refiner.
type Func func(ctx context.Context, model, prompt, text string) (string, error)

func (f Func) Refine(ctx context.Context, model, prompt, text string) (string, error) {
	return f(ctx, model, prompt, text)
}
