// Package asr turns recorded clips into text.
package asr

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"dictate/internal/remote"
)

// Transcriber converts an audio file into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, model, path string) (string, error)
}

// OpenAI transcribes through an OpenAI-compatible /audio/transcriptions API.
type OpenAI struct {
	client   *openai.Client
	language string
}

// NewOpenAI wraps client.
func NewOpenAI(client *openai.Client, language string) *OpenAI {
	return &OpenAI{client: client, language: language}
}

// Transcribe uploads path and returns the trimmed transcript. Failures are
// classified for the retry policy.
func (o *OpenAI) Transcribe(ctx context.Context, model, path string) (string, error) {
	if model == "" {
		return "", errors.New("transcribe: model is empty")
	}
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: path,
		Language: o.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", remote.Classify("transcribe", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Func adapts a function to Transcriber.
type Func func(ctx context.Context, model, path string) (string, error)

func (f Func) Transcribe(ctx context.Context, model, path string) (string, error) {
	return f(ctx, model, path)
}

var _ Transcriber = (*OpenAI)(nil)
var _ Transcriber = (*Endpoint)(nil)
