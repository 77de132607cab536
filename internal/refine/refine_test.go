package refine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"dictate/internal/remote"
)

func TestRefineSendsPromptAndText(t *testing.T) {
	var req openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" Hello, world. "}}]}`))
	}))
	defer server.Close()

	r := NewOpenAI(remote.NewOpenAIClient("key", server.URL, server.Client()))
	got, err := r.Refine(context.Background(), "llama", "Refine text.", "hello world")
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if got != "Hello, world." {
		t.Fatalf("unexpected text %q", got)
	}
	if req.Model != "llama" || len(req.Messages) != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Messages[0].Role != openai.ChatMessageRoleSystem || req.Messages[0].Content != "Refine text." {
		t.Fatalf("unexpected system message %+v", req.Messages[0])
	}
	if req.Messages[1].Content != "hello world" {
		t.Fatalf("unexpected user message %+v", req.Messages[1])
	}
}

func TestRefineClassifiesRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}))
	defer server.Close()

	r := NewOpenAI(remote.NewOpenAIClient("key", server.URL, server.Client()))
	_, err := r.Refine(context.Background(), "m", "p", "t")
	if !remote.IsRateLimited(err) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
}

func TestRefineNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[]}`))
	}))
	defer server.Close()

	r := NewOpenAI(remote.NewOpenAIClient("key", server.URL, server.Client()))
	_, err := r.Refine(context.Background(), "m", "p", "t")
	if err == nil || remote.IsRateLimited(err) {
		t.Fatalf("expected plain failure, got %v", err)
	}
}
