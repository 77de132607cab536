package asr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dictate/internal/remote"
)

func writeClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenAITranscribe(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotModel = r.FormValue("model")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  hello world \n"}`))
	}))
	defer server.Close()

	client := remote.NewOpenAIClient("key", server.URL, server.Client())
	text, err := NewOpenAI(client, "").Transcribe(context.Background(), "whisper-large-v3-turbo", writeClip(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotModel != "whisper-large-v3-turbo" {
		t.Fatalf("unexpected model %q", gotModel)
	}
}

func TestOpenAITranscribeRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	client := remote.NewOpenAIClient("key", server.URL, server.Client())
	_, err := NewOpenAI(client, "").Transcribe(context.Background(), "m", writeClip(t))
	if !remote.IsRateLimited(err) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
}

func TestEndpointTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing auth header")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("temperature") != "0" {
			t.Errorf("extra config not merged: %q", r.FormValue("temperature"))
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"ok"}]}]}`))
	}))
	defer server.Close()

	e, err := NewEndpoint(server.URL, "tok", "", "results[0].alternatives[0].transcript", `{"temperature":0}`, &http.Client{Timeout: time.Second}, quietLogger())
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	text, err := e.Transcribe(context.Background(), "m", writeClip(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "ok" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestEndpointRetryExhaustedError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	e, err := NewEndpoint(server.URL, "", "", "text", "", &http.Client{Timeout: time.Second}, quietLogger())
	if err != nil {
		t.Fatalf("NewEndpoint failed: %v", err)
	}
	clip := writeClip(t)
	policy := remote.Policy{MaxRetries: 2}
	_, err = remote.Call(context.Background(), policy, func(ctx context.Context) (string, error) {
		return e.Transcribe(ctx, "m", clip)
	})
	if err == nil {
		t.Fatalf("expected error")
	}

	var re *remote.RetryExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryExhaustedError, got %T: %v", err, err)
	}
	if re.Attempts != 2 || calls != 2 {
		t.Fatalf("expected 2 attempts, got %d (server saw %d)", re.Attempts, calls)
	}
}

func TestEndpointServerErrorIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("fail"))
	}))
	defer server.Close()

	e, _ := NewEndpoint(server.URL, "", "", "text", "", nil, quietLogger())
	clip := writeClip(t)
	_, err := remote.Call(context.Background(), remote.Policy{MaxRetries: 3}, func(ctx context.Context) (string, error) {
		return e.Transcribe(ctx, "m", clip)
	})
	var re *remote.Error
	if !errors.As(err, &re) || re.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 remote error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestNewEndpointRejectsBadExtraConfig(t *testing.T) {
	if _, err := NewEndpoint("http://x", "", "", "", "{", nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
