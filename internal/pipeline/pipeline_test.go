package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"dictate/internal/asr"
	"dictate/internal/refine"
	"dictate/internal/remote"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func instantPolicy(retries int) remote.Policy {
	return remote.Policy{
		MaxRetries: retries,
		Wait:       time.Second,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

func TestProcessWithoutRefinement(t *testing.T) {
	refined := false
	p := &Processor{
		Transcriber: asr.Func(func(ctx context.Context, model, path string) (string, error) {
			if model != "stt" || path != "clip.wav" {
				t.Errorf("unexpected args %q %q", model, path)
			}
			return "hello world", nil
		}),
		Refiner: refine.Func(func(ctx context.Context, model, prompt, text string) (string, error) {
			refined = true
			return "", nil
		}),
		Log: quiet(),
	}
	res, err := p.Process(context.Background(), Request{Path: "clip.wav"}, Settings{STTModel: "stt", Policy: instantPolicy(3)})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Raw != "hello world" || res.Refined != "hello world" {
		t.Fatalf("unexpected result %+v", res)
	}
	if refined {
		t.Fatal("refiner called while disabled")
	}
}

func TestProcessRefinesWithDefaultPrompt(t *testing.T) {
	var gotPrompt string
	p := &Processor{
		Transcriber: asr.Func(func(context.Context, string, string) (string, error) { return "hello world", nil }),
		Refiner: refine.Func(func(ctx context.Context, model, prompt, text string) (string, error) {
			gotPrompt = prompt
			return "Hello, world.", nil
		}),
		Log: quiet(),
	}
	s := Settings{STTModel: "stt", RefinementModel: "llm", RefinementEnabled: true, Policy: instantPolicy(3)}
	res, err := p.Process(context.Background(), Request{Path: "x"}, s)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if gotPrompt != "Refine text." {
		t.Fatalf("unexpected prompt %q", gotPrompt)
	}
	if res.Raw != "hello world" || res.Refined != "Hello, world." || res.RefinementModel != "llm" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestProcessRetriesRateLimitedTranscription(t *testing.T) {
	attempts := 0
	p := &Processor{
		Transcriber: asr.Func(func(context.Context, string, string) (string, error) {
			attempts++
			if attempts < 3 {
				return "", remote.StatusError("transcribe", 429, "busy")
			}
			return "ok", nil
		}),
		Log: quiet(),
	}
	res, err := p.Process(context.Background(), Request{Path: "x"}, Settings{STTModel: "stt", Policy: instantPolicy(3)})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Raw != "ok" || attempts != 3 {
		t.Fatalf("unexpected result %+v after %d attempts", res, attempts)
	}
}

func TestProcessRefineFailureAborts(t *testing.T) {
	p := &Processor{
		Transcriber: asr.Func(func(context.Context, string, string) (string, error) { return "raw", nil }),
		Refiner: refine.Func(func(context.Context, string, string, string) (string, error) {
			return "", remote.StatusError("refine", 500, "down")
		}),
		Log: quiet(),
	}
	s := Settings{STTModel: "stt", RefinementModel: "llm", RefinementEnabled: true, Policy: instantPolicy(3)}
	_, err := p.Process(context.Background(), Request{Path: "x"}, s)
	var re *remote.Error
	if !errors.As(err, &re) || re.Op != "refine" {
		t.Fatalf("expected refine failure, got %v", err)
	}
}

func TestProcessEmptyTranscript(t *testing.T) {
	p := &Processor{
		Transcriber: asr.Func(func(context.Context, string, string) (string, error) { return "", nil }),
		Log:         quiet(),
	}
	_, err := p.Process(context.Background(), Request{Path: "x"}, Settings{Policy: instantPolicy(1)})
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}
