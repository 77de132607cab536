// Package pipeline runs transcription and optional refinement for one clip.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dictate/internal/asr"
	"dictate/internal/config"
	"dictate/internal/observe"
	"dictate/internal/refine"
	"dictate/internal/remote"
)

// ErrEmptyTranscript is returned when the speech API produced no text.
var ErrEmptyTranscript = errors.New("empty transcript")

// Settings are read once per utterance so tray and web changes apply to the
// next utterance.
type Settings struct {
	STTModel          string
	RefinementModel   string
	RefinementEnabled bool
	Policy            remote.Policy
}

// SettingsFrom extracts Settings from cfg.
func SettingsFrom(cfg config.Config) Settings {
	return Settings{
		STTModel:          cfg.STTModel,
		RefinementModel:   cfg.RefinementModel,
		RefinementEnabled: cfg.RefinementEnabled,
		Policy:            remote.NewPolicy(cfg.RateLimitRetries, cfg.RateLimitWaitSeconds),
	}
}

// Request is one clip to process.
type Request struct {
	Path    string
	Prompt  string
	Profile string
}

// Result carries both texts. Refined equals Raw when refinement is off.
type Result struct {
	Raw             string
	Refined         string
	STTModel        string
	RefinementModel string
}

// Processor wires the remote clients together.
type Processor struct {
	Transcriber asr.Transcriber
	Refiner     refine.Refiner
	Metrics     *observe.Metrics
	Log         *slog.Logger
}

// Process transcribes req.Path and, when enabled, refines the transcript.
// Either call failing after its retries aborts the request.
func (p *Processor) Process(ctx context.Context, req Request, s Settings) (Result, error) {
	log := p.logger()
	res := Result{STTModel: s.STTModel}

	raw, err := call(ctx, p, "transcribe", s.Policy, func(ctx context.Context) (string, error) {
		return p.Transcriber.Transcribe(ctx, s.STTModel, req.Path)
	})
	if err != nil {
		return res, fmt.Errorf("transcribe: %w", err)
	}
	if raw == "" {
		return res, ErrEmptyTranscript
	}
	res.Raw = raw
	res.Refined = raw

	if !s.RefinementEnabled || p.Refiner == nil {
		return res, nil
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = config.DefaultPrompt
	}
	res.RefinementModel = s.RefinementModel
	refined, err := call(ctx, p, "refine", s.Policy, func(ctx context.Context) (string, error) {
		return p.Refiner.Refine(ctx, s.RefinementModel, prompt, raw)
	})
	if err != nil {
		return res, fmt.Errorf("refine: %w", err)
	}
	if refined == "" {
		log.Warn("refinement returned no text, keeping transcript", "profile", req.Profile)
		return res, nil
	}
	res.Refined = refined
	return res, nil
}

func call(ctx context.Context, p *Processor, op string, policy remote.Policy, fn func(context.Context) (string, error)) (string, error) {
	log := p.logger()
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		log.Warn("rate limited, retrying", "op", op, "attempt", attempt, "wait", policy.Wait)
		p.Metrics.RecordRetry(ctx, op)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return remote.Call(ctx, policy, func(ctx context.Context) (string, error) {
		start := time.Now()
		v, err := fn(ctx)
		p.Metrics.RecordRemote(ctx, op, time.Since(start), err)
		return v, err
	})
}

func (p *Processor) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}
