// Package remote wraps calls to the speech and chat APIs with a fixed-delay
// retry on rate limiting.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies a remote failure.
type Kind int

const (
	KindFailure Kind = iota
	KindRateLimited
)

func (k Kind) String() string {
	if k == KindRateLimited {
		return "rate_limited"
	}
	return "failure"
}

// ErrRateLimited matches any rate-limited Error via errors.Is.
var ErrRateLimited = errors.New("rate limited")

// Error is a classified remote failure.
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRateLimited) work for rate-limited errors.
func (e *Error) Is(target error) bool {
	return target == ErrRateLimited && e.Kind == KindRateLimited
}

// rateLimitCodes are provider error codes reported alongside a rate limit.
var rateLimitCodes = map[string]bool{
	"rate_limit_exceeded": true,
	"rate_limit_error":    true,
}

// Classify wraps err as an *Error. HTTP 429 and known rate-limit error
// codes are KindRateLimited; everything else is KindFailure.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	out := &Error{Op: op, Kind: KindFailure, Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.HTTPStatusCode
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || rateLimitCodes[codeString(apiErr.Code)] || rateLimitCodes[apiErr.Type] {
			out.Kind = KindRateLimited
		}
	case errors.As(err, &reqErr):
		out.StatusCode = reqErr.HTTPStatusCode
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			out.Kind = KindRateLimited
		}
	}
	return out
}

// StatusError builds a classified error from a raw HTTP status.
func StatusError(op string, status int, body string) error {
	kind := KindFailure
	if status == http.StatusTooManyRequests {
		kind = KindRateLimited
	}
	return &Error{Op: op, Kind: kind, StatusCode: status, Err: fmt.Errorf("unexpected response: %s", body)}
}

func codeString(code any) string {
	if s, ok := code.(string); ok {
		return s
	}
	return ""
}

// IsRateLimited reports whether err was classified as rate limited.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// RetryExhaustedError is returned when every attempt was rate limited.
type RetryExhaustedError struct {
	Attempts int
	MaxRetry int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("exceeded max retries (%d/%d): %v", e.Attempts, e.MaxRetry, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Policy controls Call. MaxRetries is the total number of attempts.
type Policy struct {
	MaxRetries int
	Wait       time.Duration
	// Sleep replaces the context-aware wait, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error)
}

// NewPolicy builds a Policy from rate_limit_retries and rate_limit_wait_seconds.
func NewPolicy(retries int, waitSeconds float64) Policy {
	return Policy{MaxRetries: retries, Wait: time.Duration(waitSeconds * float64(time.Second))}
}

func (p Policy) attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

func (p Policy) sleep(ctx context.Context) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, p.Wait)
	}
	if p.Wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Call runs op, retrying after a fixed wait while it fails with a rate-limit
// error and attempts remain. Other failures are returned immediately.
func Call[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	max := p.attempts()
	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRateLimited(err) {
			return zero, err
		}
		lastErr = err
		if attempt == max {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := p.sleep(ctx); err != nil {
			return zero, fmt.Errorf("retry wait: %w", err)
		}
	}
	return zero, &RetryExhaustedError{Attempts: max, MaxRetry: max, Err: lastErr}
}
