package asr

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"dictate/internal/jsonpath"
	"dictate/internal/remote"
)

// Endpoint uploads clips as multipart forms to an arbitrary speech API and
// extracts the transcript with a JSON path.
type Endpoint struct {
	URL         string
	Token       string
	Language    string
	TextPath    string
	httpClient  *http.Client
	extraConfig map[string]any
	log         *slog.Logger
}

// NewEndpoint creates a new endpoint client and parses extraConfig.
func NewEndpoint(url, token, language, textPath, extraConfig string, httpClient *http.Client, log *slog.Logger) (*Endpoint, error) {
	e := &Endpoint{URL: url, Token: token, Language: language, TextPath: textPath, httpClient: httpClient, log: log}
	if extraConfig != "" {
		e.extraConfig = make(map[string]any)
		if err := json.Unmarshal([]byte(extraConfig), &e.extraConfig); err != nil {
			return nil, fmt.Errorf("invalid extra_config JSON: %w", err)
		}
	}
	if e.httpClient == nil {
		e.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e, nil
}

// Transcribe uploads path once. A 429 response is classified as rate
// limited; any other non-200 status is a plain failure.
func (e *Endpoint) Transcribe(ctx context.Context, model, path string) (string, error) {
	if e.URL == "" {
		return "", fmt.Errorf("API endpoint is empty")
	}
	body, contentType, err := e.form(model, path)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if e.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token)
	}
	req.Header.Set("User-Agent", "dictate/1.0")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	e.log.Debug("upload finished", "url", e.URL, "duration", time.Since(start))
	if err != nil {
		return "", remote.Classify("transcribe", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", remote.StatusError("transcribe", resp.StatusCode, formatResponse(respBody))
	}
	return strings.TrimSpace(jsonpath.ExtractTextFromResponse(respBody, e.TextPath)), nil
}

func (e *Endpoint) form(model, path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy clip: %w", err)
	}

	fields := make(map[string]any)
	if model != "" {
		fields["model"] = model
	}
	if e.Language != "" {
		fields["language"] = e.Language
	}
	for k, v := range e.extraConfig {
		fields[k] = v
	}
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			_ = writer.WriteField(k, val)
		case bool, float64, int:
			_ = writer.WriteField(k, fmt.Sprintf("%v", val))
		default:
			if b, err := json.Marshal(val); err == nil {
				_ = writer.WriteField(k, string(b))
			} else {
				_ = writer.WriteField(k, fmt.Sprintf("%v", val))
			}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func formatResponse(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	const maxText = 1000
	const maxBin = 256

	if utf8.Valid(b) {
		s := string(b)
		if len(s) > maxText {
			return fmt.Sprintf("%s... (truncated, total %d bytes)", s[:maxText], len(b))
		}
		return s
	}
	if len(b) > maxBin {
		return fmt.Sprintf("<binary %d bytes, prefix hex: %s...>", len(b), hex.EncodeToString(b[:maxBin]))
	}
	return fmt.Sprintf("<binary %d bytes, hex: %s>", len(b), hex.EncodeToString(b))
}
