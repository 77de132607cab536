package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Action modes accepted by action_mode.
const (
	ModeType        = "type"
	ModeCopy        = "copy"
	ModeTypeAndCopy = "type_and_copy"
)

// Speech-to-text backends accepted by stt_backend.
const (
	BackendOpenAI   = "openai"
	BackendEndpoint = "endpoint"
)

// DefaultPrompt is used when a profile has no prompt of its own.
const DefaultPrompt = "Refine text."

// Profile binds a hotkey chord to a refinement prompt.
type Profile struct {
	Name   string   `json:"name"`
	Hotkey []string `json:"hotkey"`
	Prompt string   `json:"prompt"`
}

// Config holds configurable parameters.
type Config struct {
	Profiles             []Profile `json:"profiles"`
	STTModel             string    `json:"stt_model"`
	RefinementModel      string    `json:"refinement_model"`
	RefinementEnabled    bool      `json:"refinement_enabled"`
	ActionMode           string    `json:"action_mode"`
	PlaySounds           bool      `json:"play_sounds"`
	RateLimitRetries     int       `json:"rate_limit_retries"`
	RateLimitWaitSeconds float64   `json:"rate_limit_wait_seconds"`

	LogHistory       bool   `json:"log_history"`
	HistoryPath      string `json:"history_path"`
	HistoryMaxSizeMB int    `json:"history_max_size_mb"`
	HistoryBackups   int    `json:"history_backups"`

	APIKey         string `json:"api_key"`
	APIBaseURL     string `json:"api_base_url"`
	STTBackend     string `json:"stt_backend"`
	EndpointURL    string `json:"endpoint_url"`
	TextPath       string `json:"text_path"`
	ExtraConfig    string `json:"extra_config"`
	Language       string `json:"language"`
	RequestTimeout int    `json:"request_timeout"`
	EnableHTTP2    bool   `json:"enable_http2"`
	VerifySSL      bool   `json:"verify_ssl"`

	SampleRate      int    `json:"sample_rate"`
	Channels        int    `json:"channels"`
	UploadCodec     string `json:"upload_codec"`
	UploadContainer string `json:"upload_container"`
	BitRate         int    `json:"bit_rate"`
	CacheDir        string `json:"cache_dir"`
	KeepCache       bool   `json:"keep_cache"`

	Notification bool   `json:"notification"`
	Tray         bool   `json:"tray"`
	WebAddr      string `json:"web_addr"`
	Metrics      bool   `json:"metrics"`
	LogLevel     string `json:"log_level"`
	DebugKeys    bool   `json:"debug_keys"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Profiles: []Profile{
			{Name: "General", Hotkey: []string{"ctrl_l", "grave"}, Prompt: DefaultPrompt},
			{Name: "Email", Hotkey: []string{"ctrl_l", "alt_l", "e"}, Prompt: "Rewrite the text as a short, polite email body."},
		},
		STTModel:             "whisper-large-v3-turbo",
		RefinementModel:      "llama-3.3-70b-versatile",
		RefinementEnabled:    false,
		ActionMode:           ModeType,
		PlaySounds:           true,
		RateLimitRetries:     3,
		RateLimitWaitSeconds: 2,

		LogHistory:       true,
		HistoryPath:      "history.log",
		HistoryMaxSizeMB: 5,
		HistoryBackups:   2,

		APIBaseURL:     "https://api.groq.com/openai/v1",
		STTBackend:     BackendOpenAI,
		TextPath:       "text",
		RequestTimeout: 30,
		EnableHTTP2:    true,
		VerifySSL:      true,

		SampleRate:      16000,
		Channels:        1,
		UploadCodec:     "",
		UploadContainer: "wav",
		BitRate:         64,

		Notification: false,
		Tray:         false,
		WebAddr:      "",
		Metrics:      false,
		LogLevel:     "info",
	}
}

// Load loads config from JSON file if provided. Fields absent from the file
// keep their defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// SaveDefault writes a default config JSON to the provided path.
func SaveDefault(path string) error {
	return Save(path, DefaultConfig())
}

// Save writes cfg to path by replacing the file atomically.
func Save(path string, cfg Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Validate verifies config fields and returns an error if any value is invalid.
func Validate(cfg *Config) error {
	if len(cfg.Profiles) == 0 {
		return errors.New("no profiles configured")
	}
	seen := make(map[string]bool)
	for i, p := range cfg.Profiles {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("profile %d: empty name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("profile %q: duplicate name", p.Name)
		}
		seen[p.Name] = true
		if len(p.Hotkey) == 0 {
			return fmt.Errorf("profile %q: empty hotkey", p.Name)
		}
		for _, tok := range p.Hotkey {
			if strings.TrimSpace(tok) == "" {
				return fmt.Errorf("profile %q: empty hotkey token", p.Name)
			}
		}
	}
	switch cfg.ActionMode {
	case ModeType, ModeCopy, ModeTypeAndCopy:
	default:
		return fmt.Errorf("invalid action_mode: %q (allowed: type, copy, type_and_copy)", cfg.ActionMode)
	}
	if cfg.RateLimitRetries < 1 {
		return fmt.Errorf("invalid rate_limit_retries: %d (must be >= 1)", cfg.RateLimitRetries)
	}
	if cfg.RateLimitWaitSeconds < 0 {
		return fmt.Errorf("invalid rate_limit_wait_seconds: %v (must be >= 0)", cfg.RateLimitWaitSeconds)
	}
	if cfg.STTModel == "" {
		return errors.New("stt_model is empty")
	}
	if cfg.RefinementEnabled && cfg.RefinementModel == "" {
		return errors.New("refinement_model is empty while refinement is enabled")
	}
	switch cfg.STTBackend {
	case BackendOpenAI:
	case BackendEndpoint:
		if cfg.EndpointURL == "" {
			return errors.New("endpoint_url is required for the endpoint backend")
		}
	default:
		return fmt.Errorf("invalid stt_backend: %q (allowed: openai, endpoint)", cfg.STTBackend)
	}
	if cfg.ExtraConfig != "" && !json.Valid([]byte(cfg.ExtraConfig)) {
		return errors.New("extra_config is not valid JSON")
	}
	if cfg.Channels < 1 || cfg.Channels > 8 {
		return fmt.Errorf("invalid channels: %d (allowed 1..8)", cfg.Channels)
	}
	if cfg.SampleRate <= 0 {
		return fmt.Errorf("invalid sample_rate: %d (must be > 0)", cfg.SampleRate)
	}
	if cfg.UploadCodec != "" && !codecSupported(cfg.UploadCodec) {
		return fmt.Errorf("invalid upload_codec: %s", cfg.UploadCodec)
	}
	if cfg.HistoryMaxSizeMB < 1 {
		return fmt.Errorf("invalid history_max_size_mb: %d (must be >= 1)", cfg.HistoryMaxSizeMB)
	}
	if cfg.HistoryBackups < 0 {
		return fmt.Errorf("invalid history_backups: %d", cfg.HistoryBackups)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps log_level to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log_level: %q", s)
}

// InitCacheDir validates/creates the configured cache directory.
// It mutates cfg.CacheDir to an absolute path or clears it on failure.
func InitCacheDir(cfg *Config, log *slog.Logger) {
	if cfg.CacheDir == "" {
		return
	}
	abs, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		log.Warn("cache dir invalid, falling back to cwd", "dir", cfg.CacheDir, "err", err)
		cfg.CacheDir = ""
		return
	}
	info, err := os.Stat(abs)
	if err == nil {
		if !info.IsDir() {
			log.Warn("cache dir is not a directory, falling back to cwd", "dir", abs)
			cfg.CacheDir = ""
			return
		}
		cfg.CacheDir = abs
		return
	}
	if !os.IsNotExist(err) {
		log.Warn("cannot access cache dir, falling back to cwd", "dir", abs, "err", err)
		cfg.CacheDir = ""
		return
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		log.Warn("cannot create cache dir, falling back to cwd", "dir", abs, "err", err)
		cfg.CacheDir = ""
		return
	}
	cfg.CacheDir = abs
	log.Info("created cache dir", "dir", abs)
}

// TempDir returns the directory to use for temporary files.
func TempDir(cfg *Config) string {
	if cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	cwd, _ := os.Getwd()
	return cwd
}

// ContainerExt maps container names to file extensions (lowercase).
func ContainerExt(container string) string {
	c := strings.ToLower(container)
	switch c {
	case "":
		return "wav"
	case "oga", "ogg":
		return "ogg"
	default:
		return c
	}
}

func codecSupported(codec string) bool {
	switch strings.ToLower(codec) {
	case "opus", "libopus", "aac", "mp3", "flac", "pcm", "vorbis", "libvorbis", "wav":
		return true
	}
	return false
}
