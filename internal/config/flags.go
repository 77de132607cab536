package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// FlagValues holds parsed flags with explicit set tracking.
type FlagValues struct {
	STTModel                string
	STTModelSet             bool
	RefinementModel         string
	RefinementModelSet      bool
	RefinementEnabled       bool
	RefinementEnabledSet    bool
	ActionMode              string
	ActionModeSet           bool
	PlaySounds              bool
	PlaySoundsSet           bool
	RateLimitRetries        int
	RateLimitRetriesSet     bool
	RateLimitWaitSeconds    float64
	RateLimitWaitSecondsSet bool
	LogHistory              bool
	LogHistorySet           bool
	HistoryPath             string
	HistoryPathSet          bool
	APIBaseURL              string
	APIBaseURLSet           bool
	STTBackend              string
	STTBackendSet           bool
	EndpointURL             string
	EndpointURLSet          bool
	Language                string
	LanguageSet             bool
	UploadCodec             string
	UploadCodecSet          bool
	CacheDir                string
	CacheDirSet             bool
	KeepCache               bool
	KeepCacheSet            bool
	Notification            bool
	NotificationSet         bool
	Tray                    bool
	TraySet                 bool
	WebAddr                 string
	WebAddrSet              bool
	Metrics                 bool
	MetricsSet              bool
	LogLevel                string
	LogLevelSet             bool
	DebugKeys               bool
	DebugKeysSet            bool

	OutputPath    string
	OutputPathSet bool
}

type stringFlag struct {
	target *string
	set    *bool
}

func (s *stringFlag) String() string {
	if s == nil || s.target == nil {
		return ""
	}
	return *s.target
}

func (s *stringFlag) Set(v string) error {
	if s.target != nil {
		*s.target = v
	}
	if s.set != nil {
		*s.set = true
	}
	return nil
}

type intFlag struct {
	target *int
	set    *bool
}

func (i *intFlag) String() string {
	if i == nil || i.target == nil {
		return ""
	}
	return strconv.Itoa(*i.target)
}

func (i *intFlag) Set(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	if i.target != nil {
		*i.target = n
	}
	if i.set != nil {
		*i.set = true
	}
	return nil
}

type floatFlag struct {
	target *float64
	set    *bool
}

func (f *floatFlag) String() string {
	if f == nil || f.target == nil {
		return ""
	}
	return strconv.FormatFloat(*f.target, 'g', -1, 64)
}

func (f *floatFlag) Set(v string) error {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	if f.target != nil {
		*f.target = n
	}
	if f.set != nil {
		*f.set = true
	}
	return nil
}

type boolFlag struct {
	target *bool
	set    *bool
}

func (b *boolFlag) String() string {
	if b == nil || b.target == nil {
		return ""
	}
	return strconv.FormatBool(*b.target)
}

// IsBoolFlag lets "-tray" be given without a value.
func (b *boolFlag) IsBoolFlag() bool { return true }

func parseBoolExt(v string) (bool, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean: %s", v)
}

func (b *boolFlag) Set(v string) error {
	n, err := parseBoolExt(v)
	if err != nil {
		return err
	}
	if b.target != nil {
		*b.target = n
	}
	if b.set != nil {
		*b.set = true
	}
	return nil
}

// BindFlags registers all flags and returns the populated FlagValues.
func BindFlags(fs *flag.FlagSet) *FlagValues {
	fv := &FlagValues{}

	fs.Var(&stringFlag{&fv.STTModel, &fv.STTModelSet}, "stt-model", "speech-to-text model")
	fs.Var(&stringFlag{&fv.RefinementModel, &fv.RefinementModelSet}, "refinement-model", "refinement chat model")
	fs.Var(&boolFlag{&fv.RefinementEnabled, &fv.RefinementEnabledSet}, "refine", "enable refinement (true/false)")
	fs.Var(&stringFlag{&fv.ActionMode, &fv.ActionModeSet}, "action-mode", "output action: type, copy, type_and_copy")
	fs.Var(&boolFlag{&fv.PlaySounds, &fv.PlaySoundsSet}, "sounds", "play feedback sounds (true/false)")
	fs.Var(&intFlag{&fv.RateLimitRetries, &fv.RateLimitRetriesSet}, "rate-limit-retries", "attempts per remote call when rate limited")
	fs.Var(&floatFlag{&fv.RateLimitWaitSeconds, &fv.RateLimitWaitSecondsSet}, "rate-limit-wait", "seconds to wait between rate-limited attempts")

	fs.Var(&boolFlag{&fv.LogHistory, &fv.LogHistorySet}, "log-history", "append utterances to the history log (true/false)")
	fs.Var(&stringFlag{&fv.HistoryPath, &fv.HistoryPathSet}, "history-path", "history log path")

	fs.Var(&stringFlag{&fv.APIBaseURL, &fv.APIBaseURLSet}, "api-base-url", "OpenAI-compatible API base URL")
	fs.Var(&stringFlag{&fv.STTBackend, &fv.STTBackendSet}, "stt-backend", "speech-to-text backend: openai, endpoint")
	fs.Var(&stringFlag{&fv.EndpointURL, &fv.EndpointURLSet}, "endpoint-url", "multipart upload URL for the endpoint backend")
	fs.Var(&stringFlag{&fv.Language, &fv.LanguageSet}, "language", "language hint")
	fs.Var(&stringFlag{&fv.UploadCodec, &fv.UploadCodecSet}, "upload-codec", "transcode clips with ffmpeg before upload (e.g. OPUS, FLAC)")

	fs.Var(&stringFlag{&fv.CacheDir, &fv.CacheDirSet}, "cache-dir", "cache directory")
	fs.Var(&boolFlag{&fv.KeepCache, &fv.KeepCacheSet}, "keep-cache", "keep cache files (true/false)")

	fs.Var(&boolFlag{&fv.Notification, &fv.NotificationSet}, "notification", "enable notifications (true/false)")
	fs.Var(&boolFlag{&fv.Tray, &fv.TraySet}, "tray", "show the system tray menu (true/false)")
	fs.Var(&stringFlag{&fv.WebAddr, &fv.WebAddrSet}, "web-addr", "serve the local web API on this address while recording")
	fs.Var(&boolFlag{&fv.Metrics, &fv.MetricsSet}, "metrics", "expose /metrics on the web API (true/false)")
	fs.Var(&stringFlag{&fv.LogLevel, &fv.LogLevelSet}, "log-level", "debug, info, warn, error")
	fs.Var(&boolFlag{&fv.DebugKeys, &fv.DebugKeysSet}, "debug-keys", "log every key event (true/false)")

	fs.Var(&stringFlag{&fv.OutputPath, &fv.OutputPathSet}, "output", "output txt path for -file mode")

	return fv
}

// ApplyFlags applies present flags to the config.
func ApplyFlags(cfg *Config, fv *FlagValues) {
	if fv.STTModelSet {
		cfg.STTModel = fv.STTModel
	}
	if fv.RefinementModelSet {
		cfg.RefinementModel = fv.RefinementModel
	}
	if fv.RefinementEnabledSet {
		cfg.RefinementEnabled = fv.RefinementEnabled
	}
	if fv.ActionModeSet {
		cfg.ActionMode = fv.ActionMode
	}
	if fv.PlaySoundsSet {
		cfg.PlaySounds = fv.PlaySounds
	}
	if fv.RateLimitRetriesSet {
		cfg.RateLimitRetries = fv.RateLimitRetries
	}
	if fv.RateLimitWaitSecondsSet {
		cfg.RateLimitWaitSeconds = fv.RateLimitWaitSeconds
	}

	if fv.LogHistorySet {
		cfg.LogHistory = fv.LogHistory
	}
	if fv.HistoryPathSet {
		cfg.HistoryPath = fv.HistoryPath
	}

	if fv.APIBaseURLSet {
		cfg.APIBaseURL = fv.APIBaseURL
	}
	if fv.STTBackendSet {
		cfg.STTBackend = fv.STTBackend
	}
	if fv.EndpointURLSet {
		cfg.EndpointURL = fv.EndpointURL
	}
	if fv.LanguageSet {
		cfg.Language = fv.Language
	}
	if fv.UploadCodecSet {
		cfg.UploadCodec = fv.UploadCodec
	}

	if fv.CacheDirSet {
		cfg.CacheDir = fv.CacheDir
	}
	if fv.KeepCacheSet {
		cfg.KeepCache = fv.KeepCache
	}

	if fv.NotificationSet {
		cfg.Notification = fv.Notification
	}
	if fv.TraySet {
		cfg.Tray = fv.Tray
	}
	if fv.WebAddrSet {
		cfg.WebAddr = fv.WebAddr
	}
	if fv.MetricsSet {
		cfg.Metrics = fv.Metrics
	}
	if fv.LogLevelSet {
		cfg.LogLevel = fv.LogLevel
	}
	if fv.DebugKeysSet {
		cfg.DebugKeys = fv.DebugKeys
	}
}

// AnySet reports whether any flag was explicitly set by the user.
func (fv *FlagValues) AnySet() bool {
	return fv.STTModelSet ||
		fv.RefinementModelSet ||
		fv.RefinementEnabledSet ||
		fv.ActionModeSet ||
		fv.PlaySoundsSet ||
		fv.RateLimitRetriesSet ||
		fv.RateLimitWaitSecondsSet ||
		fv.LogHistorySet ||
		fv.HistoryPathSet ||
		fv.APIBaseURLSet ||
		fv.STTBackendSet ||
		fv.EndpointURLSet ||
		fv.LanguageSet ||
		fv.UploadCodecSet ||
		fv.CacheDirSet ||
		fv.KeepCacheSet ||
		fv.NotificationSet ||
		fv.TraySet ||
		fv.WebAddrSet ||
		fv.MetricsSet ||
		fv.LogLevelSet ||
		fv.DebugKeysSet ||
		fv.OutputPathSet
}
