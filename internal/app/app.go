// Package app wires the components into the runnable modes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dictate/internal/action"
	"dictate/internal/asr"
	"dictate/internal/audio/ffmpeg"
	"dictate/internal/clipboard"
	"dictate/internal/config"
	"dictate/internal/history"
	"dictate/internal/hotkey"
	"dictate/internal/indicator"
	"dictate/internal/keys"
	"dictate/internal/notify"
	"dictate/internal/observe"
	"dictate/internal/pipeline"
	"dictate/internal/record"
	"dictate/internal/refine"
	"dictate/internal/remote"
	"dictate/internal/session"
	"dictate/internal/tray"
	"dictate/internal/web"
)

// services are shared by every mode.
type services struct {
	history   *history.Store
	processor *pipeline.Processor
	metrics   *observe.Metrics
	shutdown  func(context.Context) error
}

func newServices(ctx context.Context, cfg config.Config, log *slog.Logger) (*services, error) {
	svc := &services{
		history:  history.NewStore(cfg.HistoryPath, cfg.HistoryMaxSizeMB, cfg.HistoryBackups),
		shutdown: func(context.Context) error { return nil },
	}
	if cfg.Metrics {
		m, shutdown, err := observe.InitProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		svc.metrics, svc.shutdown = m, shutdown
	}

	hc := remote.NewHTTPClient(time.Duration(cfg.RequestTimeout)*time.Second, cfg.EnableHTTP2, cfg.VerifySSL)
	tr, err := newTranscriber(cfg, hc, log)
	if err != nil {
		return nil, err
	}
	svc.processor = &pipeline.Processor{
		Transcriber: tr,
		Refiner:     refine.NewOpenAI(remote.NewOpenAIClient(cfg.APIKey, cfg.APIBaseURL, hc)),
		Metrics:     svc.metrics,
		Log:         log.With("component", "pipeline"),
	}
	return svc, nil
}

func newTranscriber(cfg config.Config, hc *http.Client, log *slog.Logger) (asr.Transcriber, error) {
	switch cfg.STTBackend {
	case config.BackendEndpoint:
		return asr.NewEndpoint(cfg.EndpointURL, cfg.APIKey, cfg.Language, cfg.TextPath, cfg.ExtraConfig, hc, log.With("component", "asr"))
	case config.BackendOpenAI, "":
		return asr.NewOpenAI(remote.NewOpenAIClient(cfg.APIKey, cfg.APIBaseURL, hc), cfg.Language), nil
	}
	return nil, fmt.Errorf("unknown stt_backend %q", cfg.STTBackend)
}

// exitFlushTimeout bounds how long safe exit waits for the indicator to clear.
const exitFlushTimeout = 500 * time.Millisecond

// RunRecordMode starts the keyboard hook and runs the push-to-talk loop
// until ctx is done, Exit is chosen in the tray, or the safe-exit chord is
// pressed.
func RunRecordMode(ctx context.Context, store *config.Store, log *slog.Logger) error {
	cfg := store.Snapshot()
	record.CleanupTemp(config.TempDir(&cfg), log)

	reg, err := hotkey.NewLive(func() []config.Profile { return store.Snapshot().Profiles }, log.With("component", "hotkey"))
	if err != nil {
		return err
	}
	svc, err := newServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeServices(svc, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	renderers := indicator.Multi{indicator.Console{W: os.Stdout}}
	var tr *tray.Tray
	if cfg.Tray {
		tr = tray.New(store, cancel, log)
		renderers = append(renderers, tray.Renderer{})
	}
	ind := indicator.New(renderers, log)
	notifier := notify.New("Dictate",
		func() bool { return store.Snapshot().PlaySounds },
		func() bool { return store.Snapshot().Notification },
		log.With("component", "notify"))

	onExit := func() {
		ind.Flush(exitFlushTimeout)
		closeServices(svc, log)
		if tr != nil {
			tr.Stop()
		}
	}
	capture := record.NewCapture(record.NewPortAudio(cfg.SampleRate, cfg.Channels), cfg.SampleRate, cfg.Channels)
	sess, err := session.New(session.Config{
		Registry:    reg,
		Recorder:    capture,
		Encoder:     record.NewEncoder(cfg, log.With("component", "ffmpeg")),
		Processor:   svc.processor,
		Dispatcher:  action.NewDispatcher(clipboard.System{}, clipboard.Keyboard{}, svc.history, log.With("component", "action")),
		Settings:    func() session.Settings { return session.SettingsFrom(store.Snapshot()) },
		Notifier:    &feedback{display: ind, sound: notifier},
		SettleDelay: session.DefaultSettleDelay,
		OnExit:      onExit,
		Exit:        os.Exit,
		Metrics:     svc.metrics,
		Log:         log,
	})
	if err != nil {
		return err
	}

	raw := make(chan keys.Event, 64)
	events := (<-chan keys.Event)(raw)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.DebugKeys {
		tapped := make(chan keys.Event, 64)
		g.Go(func() error { return tapKeys(gctx, raw, tapped, log.With("component", "keys")) })
		events = tapped
	}
	g.Go(func() error { return hotkey.Listen(gctx, raw, log.With("component", "hotkey")) })
	g.Go(func() error { return sess.Run(gctx, events) })
	g.Go(func() error { return ind.Run(gctx) })
	if cfg.WebAddr != "" {
		srv := &web.Server{Config: store, History: svc.history, Processor: svc.processor, Metrics: svc.metrics, Log: log}
		g.Go(func() error { return srv.Serve(gctx, cfg.WebAddr) })
	}
	if tr != nil {
		tr.Run()
		defer tr.Stop()
	}

	log.Info("dictate ready",
		"stt_model", cfg.STTModel,
		"refinement", cfg.RefinementEnabled,
		"refinement_model", cfg.RefinementModel,
		"action_mode", cfg.ActionMode)
	for _, p := range reg.Current().Profiles() {
		log.Info("hotkey ready", "profile", p.DisplayName(), "hotkey", p.Chord())
	}
	log.Info("hold a hotkey to dictate", "safe_exit", hotkey.SafeExitChord)

	err = g.Wait()
	sess.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// tapKeys logs every key event with its canonical name before forwarding it.
func tapKeys(ctx context.Context, in <-chan keys.Event, out chan<- keys.Event, log *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-in:
			log.Info("key", "down", ev.Down, "raw", ev.Key.String(), "name", keys.Normalize(ev.Key))
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func closeServices(svc *services, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.shutdown(ctx); err != nil {
		log.Warn("metrics shutdown", "err", err)
	}
	if err := svc.history.Close(); err != nil {
		log.Warn("close history", "err", err)
	}
}

// RunFileMode transcribes an existing audio file and writes the text next to
// it, or to outputPath when set.
func RunFileMode(ctx context.Context, cfg config.Config, inputPath, outputPath string, log *slog.Logger) error {
	tempDir := config.TempDir(&cfg)
	record.CleanupTemp(tempDir, log)

	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("file '%s' stat failed: %w", inputPath, err)
	}
	svc, err := newServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeServices(svc, log)

	upload := inputPath
	var clip record.Clip
	if cfg.UploadCodec != "" {
		clip.Path = tempOutputPath(tempDir, config.ContainerExt(cfg.UploadContainer))
		opts := ffmpeg.Options{Codec: cfg.UploadCodec, Channels: cfg.Channels, SampleRate: cfg.SampleRate, BitRate: cfg.BitRate}
		if err := ffmpeg.Convert(ctx, opts, inputPath, clip.Path, log.With("component", "ffmpeg")); err != nil {
			clip.Remove()
			return err
		}
		upload = clip.Path
	}
	defer handleCache(cfg, clip, log)

	req := pipeline.Request{Path: upload}
	if len(cfg.Profiles) > 0 {
		p := cfg.Profiles[0]
		req.Prompt, req.Profile = p.Prompt, p.Name
	}
	res, err := svc.processor.Process(ctx, req, pipeline.SettingsFrom(cfg))
	if err != nil {
		return err
	}

	outPath := outputPath
	if outPath == "" {
		base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		outPath = filepath.Join(".", base+".txt")
	}
	if err := os.WriteFile(outPath, []byte(res.Refined), 0644); err != nil {
		return err
	}
	log.Info("transcript written", "path", outPath, "chars", len(res.Refined))
	return nil
}

// RunServeMode runs only the web API.
func RunServeMode(ctx context.Context, store *config.Store, addr string, log *slog.Logger) error {
	cfg := store.Snapshot()
	svc, err := newServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeServices(svc, log)
	srv := &web.Server{Config: store, History: svc.history, Processor: svc.processor, Metrics: svc.metrics, Log: log}
	if err := srv.Serve(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func handleCache(cfg config.Config, clip record.Clip, log *slog.Logger) {
	if clip.Path == "" {
		return
	}
	if cfg.KeepCache && cfg.CacheDir != "" {
		if err := clip.Keep(cfg.CacheDir, time.Now()); err != nil {
			log.Warn("keep cache", "err", err)
		}
		return
	}
	clip.Remove()
}

func tempOutputPath(dir, ext string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	return filepath.Join(dir, record.TempPrefix+id+"."+ext)
}
