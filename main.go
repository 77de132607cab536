package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"dictate/internal/app"
	"dictate/internal/config"
	"dictate/internal/history"
	"dictate/internal/hotkey"
	"dictate/internal/observe"
	"dictate/internal/record"
)

const defaultConfigPath = "config.json"

func usage() {
	programName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, `Usage: %s [options]

Hold a configured key chord to record, release it to transcribe, and the text
is pasted into the focused window. Press %s to quit.

Modes:
  (default)            push-to-talk daemon
  -file <path>         transcribe an existing audio file (-output sets the .txt path)
  -serve <addr>        run only the local web API (e.g. 127.0.0.1:8765)
  -history <n>         print the last n history entries (0 means %d)

Config:
  -config <path>       JSON config file; defaults to ./config.json, which is
                       created with defaults on first run when no flags are given
  GROQ_API_KEY         API key, also read from a .env file

Overrides:
`, programName, hotkey.SafeExitChord, app.DefaultHistoryCount)
	flag.PrintDefaults()
}

func main() {
	if err := godotenv.Load(); err == nil {
		fmt.Println("[main] loaded .env")
	}

	var (
		configPath string
		filePath   string
		serveAddr  string
		historyN   int
	)
	fs := flag.CommandLine
	fs.Usage = usage
	fs.StringVar(&configPath, "config", "", "path to config JSON")
	fs.StringVar(&filePath, "file", "", "transcribe an existing audio file and exit")
	fs.StringVar(&serveAddr, "serve", "", "run the web API only, on this address")
	fs.IntVar(&historyN, "history", -1, "print the last n history entries and exit")
	fv := config.BindFlags(fs)
	flag.Parse()

	cfg, fileCfg, path, created, err := loadConfig(configPath, fv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[main] %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("[main] default config created at %s. Please edit it and re-run.\n", path)
		return
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[main] %v\n", err)
		os.Exit(1)
	}
	log := observe.NewLogger(level)
	slog.SetDefault(log)

	if historyN >= 0 {
		store := history.NewStore(cfg.HistoryPath, cfg.HistoryMaxSizeMB, cfg.HistoryBackups)
		if err := app.PrintHistory(os.Stdout, store, historyN); err != nil {
			log.Error("read history", "err", err)
			os.Exit(1)
		}
		return
	}

	config.InitCacheDir(&cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case filePath != "":
		if err := app.RunFileMode(ctx, cfg, filePath, fv.OutputPath, log); err != nil {
			log.Error("file mode failed", "file", filePath, "err", err)
			os.Exit(3)
		}
	case serveAddr != "":
		store := config.NewLayeredStore(path, fileCfg, cfg)
		if err := app.RunServeMode(ctx, store, serveAddr, log); err != nil {
			log.Error("web api failed", "err", err)
			os.Exit(1)
		}
	default:
		if name, err := record.HasInput(); err != nil {
			log.Warn("no input device found; recordings will fail until one is connected", "err", err)
		} else {
			log.Info("microphone", "device", name)
		}
		store := config.NewLayeredStore(path, fileCfg, cfg)
		if err := app.RunRecordMode(ctx, store, log); err != nil {
			if errors.Is(err, hotkey.ErrUnsupported) {
				log.Error("push-to-talk needs the Windows keyboard hook; use -file or -serve on this platform")
			} else {
				log.Error("record mode failed", "err", err)
			}
			os.Exit(1)
		}
	}
}

// loadConfig resolves the config file, merges flags and the environment,
// and validates the result. file is the configuration as read from disk,
// before any overlay. When no file exists and no flags are given it writes
// the defaults and reports created.
func loadConfig(path string, fv *config.FlagValues) (cfg, file config.Config, resolved string, created bool, err error) {
	switch {
	case path != "":
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, cfg, path, false, fmt.Errorf("failed to load config '%s': %w", path, err)
		}
	default:
		path = defaultConfigPath
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			cfg, err = config.Load(path)
			if err != nil {
				return cfg, cfg, path, false, fmt.Errorf("failed to load existing %s: %w", path, err)
			}
		case errors.Is(statErr, os.ErrNotExist) && !fv.AnySet():
			if err := config.SaveDefault(path); err != nil {
				return cfg, cfg, path, false, fmt.Errorf("failed to write default config: %w", err)
			}
			return cfg, cfg, path, true, nil
		case errors.Is(statErr, os.ErrNotExist):
			cfg = config.DefaultConfig()
			path = ""
		default:
			return cfg, cfg, path, false, fmt.Errorf("failed to stat %s: %w", path, statErr)
		}
	}
	file = cfg
	file.Profiles = append([]config.Profile(nil), cfg.Profiles...)

	config.ApplyFlags(&cfg, fv)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if err := config.Validate(&cfg); err != nil {
		return cfg, file, path, false, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, file, path, false, nil
}
