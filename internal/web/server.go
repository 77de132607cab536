// Package web serves the local HTTP API: history, settings and one-shot
// transcription of uploaded audio.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dictate/internal/config"
	"dictate/internal/history"
	"dictate/internal/hotkey"
	"dictate/internal/observe"
	"dictate/internal/pipeline"
	"dictate/internal/record"
	"dictate/internal/remote"
)

// HistoryLimit is how many entries GET /api/history returns.
const HistoryLimit = 50

// Processor runs the speech pipeline for an uploaded clip.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request, s pipeline.Settings) (pipeline.Result, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	Config    *config.Store
	History   *history.Store
	Processor Processor
	Metrics   *observe.Metrics
	Log       *slog.Logger

	now func() time.Time
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware())

	r.GET("/health", s.health)
	api := r.Group("/api")
	{
		api.GET("/history", s.listHistory)
		api.POST("/history/delete", s.deleteHistory)
		api.GET("/config", s.getConfig)
		api.POST("/config", s.updateConfig)
		api.POST("/record", s.transcribe)
	}
	if s.Config.Snapshot().Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return r
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger().Info("web api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	success(c, gin.H{"status": "ok"})
}

func (s *Server) listHistory(c *gin.Context) {
	limit := HistoryLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v < HistoryLimit {
		limit = v
	}
	entries, err := s.History.Recent(limit)
	if err != nil {
		s.logger().Error("read history", "err", err)
		fail(c, http.StatusInternalServerError, "failed to read history")
		return
	}
	success(c, gin.H{"items": entries, "count": len(entries)})
}

type deleteRequest struct {
	Timestamp string `json:"timestamp"`
}

func (s *Server) deleteHistory(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Timestamp == "" {
		fail(c, http.StatusBadRequest, "timestamp is required")
		return
	}
	err := s.History.DeleteByTimestamp(req.Timestamp)
	if errors.Is(err, history.ErrNotFound) {
		fail(c, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		s.logger().Error("delete history entry", "timestamp", req.Timestamp, "err", err)
		fail(c, http.StatusInternalServerError, "failed to delete entry")
		return
	}
	success(c, gin.H{"deleted": req.Timestamp})
}

// redact hides the API key from responses.
func redact(cfg config.Config) config.Config {
	if cfg.APIKey != "" {
		cfg.APIKey = "***"
	}
	return cfg
}

func (s *Server) getConfig(c *gin.Context) {
	success(c, gin.H{"config": redact(s.Config.Snapshot())})
}

// updateConfig decodes the body over the current settings, so omitted
// fields keep their values. A redacted or empty api_key is ignored.
func (s *Server) updateConfig(c *gin.Context) {
	cur := s.Config.Snapshot()
	next := cur
	if err := c.ShouldBindJSON(&next); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if next.APIKey == "" || next.APIKey == "***" {
		next.APIKey = cur.APIKey
	}
	saved, err := s.Config.Replace(next)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	s.logger().Info("settings updated via web api")
	success(c, gin.H{"config": redact(saved)})
}

func (s *Server) transcribe(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		fail(c, http.StatusBadRequest, "audio file is required")
		return
	}
	cfg := s.Config.Snapshot()

	reg, err := hotkey.NewRegistry(cfg.Profiles)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	profile := hotkey.Profile{Name: "Default"}
	if name := c.PostForm("profile"); name != "" {
		p, ok := reg.Lookup(name)
		if !ok {
			fail(c, http.StatusBadRequest, "unknown profile "+strconv.Quote(name))
			return
		}
		profile = p
	} else if ps := reg.Profiles(); len(ps) > 0 {
		profile = ps[0]
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".wav"
	}
	dir := config.TempDir(&cfg)
	path := filepath.Join(dir, record.TempPrefix+strings.ReplaceAll(uuid.NewString(), "-", "")[:16]+ext)
	if err := c.SaveUploadedFile(file, path); err != nil {
		s.logger().Error("save upload", "err", err)
		fail(c, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer os.Remove(path)

	ctx := c.Request.Context()
	name := profile.DisplayName()
	res, err := s.Processor.Process(ctx, pipeline.Request{Path: path, Prompt: profile.Prompt, Profile: name}, pipeline.SettingsFrom(cfg))
	switch {
	case errors.Is(err, pipeline.ErrEmptyTranscript):
		s.Metrics.RecordUtterance(ctx, observe.OutcomeEmpty)
		fail(c, http.StatusUnprocessableEntity, "no speech recognized")
		return
	case err != nil:
		s.Metrics.RecordUtterance(ctx, observe.OutcomeFailed)
		s.logger().Error("transcribe upload", "profile", name, "err", err)
		code := http.StatusBadGateway
		var re *remote.RetryExhaustedError
		if errors.As(err, &re) {
			code = http.StatusTooManyRequests
		}
		fail(c, code, err.Error())
		return
	}
	s.Metrics.RecordUtterance(ctx, observe.OutcomeDelivered)

	logged := false
	if cfg.LogHistory {
		entry := history.NewEntry(s.clock(), name, res.Raw, res.Refined, res.STTModel, res.RefinementModel)
		if err := s.History.Append(entry); err != nil {
			s.Metrics.RecordHistoryError(ctx)
			s.logger().Error("history append failed", "err", err)
		} else {
			logged = true
		}
	}
	success(c, gin.H{
		"profile":      name,
		"raw_text":     res.Raw,
		"refined_text": res.Refined,
		"logged":       logged,
	})
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Server) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log.With("component", "web")
	}
	return slog.Default().With("component", "web")
}
