package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"dictate/internal/audio/ffmpeg"
	"dictate/internal/config"
)

// TempPrefix marks files written by the encoder.
const TempPrefix = "RecordTemp_"

// Clip is an encoded utterance on disk.
type Clip struct {
	Path    string // file to upload
	WavPath string // intermediate WAV, equal to Path when no transcoding ran
}

// Remove deletes every file belonging to the clip.
func (c Clip) Remove() {
	if c.WavPath != "" {
		_ = os.Remove(c.WavPath)
	}
	if c.Path != "" && c.Path != c.WavPath {
		_ = os.Remove(c.Path)
	}
}

// Keep moves the clip into dir as audio-<timestamp>.<ext>.
func (c Clip) Keep(dir string, now time.Time) error {
	base := "audio-" + now.Format("2006-01-02-15.04.05")
	paths := []string{c.WavPath}
	if c.Path != c.WavPath {
		paths = append(paths, c.Path)
	}
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		dst := filepath.Join(dir, base+filepath.Ext(p))
		if err := os.Rename(p, dst); err != nil {
			_ = os.Remove(p)
			errs = append(errs, fmt.Errorf("keep %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Encoder writes captured audio to a temp file ready for upload.
type Encoder struct {
	Dir        string
	Codec      string
	Container  string
	BitRate    int
	Log        *slog.Logger
	newID      func() string
	transcoder func(ctx context.Context, opts ffmpeg.Options, in, out string, log *slog.Logger) error
}

// NewEncoder configures an Encoder from cfg.
func NewEncoder(cfg config.Config, log *slog.Logger) *Encoder {
	return &Encoder{
		Dir:        config.TempDir(&cfg),
		Codec:      cfg.UploadCodec,
		Container:  cfg.UploadContainer,
		BitRate:    cfg.BitRate,
		Log:        log,
		newID:      tempID,
		transcoder: ffmpeg.Convert,
	}
}

// Encode writes buf as 16-bit WAV and, when an upload codec is configured,
// transcodes it with ffmpeg.
func (e *Encoder) Encode(ctx context.Context, buf Buffer) (Clip, error) {
	if buf.Empty() {
		return Clip{}, fmt.Errorf("encode: empty buffer")
	}
	id := e.id()
	wavPath := filepath.Join(e.Dir, TempPrefix+id+".wav")
	if err := WriteWAV(wavPath, buf); err != nil {
		_ = os.Remove(wavPath)
		return Clip{}, err
	}
	clip := Clip{Path: wavPath, WavPath: wavPath}
	if e.Codec == "" || strings.EqualFold(e.Codec, "wav") {
		return clip, nil
	}

	outPath := filepath.Join(e.Dir, TempPrefix+id+"."+config.ContainerExt(e.Container))
	if outPath == wavPath {
		outPath = filepath.Join(e.Dir, TempPrefix+id+".out."+config.ContainerExt(e.Container))
	}
	opts := ffmpeg.Options{Codec: e.Codec, Channels: buf.Channels, SampleRate: buf.SampleRate, BitRate: e.BitRate}
	if err := e.transcoder(ctx, opts, wavPath, outPath, e.Log); err != nil {
		_ = os.Remove(wavPath)
		_ = os.Remove(outPath)
		return Clip{}, err
	}
	clip.Path = outPath
	return clip, nil
}

func (e *Encoder) id() string {
	if e.newID != nil {
		return e.newID()
	}
	return tempID()
}

// WriteWAV writes buf to path as 16-bit PCM WAV.
func WriteWAV(path string, buf Buffer) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav failed: %w", err)
	}
	enc := wav.NewEncoder(file, buf.SampleRate, 16, buf.Channels, 1)
	data := make([]int, len(buf.Samples))
	for i, v := range buf.Samples {
		data[i] = int(v)
	}
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: buf.Channels, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		_ = file.Close()
		return fmt.Errorf("wav write failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = file.Close()
		return fmt.Errorf("wav close failed: %w", err)
	}
	return file.Close()
}

// CleanupTemp removes encoder leftovers from a previous run.
func CleanupTemp(dir string, log *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("read temp dir failed", "dir", dir, "err", err)
		return
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), TempPrefix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			log.Warn("remove stale temp file failed", "path", path, "err", err)
			continue
		}
		log.Debug("removed stale temp file", "path", path)
	}
}

func tempID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}
