// Package ffmpeg transcodes recorded clips with the ffmpeg binary.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Options describes the target encoding.
type Options struct {
	Codec      string
	Channels   int
	SampleRate int
	BitRate    int // kbps
}

// Convert transcodes inPath into outPath.
func Convert(ctx context.Context, opts Options, inPath, outPath string, log *slog.Logger) error {
	args, err := Args(opts, inPath, outPath)
	if err != nil {
		return err
	}
	if log != nil {
		log.Debug("executing ffmpeg", "args", strings.Join(args, " "))
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w\n%s", err, stderr.String())
	}
	return nil
}

// Args builds the ffmpeg command line.
func Args(opts Options, inPath, outPath string) ([]string, error) {
	ffCodec, codecHasBitrate := codecFor(opts.Codec)
	if ffCodec == "" {
		return nil, fmt.Errorf("unsupported codec: %s", opts.Codec)
	}
	channels := opts.Channels
	if channels <= 0 {
		channels = 1
	}
	args := []string{"-y", "-i", inPath, "-ac", strconv.Itoa(channels)}
	if opts.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(opts.SampleRate))
	}
	args = append(args, "-c:a", ffCodec)
	if codecHasBitrate {
		bitrate := opts.BitRate
		if bitrate <= 0 {
			bitrate = 64
		}
		args = append(args, "-b:a", fmt.Sprintf("%dk", bitrate))
	}
	return append(args, outPath), nil
}

// codecFor maps a codec name to the ffmpeg encoder and whether it takes -b:a.
func codecFor(key string) (string, bool) {
	switch strings.ToLower(key) {
	case "opus", "libopus":
		return "libopus", true
	case "aac":
		return "aac", true
	case "mp3":
		return "libmp3lame", true
	case "flac":
		return "flac", false
	case "pcm", "wav":
		return "pcm_s16le", false
	case "vorbis", "libvorbis":
		return "libvorbis", true
	default:
		return "", false
	}
}
