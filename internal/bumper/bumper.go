// Package bumper implements the Bumper Generator (C6): a short pre-encoded
// "up next" segment produced (and cached) by an ffmpeg subprocess, encoded
// with the main stream's codec, resolution, frame rate, bitrates and audio
// sample rate (§4.6). Its keyframe interval is fps × the bumper's own
// duration, not the main stream's fps × segment duration.
package bumper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/channelcast/channelcast/internal/errors"
)

// Spec describes one "up next" bumper to produce.
type Spec struct {
	NextShowName     string
	NextEpisodeTitle string
	DurationS        int
	Width            int
	Height           int
	FPS              int
	VideoBitrateKbps int
	AudioBitrateKbps int
	CacheRoot        string
}

func (s Spec) cacheKey() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%dx%d|%d|%d|%d",
		s.NextShowName, s.NextEpisodeTitle, s.DurationS, s.Width, s.Height, s.FPS, s.VideoBitrateKbps, s.AudioBitrateKbps)))
	return hex.EncodeToString(h[:])[:16]
}

func (s Spec) outPath() string {
	return filepath.Join(s.CacheRoot, s.cacheKey()+".ts")
}

type inflight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Generator produces and caches bumper files, deduplicating concurrent
// requests for the same cache key by killing the in-flight subprocess and
// restarting (§4.6 rationale: the "next item" may have changed).
type Generator struct {
	ffmpegPath string
	logger     hclog.Logger

	mu    sync.Mutex
	inFly map[string]*inflight
}

// New creates a Generator.
func New(ffmpegPath string, logger hclog.Logger) *Generator {
	return &Generator{ffmpegPath: ffmpegPath, logger: logger, inFly: make(map[string]*inflight)}
}

// ProduceUpNext returns the path to a ready bumper file for spec, generating
// it only when no non-empty file exists yet at spec's cache path. The path is
// derived from a hash of spec's content, so a different "next item" gets a
// different file; an existing file is reused as is and never regenerated.
func (g *Generator) ProduceUpNext(ctx context.Context, spec Spec) (string, error) {
	if err := os.MkdirAll(spec.CacheRoot, 0o755); err != nil {
		return "", errors.NewFatalError("cannot create bumper cache dir", err)
	}

	key := spec.cacheKey()
	outPath := spec.outPath()

	if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
		return outPath, nil
	}

	g.mu.Lock()
	if prev, ok := g.inFly[key]; ok {
		prev.cancel()
		<-prev.done
	}
	genCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	fl := &inflight{cancel: cancel, done: make(chan struct{})}
	g.inFly[key] = fl
	g.mu.Unlock()

	defer func() {
		close(fl.done)
		g.mu.Lock()
		if g.inFly[key] == fl {
			delete(g.inFly, key)
		}
		g.mu.Unlock()
		cancel()
	}()

	if err := g.generate(genCtx, spec, outPath); err != nil {
		return "", errors.NewFatalError("bumper generation failed", err)
	}

	return outPath, nil
}

func (g *Generator) generate(ctx context.Context, spec Spec, outPath string) error {
	text := announcementText(spec)
	tmpPath := outPath + ".tmp"

	gop := spec.FPS * spec.DurationS
	if gop <= 0 {
		gop = spec.FPS
	}

	args := []string{
		"-hide_banner", "-loglevel", "warning", "-y",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=%d", spec.Width, spec.Height, spec.FPS, spec.DurationS),
		"-f", "lavfi", "-i", fmt.Sprintf("anullsrc=r=48000:cl=stereo:d=%d", spec.DurationS),
		"-vf", fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=36:x=(w-text_w)/2:y=(h-text_h)/2", escapeDrawtext(text)),
		"-c:v", "libx264", "-preset", "veryfast", "-b:v", fmt.Sprintf("%dk", spec.VideoBitrateKbps),
		"-g", fmt.Sprintf("%d", gop), "-keyint_min", fmt.Sprintf("%d", gop), "-r", fmt.Sprintf("%d", spec.FPS),
		"-c:a", "aac", "-ar", "48000", "-ac", "2", "-b:a", fmt.Sprintf("%dk", spec.AudioBitrateKbps),
		"-f", "mpegts", tmpPath,
	}

	cmd := exec.CommandContext(ctx, g.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg bumper generation: %w: %s", err, truncate(string(output), 2000))
	}

	return os.Rename(tmpPath, outPath)
}

func announcementText(spec Spec) string {
	if spec.NextEpisodeTitle != "" {
		return fmt.Sprintf("Up Next: %s - %s", spec.NextShowName, spec.NextEpisodeTitle)
	}
	return fmt.Sprintf("Up Next: %s", spec.NextShowName)
}

func escapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, "'", "\\'")
	s = strings.ReplaceAll(s, ":", "\\:")
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
