package transcoder

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RunSpec describes one transcoder invocation (§4.1 "runSpec").
type RunSpec struct {
	ChannelID string

	// Exactly one of Input/ConcatManifestPath is set.
	Input             string
	ConcatManifestPath string
	StartPositionS    float64

	OutputDir        string
	VideoBitrateKbps int
	AudioBitrateKbps int
	Width            int
	Height           int
	FPS              int
	SegmentDurationS int

	WatermarkPath string

	PlaylistWindowSize int
	SegmentMaxAgeS     int
	Preset             string
	HWAccel            string // none|nvenc|qsv|videotoolbox
}

func (s RunSpec) playlistPath() string {
	return filepath.Join(s.OutputDir, "stream.m3u8")
}

func (s RunSpec) segmentPattern() string {
	return filepath.Join(s.OutputDir, "stream_%05d.ts")
}

// BuildArgs assembles the ffmpeg argument list implementing §4.1's rolling
// HLS playlist invocation: a fixed-count sliding window, a deletion
// threshold retaining history on disk, atomic segment writes, GOP =
// fps×segmentDuration with forced keyframes, CFR, fixed-layout AAC audio,
// and -re real-time pacing. Discontinuity insertion is never delegated to
// ffmpeg (§4.5's "never write-time" rationale) — only C5 injects markers.
func BuildArgs(s RunSpec) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	if s.HWAccel != "" && s.HWAccel != "none" {
		args = append(args, hwAccelArgs(s.HWAccel)...)
	}

	args = append(args, "-re")

	if s.ConcatManifestPath != "" {
		args = append(args, "-f", "concat", "-safe", "0", "-i", s.ConcatManifestPath)
	} else {
		if s.StartPositionS > 0 {
			args = append(args, "-ss", fmt.Sprintf("%.3f", s.StartPositionS))
		}
		args = append(args, "-i", s.Input)
	}

	if s.WatermarkPath != "" {
		args = append(args,
			"-i", s.WatermarkPath,
			"-filter_complex", "[0:v][1:v]overlay=W-w-16:H-h-16",
		)
	}

	gop := s.FPS * s.SegmentDurationS
	if gop <= 0 {
		gop = 48
	}

	args = append(args,
		"-c:v", videoCodec(s.HWAccel),
		"-preset", presetOr(s.Preset, "veryfast"),
		"-b:v", fmt.Sprintf("%dk", s.VideoBitrateKbps),
		"-r", fmt.Sprintf("%d", s.FPS),
		"-vsync", "cfr",
		"-g", fmt.Sprintf("%d", gop),
		"-keyint_min", fmt.Sprintf("%d", gop),
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", s.SegmentDurationS),
		"-s", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"-c:a", "aac",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", fmt.Sprintf("%dk", s.AudioBitrateKbps),
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", s.SegmentDurationS),
		"-hls_list_size", fmt.Sprintf("%d", s.PlaylistWindowSize),
		"-hls_flags", "delete_segments+append_list+temp_file+independent_segments",
		"-hls_delete_threshold", fmt.Sprintf("%d", deleteThreshold(s)),
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", s.segmentPattern(),
		s.playlistPath(),
	)

	return args
}

func deleteThreshold(s RunSpec) int {
	if s.SegmentDurationS <= 0 {
		return s.PlaylistWindowSize
	}
	// retain roughly 10 minutes of history on disk, per §4.1.
	n := (10 * 60) / s.SegmentDurationS
	if n < s.PlaylistWindowSize {
		n = s.PlaylistWindowSize
	}
	return n
}

func presetOr(p, def string) string {
	if p == "" {
		return def
	}
	return p
}

func videoCodec(hwAccel string) string {
	switch hwAccel {
	case "nvenc":
		return "h264_nvenc"
	case "qsv":
		return "h264_qsv"
	case "videotoolbox":
		return "h264_videotoolbox"
	default:
		return "libx264"
	}
}

func hwAccelArgs(hwAccel string) []string {
	switch hwAccel {
	case "nvenc":
		return []string{"-hwaccel", "cuda"}
	case "qsv":
		return []string{"-hwaccel", "qsv"}
	case "videotoolbox":
		return []string{"-hwaccel", "videotoolbox"}
	default:
		return nil
	}
}

// isHardwareAccelError reports whether stderr text looks like the hardware
// encoder failed to initialize, triggering the software fallback (§4.1
// design notes / reference stack's runner.go isHardwareAccelError).
func isHardwareAccelError(stderr string) bool {
	for _, pattern := range []string{
		"Cannot load nvcuda",
		"No NVENC capable devices found",
		"vaapi",
		"qsv",
		"videotoolbox",
		"function not implemented",
		"Error initializing output stream",
	} {
		if strings.Contains(stderr, pattern) {
			return true
		}
	}
	return false
}

// toSoftwareFallback strips hwaccel flags and swaps the video encoder to the
// software equivalent, for a retry after isHardwareAccelError (§4.1).
func toSoftwareFallback(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-hwaccel":
			i++ // skip value too
			continue
		case "h264_nvenc", "h264_qsv", "h264_videotoolbox":
			out = append(out, "libx264")
			continue
		}
		out = append(out, args[i])
	}
	return out
}
