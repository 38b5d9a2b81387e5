// Package config loads and validates the orchestrator's options struct
// (§6 "Configuration options" / §A.3 of SPEC_FULL.md).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level, validated configuration for the orchestrator.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Stream   StreamConfig   `yaml:"stream"`
	EPG      EPGConfig      `yaml:"epg"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig controls the ambient HTTP listener (out of scope admin/auth
// middleware sits in front of this; the orchestrator only owns the listener).
type ServerConfig struct {
	Host         string `yaml:"host" default:"0.0.0.0"`
	Port         int    `yaml:"port" default:"8080"`
	ReadTimeoutS int    `yaml:"read_timeout_seconds" default:"15"`
	WriteTimeoutS int   `yaml:"write_timeout_seconds" default:"15"`
}

func (c ServerConfig) ReadTimeout() time.Duration  { return time.Duration(c.ReadTimeoutS) * time.Second }
func (c ServerConfig) WriteTimeout() time.Duration { return time.Duration(c.WriteTimeoutS) * time.Second }

// DatabaseConfig selects and connects the repository layer's GORM dialector.
type DatabaseConfig struct {
	Driver string `yaml:"driver" default:"sqlite"` // "postgres" or "sqlite"
	DSN    string `yaml:"dsn" default:"channelcast.db"`
}

// StreamConfig holds the per-process streaming knobs enumerated in §6.
type StreamConfig struct {
	SegmentDurationS       int    `yaml:"segment_duration_seconds" default:"6"`
	PlaylistWindowSize     int    `yaml:"playlist_window_size" default:"30"`
	SegmentMaxAgeS         int    `yaml:"segment_max_age_seconds" default:"600"`
	ViewerGracePeriodS     int    `yaml:"viewer_grace_period_seconds" default:"45"`
	EnableResumeSeeking    bool   `yaml:"enable_resume_seeking" default:"true"`
	ResumeSeekThresholdS   int    `yaml:"resume_seek_threshold_seconds" default:"5"`
	TranscoderPreset       string `yaml:"transcoder_preset" default:"veryfast"`
	HWAccel                string `yaml:"hw_accel" default:"none"` // none|nvenc|qsv|videotoolbox
	MaxConcurrentStreams   int    `yaml:"max_concurrent_streams" default:"8"`
	OutputRoot             string `yaml:"output_root" default:"./data/streams"`
	BumperCacheRoot        string `yaml:"bumper_cache_root" default:"./data/bumpers"`
	StateFilePath          string `yaml:"state_file_path" default:"./data/state.json"`
	FFmpegPath             string `yaml:"ffmpeg_path" default:"ffmpeg"`
}

func (c StreamConfig) SegmentDuration() time.Duration {
	return time.Duration(c.SegmentDurationS) * time.Second
}
func (c StreamConfig) SegmentMaxAge() time.Duration {
	return time.Duration(c.SegmentMaxAgeS) * time.Second
}
func (c StreamConfig) ViewerGracePeriod() time.Duration {
	return time.Duration(c.ViewerGracePeriodS) * time.Second
}
func (c StreamConfig) ResumeSeekThreshold() time.Duration {
	return time.Duration(c.ResumeSeekThresholdS) * time.Second
}

var validHWAccel = map[string]bool{"none": true, "nvenc": true, "qsv": true, "videotoolbox": true}

// EPGConfig controls the forward-looking guide projection (C8).
type EPGConfig struct {
	LookaheadHours       int `yaml:"lookahead_hours" default:"48"`
	CacheMinutes         int `yaml:"cache_minutes" default:"5"`
	DatabaseCacheMinutes int `yaml:"database_cache_minutes" default:"120"`
}

func (c EPGConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheMinutes) * time.Minute
}
func (c EPGConfig) DatabaseCacheTTL() time.Duration {
	return time.Duration(c.DatabaseCacheMinutes) * time.Minute
}

// SecurityConfig covers the two knobs the core consults directly; the rest
// of auth/rate-limiting/CORS is the out-of-scope HTTP edge's concern.
type SecurityConfig struct {
	RequireAuth         bool     `yaml:"require_auth" default:"false"`
	AllowedLibraryPaths []string `yaml:"allowed_library_paths"`
}

// GetDefaultConfig returns a Config with every default tag's value applied.
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeoutS: 15, WriteTimeoutS: 15},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "channelcast.db",
		},
		Stream: StreamConfig{
			SegmentDurationS:     6,
			PlaylistWindowSize:   30,
			SegmentMaxAgeS:       600,
			ViewerGracePeriodS:   45,
			EnableResumeSeeking:  true,
			ResumeSeekThresholdS: 5,
			TranscoderPreset:     "veryfast",
			HWAccel:              "none",
			MaxConcurrentStreams: 8,
			OutputRoot:           "./data/streams",
			BumperCacheRoot:      "./data/bumpers",
			StateFilePath:        "./data/state.json",
			FFmpegPath:           "ffmpeg",
		},
		EPG: EPGConfig{LookaheadHours: 48, CacheMinutes: 5, DatabaseCacheMinutes: 120},
		Security: SecurityConfig{
			RequireAuth:         false,
			AllowedLibraryPaths: nil,
		},
	}
}

// Load reads a YAML config file at path (if non-empty and present) over the
// defaults, then validates the result. A missing path is not an error:
// defaults are returned as-is (the orchestrator's caller decides whether
// that's acceptable).
func Load(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, nil
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	return cfg, nil
}

// ValidationError reports one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: field %q: %s", e.Field, e.Message)
}

// Validate checks the loaded configuration against the invariants §6 implies
// (e.g. GOP = fps × segmentDuration requires segmentDuration > 0).
func (c *Config) Validate() []*ValidationError {
	var errs []*ValidationError

	if c.Stream.SegmentDurationS <= 0 {
		errs = append(errs, &ValidationError{Field: "stream.segment_duration_seconds", Message: "must be > 0"})
	}
	if c.Stream.PlaylistWindowSize <= 0 {
		errs = append(errs, &ValidationError{Field: "stream.playlist_window_size", Message: "must be > 0"})
	}
	if c.Stream.ViewerGracePeriodS <= 0 {
		errs = append(errs, &ValidationError{Field: "stream.viewer_grace_period_seconds", Message: "must be > 0"})
	}
	if c.Stream.MaxConcurrentStreams <= 0 {
		errs = append(errs, &ValidationError{Field: "stream.max_concurrent_streams", Message: "must be > 0"})
	}
	if !validHWAccel[c.Stream.HWAccel] {
		errs = append(errs, &ValidationError{Field: "stream.hw_accel", Message: "must be one of none|nvenc|qsv|videotoolbox"})
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		errs = append(errs, &ValidationError{Field: "database.driver", Message: "must be postgres or sqlite"})
	}
	if c.EPG.LookaheadHours <= 0 {
		errs = append(errs, &ValidationError{Field: "epg.lookahead_hours", Message: "must be > 0"})
	}

	return errs
}
