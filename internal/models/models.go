// Package models defines the core domain types described in §3 of the
// design: MediaItem, Bucket, ScheduleBlock, Channel, and their derived
// runtime/ephemeral companions. These are plain value types; persistence is
// handled by internal/store, not by this package.
package models

import "time"

// MediaItem is an immutable descriptor of a piece of media, produced by the
// external scanner/metadata extractor. The core only ever reads these.
type MediaItem struct {
	ID         string
	Path       string
	DurationS  int
	SizeBytes  int64
	Codec      string
	Resolution string
	FPS        float64
	BitrateKbps int

	ShowTitle string
	Season    int
	Episode   int
	Title     string
}

// BucketKind distinguishes a bucket shared across channels from one private
// to a single channel.
type BucketKind string

const (
	BucketGlobal          BucketKind = "global"
	BucketChannelSpecific BucketKind = "channel_specific"
)

// Bucket is a named, ordered, deduplicated collection of MediaItem ids.
type Bucket struct {
	ID       string
	Name     string
	Kind     BucketKind
	ItemIDs  []string // persisted position order
}

// PlaybackMode is stored with each ScheduleBlock but not applied anywhere:
// the resolver, the scheduler and the EPG all play a bucket's items in
// their persisted order, so the EPG and the live stream agree on ordering.
type PlaybackMode string

const (
	PlaybackSequential PlaybackMode = "sequential"
	PlaybackShuffle    PlaybackMode = "shuffle"
	PlaybackRandom     PlaybackMode = "random"
)

// Weekday mirrors time.Weekday numbering (0 = Sunday) for persistence clarity.
type Weekday int

// ScheduleBlock binds a channel to a bucket for a time-of-day window.
type ScheduleBlock struct {
	ID           string
	ChannelID    string
	BucketID     string
	StartTime    time.Duration // time-of-day offset from midnight
	EndTime      time.Duration
	EveryDay     bool
	DaysOfWeek   map[Weekday]bool // ignored when EveryDay is true
	Priority     int
	PlaybackMode PlaybackMode
	Enabled      bool
	CreatedAt    time.Time
}

// ChannelState is the channel scheduler's state machine position (§4.4).
type ChannelState string

const (
	ChannelIdle         ChannelState = "idle"
	ChannelStarting     ChannelState = "starting"
	ChannelStreaming    ChannelState = "streaming"
	ChannelTransitioning ChannelState = "transitioning"
	ChannelStopping     ChannelState = "stopping"
)

// Channel is the persistent configuration plus current runtime metadata for
// a single logical channel.
type Channel struct {
	ID              string
	Name            string
	Slug            string
	OutputDir       string
	VideoBitrateKbps int
	AudioBitrateKbps int
	Width           int
	Height          int
	FPS             int
	SegmentDurationS int

	// Runtime metadata (§3 Channel invariants).
	CurrentIndex       int
	ScheduleAnchorTime time.Time
	ViewerCount        int
	LastViewerSeenAt   time.Time
	State              ChannelState
}

// TranscoderRun is the ephemeral record of one live subprocess, owned
// exclusively by the transcoder worker (C1) while the process is alive.
type TranscoderRun struct {
	ChannelID      string
	InputDescriptor string // single file path or a concat manifest path
	StartPosition  float64
	StartedAt      time.Time
	PID            int
}

// SegmentWindow is the ordered sequence of segment numbers currently
// referenced by a channel's live playlist on disk. Segment numbers are
// monotonic for the channel's lifetime.
type SegmentWindow struct {
	ChannelID      string
	SegmentNumbers []int
}

// TransitionMarker flags a segment number at which a discontinuity marker
// must be injected when the playlist is served.
type TransitionMarker struct {
	ChannelID     string
	SegmentNumber int
}

// EPGProgram is a derived, never-authoritative guide entry. FileIndex
// records which media-list entry the program was projected from, so a
// restart-recovery lookup can resume at the guide's own idea of what's
// airing instead of re-deriving it.
type EPGProgram struct {
	ChannelID   string
	StartTime   time.Time
	EndTime     time.Time
	Title       string
	Description string
	Category    string
	EpisodeNum  string
	FileIndex   int
}

// Position is the result of projecting a wall-clock time onto a media list
// (C3's contract).
type Position struct {
	FileIndex      int
	SeekPositionS  float64
	ElapsedSeconds float64
}

// ChannelSnapshot is the persisted runtime state restored at startup (C9, §6
// "On-disk state file").
type ChannelSnapshot struct {
	ChannelID          string
	CurrentIndex       int
	ScheduleAnchorTime time.Time
	WasStreaming       bool
}
