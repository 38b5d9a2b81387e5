// Package store is the GORM-backed repository layer implementing the
// persistence schema of §6. The core only ever calls through the narrow
// repository types in repository.go; this file holds the GORM row
// types and their driver.Valuer/Scanner enum adapters, following the
// reference stack's database/models.go convention for enum columns.
package store

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// BucketKindColumn and PlaybackModeColumn mirror models.BucketKind /
// models.PlaybackMode as GORM-scannable string enums, keeping the domain
// package free of GORM tags.
type BucketKindColumn string

func (k BucketKindColumn) Value() (driver.Value, error) { return string(k), nil }

func (k *BucketKindColumn) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*k = ""
	case string:
		*k = BucketKindColumn(v)
	case []byte:
		*k = BucketKindColumn(v)
	default:
		return fmt.Errorf("cannot scan %T into BucketKindColumn", value)
	}
	return nil
}

type PlaybackModeColumn string

func (m PlaybackModeColumn) Value() (driver.Value, error) { return string(m), nil }

func (m *PlaybackModeColumn) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = ""
	case string:
		*m = PlaybackModeColumn(v)
	case []byte:
		*m = PlaybackModeColumn(v)
	default:
		return fmt.Errorf("cannot scan %T into PlaybackModeColumn", value)
	}
	return nil
}

// ChannelRow persists Channel config + the runtime fields that survive a
// restart without a viewer (CurrentIndex/ScheduleAnchorTime; §4.9 restores
// these but does not auto-start streaming).
type ChannelRow struct {
	ID               string `gorm:"type:varchar(36);primaryKey"`
	Name             string `gorm:"not null"`
	Slug             string `gorm:"uniqueIndex;not null"`
	OutputDir        string `gorm:"not null"`
	VideoBitrateKbps int
	AudioBitrateKbps int
	Width            int
	Height           int
	FPS              int
	SegmentDurationS int

	CurrentIndex       int
	ScheduleAnchorTime time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ChannelRow) TableName() string { return "channels" }

// LibraryFolderRow is an external-scanner-owned directory the core treats
// as read-only (§1 "filesystem media scanning ... out of scope").
type LibraryFolderRow struct {
	ID   uint32 `gorm:"primaryKey"`
	Path string `gorm:"not null;uniqueIndex"`
}

func (LibraryFolderRow) TableName() string { return "library_folders" }

// MediaFileRow is the scanner-populated MediaItem descriptor (§3).
type MediaFileRow struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	Path        string `gorm:"not null;uniqueIndex"`
	DurationS   int
	SizeBytes   int64
	Codec       string
	Resolution  string
	FPS         float64
	BitrateKbps int

	ShowTitle string
	Season    int
	Episode   int
	Title     string

	LibraryFolderID *uint32
	CreatedAt       time.Time
}

func (MediaFileRow) TableName() string { return "media_files" }

// BucketRow is a named collection; ordering lives in BucketMediaRow.
type BucketRow struct {
	ID   string           `gorm:"type:varchar(36);primaryKey"`
	Name string           `gorm:"not null"`
	Kind BucketKindColumn `gorm:"type:text;not null"`
}

func (BucketRow) TableName() string { return "buckets" }

// BucketMediaRow is the (bucket, media, position) join table.
type BucketMediaRow struct {
	BucketID string `gorm:"type:varchar(36);primaryKey"`
	MediaID  string `gorm:"type:varchar(36);primaryKey"`
	Position int    `gorm:"not null"`
}

func (BucketMediaRow) TableName() string { return "bucket_media" }

// ChannelBucketRow is the (channel, bucket, priority) join used as fallback
// ordering when no ScheduleBlock is active (§4.2 step 3).
type ChannelBucketRow struct {
	ChannelID string `gorm:"type:varchar(36);primaryKey"`
	BucketID  string `gorm:"type:varchar(36);primaryKey"`
	Priority  int    `gorm:"not null"`
}

func (ChannelBucketRow) TableName() string { return "channel_buckets" }

// ScheduleBlockRow is the time-of-day rule binding a channel to a bucket.
type ScheduleBlockRow struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`
	ChannelID    string `gorm:"not null;index"`
	BucketID     string `gorm:"not null"`
	StartTimeS   int    `gorm:"not null"` // seconds since midnight
	EndTimeS     int    `gorm:"not null"`
	EveryDay     bool   `gorm:"not null"`
	DaysOfWeekCSV string `gorm:"type:text"` // comma-separated weekday indices, ignored when EveryDay
	Priority     int    `gorm:"not null"`
	PlaybackMode PlaybackModeColumn `gorm:"type:text;not null"`
	Enabled      bool               `gorm:"not null"`
	CreatedAt    time.Time
}

func (ScheduleBlockRow) TableName() string { return "schedule_blocks" }

// EPGCacheRow is the external-cache tier for C8's projection (§4.8 caching).
type EPGCacheRow struct {
	ChannelID   string `gorm:"type:varchar(36);primaryKey"`
	XML         string `gorm:"type:text"`
	JSON        string `gorm:"type:text"`
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

func (EPGCacheRow) TableName() string { return "epg_cache" }

// GlobalSettingRow is a flat k/v store for process-wide admin settings.
type GlobalSettingRow struct {
	Key   string `gorm:"type:varchar(128);primaryKey"`
	Value string `gorm:"type:text"`
}

func (GlobalSettingRow) TableName() string { return "global_settings" }

// AllModels lists every row type for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&ChannelRow{},
		&LibraryFolderRow{},
		&MediaFileRow{},
		&BucketRow{},
		&BucketMediaRow{},
		&ChannelBucketRow{},
		&ScheduleBlockRow{},
		&EPGCacheRow{},
		&GlobalSettingRow{},
	}
}
