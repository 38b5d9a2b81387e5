package store

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/channelcast/channelcast/internal/errors"
	"github.com/channelcast/channelcast/internal/models"
)

// ChannelRepository is the persistence contract C9/C10 use for Channel
// config and its restart-survivable runtime fields.
type ChannelRepository struct{ db *gorm.DB }

func NewChannelRepository(db *gorm.DB) *ChannelRepository { return &ChannelRepository{db: db} }

func (r *ChannelRepository) List() ([]models.Channel, error) {
	var rows []ChannelRow
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, errors.NewRepositoryUnavailableError("channel.list", err)
	}
	out := make([]models.Channel, len(rows))
	for i, row := range rows {
		out[i] = channelFromRow(row)
	}
	return out, nil
}

func (r *ChannelRepository) Get(id string) (models.Channel, error) {
	var row ChannelRow
	if err := r.db.First(&row, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.Channel{}, errors.NewNotFoundError("channel", id)
		}
		return models.Channel{}, errors.NewRepositoryUnavailableError("channel.get", err)
	}
	return channelFromRow(row), nil
}

func (r *ChannelRepository) GetBySlug(slug string) (models.Channel, error) {
	var row ChannelRow
	if err := r.db.First(&row, "slug = ?", slug).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.Channel{}, errors.NewNotFoundError("channel", slug)
		}
		return models.Channel{}, errors.NewRepositoryUnavailableError("channel.get_by_slug", err)
	}
	return channelFromRow(row), nil
}

// SaveAnchor persists the monotonic scheduleAnchorTime + currentIndex pair
// (§3 Channel invariant: anchor only advances via explicit reset).
func (r *ChannelRepository) SaveAnchor(channelID string, currentIndex int, anchor time.Time) error {
	err := r.db.Model(&ChannelRow{}).Where("id = ?", channelID).
		Updates(map[string]interface{}{"current_index": currentIndex, "schedule_anchor_time": anchor}).Error
	if err != nil {
		return errors.NewRepositoryUnavailableError("channel.save_anchor", err)
	}
	return nil
}

func channelFromRow(row ChannelRow) models.Channel {
	return models.Channel{
		ID:               row.ID,
		Name:             row.Name,
		Slug:             row.Slug,
		OutputDir:        row.OutputDir,
		VideoBitrateKbps: row.VideoBitrateKbps,
		AudioBitrateKbps: row.AudioBitrateKbps,
		Width:            row.Width,
		Height:           row.Height,
		FPS:              row.FPS,
		SegmentDurationS: row.SegmentDurationS,

		CurrentIndex:       row.CurrentIndex,
		ScheduleAnchorTime: row.ScheduleAnchorTime,
		State:              models.ChannelIdle,
	}
}

// BucketRepository reads Bucket + ordered membership.
type BucketRepository struct{ db *gorm.DB }

func NewBucketRepository(db *gorm.DB) *BucketRepository { return &BucketRepository{db: db} }

// MediaItems returns the bucket's MediaItem list in persisted position order.
func (r *BucketRepository) MediaItems(bucketID string) ([]models.MediaItem, bool) {
	var memberships []BucketMediaRow
	if err := r.db.Where("bucket_id = ?", bucketID).Order("position ASC").Find(&memberships).Error; err != nil {
		return nil, false
	}
	if len(memberships) == 0 {
		return nil, false
	}

	ids := make([]string, len(memberships))
	for i, m := range memberships {
		ids[i] = m.MediaID
	}

	var files []MediaFileRow
	if err := r.db.Where("id IN ?", ids).Find(&files).Error; err != nil {
		return nil, false
	}
	byID := make(map[string]MediaFileRow, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}

	items := make([]models.MediaItem, 0, len(ids))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			items = append(items, mediaItemFromRow(f))
		}
	}
	return items, true
}

func mediaItemFromRow(row MediaFileRow) models.MediaItem {
	return models.MediaItem{
		ID:          row.ID,
		Path:        row.Path,
		DurationS:   row.DurationS,
		SizeBytes:   row.SizeBytes,
		Codec:       row.Codec,
		Resolution:  row.Resolution,
		FPS:         row.FPS,
		BitrateKbps: row.BitrateKbps,
		ShowTitle:   row.ShowTitle,
		Season:      row.Season,
		Episode:     row.Episode,
		Title:       row.Title,
	}
}

// ChannelBucketRepository reads the channel→bucket fallback links (§4.2 step 3).
type ChannelBucketRepository struct{ db *gorm.DB }

func NewChannelBucketRepository(db *gorm.DB) *ChannelBucketRepository {
	return &ChannelBucketRepository{db: db}
}

func (r *ChannelBucketRepository) Links(channelID string) ([]struct {
	BucketID string
	Priority int
}, error) {
	var rows []ChannelBucketRow
	if err := r.db.Where("channel_id = ?", channelID).Order("priority DESC").Find(&rows).Error; err != nil {
		return nil, errors.NewRepositoryUnavailableError("channel_bucket.links", err)
	}
	out := make([]struct {
		BucketID string
		Priority int
	}, len(rows))
	for i, row := range rows {
		out[i].BucketID = row.BucketID
		out[i].Priority = row.Priority
	}
	return out, nil
}

// ScheduleBlockRepository reads the ScheduleBlocks of one channel at a time,
// in the slice form resolver.Resolve takes.
type ScheduleBlockRepository struct{ db *gorm.DB }

func NewScheduleBlockRepository(db *gorm.DB) *ScheduleBlockRepository {
	return &ScheduleBlockRepository{db: db}
}

func (r *ScheduleBlockRepository) ForChannel(channelID string) ([]models.ScheduleBlock, error) {
	var rows []ScheduleBlockRow
	if err := r.db.Where("channel_id = ?", channelID).Find(&rows).Error; err != nil {
		return nil, errors.NewRepositoryUnavailableError("schedule_block.for_channel", err)
	}
	out := make([]models.ScheduleBlock, len(rows))
	for i, row := range rows {
		out[i] = scheduleBlockFromRow(row)
	}
	return out, nil
}

func scheduleBlockFromRow(row ScheduleBlockRow) models.ScheduleBlock {
	days := make(map[models.Weekday]bool)
	if row.DaysOfWeekCSV != "" {
		for _, tok := range strings.Split(row.DaysOfWeekCSV, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(tok)); err == nil {
				days[models.Weekday(n)] = true
			}
		}
	}
	return models.ScheduleBlock{
		ID:           row.ID,
		ChannelID:    row.ChannelID,
		BucketID:     row.BucketID,
		StartTime:    time.Duration(row.StartTimeS) * time.Second,
		EndTime:      time.Duration(row.EndTimeS) * time.Second,
		EveryDay:     row.EveryDay,
		DaysOfWeek:   days,
		Priority:     row.Priority,
		PlaybackMode: models.PlaybackMode(row.PlaybackMode),
		Enabled:      row.Enabled,
		CreatedAt:    row.CreatedAt,
	}
}

// EPGCacheRepository is the external (2h) cache tier for C8.
type EPGCacheRepository struct{ db *gorm.DB }

func NewEPGCacheRepository(db *gorm.DB) *EPGCacheRepository { return &EPGCacheRepository{db: db} }

func (r *EPGCacheRepository) Get(channelID string) (xml, jsonBody string, expiresAt time.Time, ok bool) {
	var row EPGCacheRow
	if err := r.db.First(&row, "channel_id = ?", channelID).Error; err != nil {
		return "", "", time.Time{}, false
	}
	if time.Now().After(row.ExpiresAt) {
		return "", "", time.Time{}, false
	}
	return row.XML, row.JSON, row.ExpiresAt, true
}

func (r *EPGCacheRepository) Put(channelID, xml, jsonBody string, ttl time.Duration) error {
	row := EPGCacheRow{
		ChannelID:   channelID,
		XML:         xml,
		JSON:        jsonBody,
		GeneratedAt: time.Now(),
		ExpiresAt:   time.Now().Add(ttl),
	}
	err := r.db.Save(&row).Error
	if err != nil {
		return errors.NewRepositoryUnavailableError("epg_cache.put", err)
	}
	return nil
}

func (r *EPGCacheRepository) Invalidate(channelID string) error {
	err := r.db.Delete(&EPGCacheRow{}, "channel_id = ?", channelID).Error
	if err != nil {
		return errors.NewRepositoryUnavailableError("epg_cache.invalidate", err)
	}
	return nil
}
