package store

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/channelcast/channelcast/internal/config"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Connect(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, hclog.NewNullLogger())
	require.NoError(t, err)
	return db
}

func TestChannelRepository_ListAndGet(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&ChannelRow{ID: "c1", Name: "Channel One", Slug: "one", OutputDir: "/out/c1"}).Error)

	repo := NewChannelRepository(db)

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "one", all[0].Slug)

	ch, err := repo.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, "Channel One", ch.Name)

	bySlug, err := repo.GetBySlug("one")
	require.NoError(t, err)
	assert.Equal(t, "c1", bySlug.ID)

	_, err = repo.Get("missing")
	assert.Error(t, err)
}

func TestChannelRepository_SaveAnchorPersists(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&ChannelRow{ID: "c1", Name: "C", Slug: "c", OutputDir: "/out"}).Error)
	repo := NewChannelRepository(db)

	anchor := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveAnchor("c1", 3, anchor))

	ch, err := repo.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, 3, ch.CurrentIndex)
	assert.True(t, ch.ScheduleAnchorTime.Equal(anchor))
}

func TestBucketRepository_MediaItemsInPositionOrder(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&BucketRow{ID: "b1", Name: "Bucket", Kind: BucketKindColumn("global")}).Error)
	require.NoError(t, db.Create(&MediaFileRow{ID: "m1", Path: "/media/1.mp4", DurationS: 100, Title: "First"}).Error)
	require.NoError(t, db.Create(&MediaFileRow{ID: "m2", Path: "/media/2.mp4", DurationS: 200, Title: "Second"}).Error)
	require.NoError(t, db.Create(&BucketMediaRow{BucketID: "b1", MediaID: "m2", Position: 0}).Error)
	require.NoError(t, db.Create(&BucketMediaRow{BucketID: "b1", MediaID: "m1", Position: 1}).Error)

	repo := NewBucketRepository(db)
	items, ok := repo.MediaItems("b1")
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "Second", items[0].Title)
	assert.Equal(t, "First", items[1].Title)
}

func TestBucketRepository_UnknownBucketReturnsFalse(t *testing.T) {
	db := openTestDB(t)
	repo := NewBucketRepository(db)
	_, ok := repo.MediaItems("nope")
	assert.False(t, ok)
}

func TestChannelBucketRepository_LinksOrderedByPriorityDesc(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&ChannelBucketRow{ChannelID: "c1", BucketID: "low", Priority: 1}).Error)
	require.NoError(t, db.Create(&ChannelBucketRow{ChannelID: "c1", BucketID: "high", Priority: 9}).Error)

	repo := NewChannelBucketRepository(db)
	links, err := repo.Links("c1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "high", links[0].BucketID)
}

func TestScheduleBlockRepository_ForChannelParsesDaysOfWeek(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&ScheduleBlockRow{
		ID: "b1", ChannelID: "c1", BucketID: "bucket1",
		StartTimeS: 3600, EndTimeS: 7200, DaysOfWeekCSV: "1,3,5",
		Priority: 1, PlaybackMode: PlaybackModeColumn("sequential"), Enabled: true,
	}).Error)

	repo := NewScheduleBlockRepository(db)
	blocks, err := repo.ForChannel("c1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	b := blocks[0]
	assert.Equal(t, time.Hour, b.StartTime)
	assert.Equal(t, 2*time.Hour, b.EndTime)
	assert.True(t, b.DaysOfWeek[1])
	assert.True(t, b.DaysOfWeek[3])
	assert.True(t, b.DaysOfWeek[5])
	assert.False(t, b.DaysOfWeek[2])
}

func TestEPGCacheRepository_PutGetInvalidate(t *testing.T) {
	db := openTestDB(t)
	repo := NewEPGCacheRepository(db)

	require.NoError(t, repo.Put("c1", "<tv/>", `[]`, time.Hour))

	xmlBody, jsonBody, _, ok := repo.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "<tv/>", xmlBody)
	assert.Equal(t, `[]`, jsonBody)

	require.NoError(t, repo.Invalidate("c1"))
	_, _, _, ok = repo.Get("c1")
	assert.False(t, ok)
}

func TestEPGCacheRepository_ExpiredEntryNotReturned(t *testing.T) {
	db := openTestDB(t)
	repo := NewEPGCacheRepository(db)
	require.NoError(t, repo.Put("c1", "<tv/>", `[]`, -time.Minute))

	_, _, _, ok := repo.Get("c1")
	assert.False(t, ok)
}
