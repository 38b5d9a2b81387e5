package epg

import (
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelcast/channelcast/internal/models"
)

func fixedMedia() []models.MediaItem {
	return []models.MediaItem{
		{ID: "a", Title: "Episode A", DurationS: 1800},
		{ID: "b", Title: "Episode B", DurationS: 1800},
	}
}

func resolveAlways(media []models.MediaItem) Resolve {
	return func(channelID string, at time.Time) []models.MediaItem {
		return media
	}
}

func resolveEmpty() Resolve {
	return func(channelID string, at time.Time) []models.MediaItem {
		return nil
	}
}

func anchorAt(t time.Time) AnchorLookup {
	return func(channelID string) time.Time { return t }
}

func TestProgramsGenerate_CoversHorizonFromMidnight(t *testing.T) {
	midnight := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := NewProjector(resolveAlways(fixedMedia()), anchorAt(midnight), 6, time.Minute, time.Hour, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	programs := p.Programs("c1", now, 6)
	require.NotEmpty(t, programs)

	assert.Equal(t, midnight, programs[0].StartTime)
	assert.Equal(t, 0, programs[0].FileIndex)

	horizon := now.Add(6 * time.Hour)
	last := programs[len(programs)-1]
	assert.False(t, last.EndTime.After(horizon))
}

func TestProgramsGenerate_JoinsMidItemWhenAnchorPrecedesMidnight(t *testing.T) {
	midnight := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	anchor := midnight.Add(-10 * time.Minute)
	p := NewProjector(resolveAlways(fixedMedia()), anchorAt(anchor), 6, time.Minute, time.Hour, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	programs := p.Programs("c1", now, 6)
	require.NotEmpty(t, programs)

	// 10 minutes into item A (30m long) at midnight means the item actually
	// started 10 minutes earlier; the first program is partial.
	assert.Equal(t, 0, programs[0].FileIndex)
	assert.True(t, programs[0].StartTime.Before(midnight))
	assert.Equal(t, anchor, programs[0].StartTime)
}

func TestProgramsGenerate_EmptyResolverProducesNoPrograms(t *testing.T) {
	p := NewProjector(resolveEmpty(), anchorAt(time.Time{}), 6, time.Minute, time.Hour, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	programs := p.Programs("c1", now, 6)
	assert.Empty(t, programs)
}

func TestPrograms_CachedWithinMemoryTTL(t *testing.T) {
	calls := 0
	resolve := func(channelID string, at time.Time) []models.MediaItem {
		calls++
		return fixedMedia()
	}
	p := NewProjector(resolve, anchorAt(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), 6, time.Hour, time.Hour, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := p.Programs("c1", now, 6)
	callsAfterFirst := calls
	second := p.Programs("c1", now.Add(time.Second), 6)

	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, calls, "second call within TTL should not re-invoke resolve")
}

func TestInvalidate_ClearsMemoryCache(t *testing.T) {
	calls := 0
	resolve := func(channelID string, at time.Time) []models.MediaItem {
		calls++
		return fixedMedia()
	}
	p := NewProjector(resolve, anchorAt(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), 6, time.Hour, time.Hour, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	p.Programs("c1", now, 6)
	afterFirst := calls
	p.Invalidate("c1")
	p.Programs("c1", now, 6)
	assert.Greater(t, calls, afterFirst)
}

type fakeExternalCache struct {
	programs map[string][]models.EPGProgram
}

func (f *fakeExternalCache) Get(channelID string) ([]models.EPGProgram, bool) {
	p, ok := f.programs[channelID]
	return p, ok
}
func (f *fakeExternalCache) Put(channelID string, programs []models.EPGProgram, ttl time.Duration) {
	f.programs[channelID] = programs
}
func (f *fakeExternalCache) Invalidate(channelID string) {
	delete(f.programs, channelID)
}

func TestPrograms_FallsBackToExternalCacheTier(t *testing.T) {
	calls := 0
	resolve := func(channelID string, at time.Time) []models.MediaItem {
		calls++
		return fixedMedia()
	}
	ext := &fakeExternalCache{programs: make(map[string][]models.EPGProgram)}
	anchor := anchorAt(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	p := NewProjector(resolve, anchor, 6, time.Hour, time.Hour, ext)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	generated := p.Programs("c1", now, 6)
	assert.NotEmpty(t, generated)
	assert.Contains(t, ext.programs, "c1")

	// A fresh projector (empty memory tier) should read straight from the
	// external tier without calling resolve again.
	p2 := NewProjector(resolve, anchor, 6, time.Hour, time.Hour, ext)
	callsBefore := calls
	fromExternal := p2.Programs("c1", now, 6)
	assert.Equal(t, generated, fromExternal)
	assert.Equal(t, callsBefore, calls)
}

func TestCurrentAndNext(t *testing.T) {
	midnight := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := NewProjector(resolveAlways(fixedMedia()), anchorAt(midnight), 6, time.Minute, time.Hour, nil)
	now := midnight.Add(10 * time.Minute)

	current, next := p.CurrentAndNext("c1", now)
	require.NotNil(t, current)
	require.NotNil(t, next)
	assert.Equal(t, "Episode A", current.Title)
	assert.Equal(t, "Episode B", next.Title)
}

func TestMarshalXMLTV_RoundTrip(t *testing.T) {
	programs := []models.EPGProgram{
		{
			ChannelID: "c1",
			StartTime: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC),
			Title:     "Episode A",
		},
	}

	body, err := MarshalXMLTV("c1", programs)
	require.NoError(t, err)
	assert.Contains(t, body, "<tv>")
	assert.Contains(t, body, "Episode A")

	var doc xmltvDocument
	require.NoError(t, xml.Unmarshal([]byte(body[len(xml.Header):]), &doc))
	require.Len(t, doc.Programs, 1)
	assert.Equal(t, "Episode A", doc.Programs[0].Title)
	require.Len(t, doc.Channels, 1)
	assert.Equal(t, "c1", doc.Channels[0].ID)
}

func TestMarshalXMLTVGuide_EmitsOneChannelElementPerGuide(t *testing.T) {
	guides := []ChannelGuide{
		{ID: "c1", DisplayName: "Channel One", Programs: []models.EPGProgram{
			{StartTime: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), EndTime: time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC), Title: "A"},
		}},
		{ID: "c2", DisplayName: "Channel Two", Programs: []models.EPGProgram{
			{StartTime: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), EndTime: time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC), Title: "B"},
		}},
	}

	body, err := MarshalXMLTVGuide(guides)
	require.NoError(t, err)

	var doc xmltvDocument
	require.NoError(t, xml.Unmarshal([]byte(body[len(xml.Header):]), &doc))
	require.Len(t, doc.Channels, 2)
	assert.Equal(t, "c1", doc.Channels[0].ID)
	assert.Equal(t, "c2", doc.Channels[1].ID)
	require.Len(t, doc.Programs, 2)
}
