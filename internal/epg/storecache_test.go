package epg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelcast/channelcast/internal/models"
)

type fakeRepo struct {
	xml, jsonBody string
	expiresAt     time.Time
	ok            bool
}

func (f *fakeRepo) Get(channelID string) (string, string, time.Time, bool) {
	return f.xml, f.jsonBody, f.expiresAt, f.ok
}
func (f *fakeRepo) Put(channelID, xml, jsonBody string, ttl time.Duration) error {
	f.xml, f.jsonBody, f.ok = xml, jsonBody, true
	f.expiresAt = time.Now().Add(ttl)
	return nil
}
func (f *fakeRepo) Invalidate(channelID string) error {
	f.xml, f.jsonBody, f.ok = "", "", false
	return nil
}

func TestStoreExternalCache_PutThenGetRoundTrips(t *testing.T) {
	repo := &fakeRepo{}
	cache := NewStoreExternalCache(repo)

	programs := []models.EPGProgram{
		{ChannelID: "c1", Title: "Show", StartTime: time.Now(), EndTime: time.Now().Add(time.Hour)},
	}
	cache.Put("c1", programs, time.Hour)

	got, ok := cache.Get("c1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "Show", got[0].Title)
	assert.Contains(t, repo.xml, "<tv>")
}

func TestStoreExternalCache_GetMissReturnsFalse(t *testing.T) {
	cache := NewStoreExternalCache(&fakeRepo{})
	_, ok := cache.Get("nope")
	assert.False(t, ok)
}

func TestStoreExternalCache_Invalidate(t *testing.T) {
	repo := &fakeRepo{}
	cache := NewStoreExternalCache(repo)
	cache.Put("c1", []models.EPGProgram{{Title: "X"}}, time.Hour)
	cache.Invalidate("c1")
	_, ok := cache.Get("c1")
	assert.False(t, ok)
}
