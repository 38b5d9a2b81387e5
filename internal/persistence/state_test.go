package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelcast/channelcast/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return NewStore(path, hclog.NewNullLogger())
}

func TestLoad_MissingFileReturnsEmptySnapshot(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, stateVersion, snap.Version)
	assert.Empty(t, snap.Channels)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	channels := []models.ChannelSnapshot{
		{ChannelID: "c1", CurrentIndex: 2, ScheduleAnchorTime: anchor, WasStreaming: true},
	}
	require.NoError(t, s.Save(channels))

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Channels, 1)
	assert.Equal(t, "c1", snap.Channels[0].ChannelID)
	assert.Equal(t, 2, snap.Channels[0].CurrentIndex)
	assert.True(t, snap.Channels[0].ScheduleAnchorTime.Equal(anchor))
	assert.True(t, snap.Channels[0].WasStreaming)
}

func TestSave_WritesBackupOfPreviousPrimary(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save([]models.ChannelSnapshot{{ChannelID: "first"}}))
	require.NoError(t, s.Save([]models.ChannelSnapshot{{ChannelID: "second"}}))

	backupData, err := os.ReadFile(s.backupPath)
	require.NoError(t, err)
	assert.Contains(t, string(backupData), "first")
}

func TestLoad_FallsBackToBackupWhenPrimaryCorrupt(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save([]models.ChannelSnapshot{{ChannelID: "good"}}))
	require.NoError(t, s.Save([]models.ChannelSnapshot{{ChannelID: "good2"}}))

	require.NoError(t, os.WriteFile(s.path, []byte("{not valid json"), 0o644))

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Channels, 1)
	assert.Equal(t, "good", snap.Channels[0].ChannelID)
}

func TestSave_NeverLeavesATempFileBehind(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save([]models.ChannelSnapshot{{ChannelID: "c1"}}))

	entries, err := os.ReadDir(filepath.Dir(s.path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
