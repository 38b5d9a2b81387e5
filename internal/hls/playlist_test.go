package hls

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:10
#EXTINF:6.000,
stream_10.ts
#EXTINF:6.000,
stream_11.ts
#EXTINF:6.000,
stream_12.ts
`

func writeTempPlaylist(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.m3u8")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetPlaylist_MissingFileReturnsPlaceholder(t *testing.T) {
	svc := NewService()
	body, err := svc.GetPlaylist("c1", filepath.Join(t.TempDir(), "missing.m3u8"), 6)
	require.NoError(t, err)
	assert.Contains(t, body, "#EXTM3U")
	assert.Contains(t, body, "#EXT-X-TARGETDURATION:6")
}

func TestGetPlaylist_NotYetValidReturnsPlaceholder(t *testing.T) {
	svc := NewService()
	path := writeTempPlaylist(t, "garbage, not a playlist")
	body, err := svc.GetPlaylist("c1", path, 6)
	require.NoError(t, err)
	assert.Contains(t, body, "#EXT-X-PLAYLIST-TYPE:EVENT")
}

func TestGetPlaylist_NoMarkersPassesThrough(t *testing.T) {
	svc := NewService()
	path := writeTempPlaylist(t, samplePlaylist)
	body, err := svc.GetPlaylist("c1", path, 6)
	require.NoError(t, err)
	assert.Equal(t, samplePlaylist, body)
}

func TestGetPlaylist_InjectsMarkerAtRecordedSegment(t *testing.T) {
	svc := NewService()
	svc.RecordTransition("c1", 11)
	path := writeTempPlaylist(t, samplePlaylist)

	body, err := svc.GetPlaylist("c1", path, 6)
	require.NoError(t, err)

	lines := strings.Split(body, "\n")
	found := false
	for i, l := range lines {
		if l == discontinuityTag {
			require.Less(t, i+2, len(lines))
			assert.Equal(t, extinfPrefix+"6.000,", lines[i+1])
			assert.Equal(t, "stream_11.ts", lines[i+2])
			found = true
		}
	}
	assert.True(t, found, "expected a discontinuity marker before segment 11")
}

func TestGetPlaylist_MarkerClearedAfterServe(t *testing.T) {
	svc := NewService()
	svc.RecordTransition("c1", 11)
	path := writeTempPlaylist(t, samplePlaylist)

	first, err := svc.GetPlaylist("c1", path, 6)
	require.NoError(t, err)
	assert.Contains(t, first, discontinuityTag)

	// Served once; a second read of the same file must not re-inject it,
	// since a client re-requesting the same playlist would otherwise see a
	// duplicate discontinuity marker (the idempotence property of §8).
	second, err := svc.GetPlaylist("c1", path, 6)
	require.NoError(t, err)
	assert.Equal(t, samplePlaylist, second)
	assert.NotContains(t, second, discontinuityTag)
}

func TestGetPlaylist_NeverWritesTheFile(t *testing.T) {
	svc := NewService()
	svc.RecordTransition("c1", 11)
	path := writeTempPlaylist(t, samplePlaylist)

	_, err := svc.GetPlaylist("c1", path, 6)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, samplePlaylist, string(onDisk))
}
