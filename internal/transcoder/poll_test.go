package transcoder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighestSegment_MissingFileReturnsNegativeOne(t *testing.T) {
	assert.Equal(t, -1, highestSegment(filepath.Join(t.TempDir(), "missing.m3u8")))
}

func TestHighestSegment_FindsLargestReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.m3u8")
	body := "#EXTM3U\n#EXTINF:6.0,\nstream_00003.ts\n#EXTINF:6.0,\nstream_00007.ts\n#EXTINF:6.0,\nstream_00005.ts\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	assert.Equal(t, 7, highestSegment(path))
}

func TestHighestSegment_NoSegmentReferencesReturnsNegativeOne(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.m3u8")
	require.NoError(t, os.WriteFile(path, []byte("#EXTM3U\n"), 0o644))

	assert.Equal(t, -1, highestSegment(path))
}

func TestBaselineSegment_NoExistingPlaylistIsFreshStart(t *testing.T) {
	w := New("ffmpeg", hclog.NewNullLogger())
	spec := RunSpec{OutputDir: t.TempDir()}

	baseline, isTransition := w.baselineSegment(spec)
	assert.Equal(t, -1, baseline)
	assert.False(t, isTransition)
}

func TestBaselineSegment_ExistingPlaylistIsTransition(t *testing.T) {
	w := New("ffmpeg", hclog.NewNullLogger())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stream.m3u8"), []byte("#EXTM3U\nstream_00010.ts\n"), 0o644))
	spec := RunSpec{OutputDir: dir}

	baseline, isTransition := w.baselineSegment(spec)
	assert.Equal(t, 10, baseline)
	assert.True(t, isTransition)
}
