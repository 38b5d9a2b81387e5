package bumper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpec_CacheKeyIsDeterministic(t *testing.T) {
	s := Spec{NextShowName: "Show", NextEpisodeTitle: "Ep", DurationS: 10, Width: 1280, Height: 720, FPS: 30, VideoBitrateKbps: 3000, AudioBitrateKbps: 128}
	assert.Equal(t, s.cacheKey(), s.cacheKey())
}

func TestSpec_CacheKeyChangesWithContent(t *testing.T) {
	base := Spec{NextShowName: "Show A", DurationS: 10, Width: 1280, Height: 720, FPS: 30}
	other := base
	other.NextShowName = "Show B"
	assert.NotEqual(t, base.cacheKey(), other.cacheKey())
}

func TestSpec_OutPathUnderCacheRoot(t *testing.T) {
	s := Spec{NextShowName: "Show", CacheRoot: "/var/bumpers"}
	assert.Equal(t, filepath.Join("/var/bumpers", s.cacheKey()+".ts"), s.outPath())
}

func TestAnnouncementText_WithAndWithoutEpisodeTitle(t *testing.T) {
	withEp := announcementText(Spec{NextShowName: "Show", NextEpisodeTitle: "Pilot"})
	assert.Equal(t, "Up Next: Show - Pilot", withEp)

	withoutEp := announcementText(Spec{NextShowName: "Show"})
	assert.Equal(t, "Up Next: Show", withoutEp)
}

func TestEscapeDrawtext_EscapesQuotesAndColons(t *testing.T) {
	out := escapeDrawtext("It's 10:30")
	assert.Equal(t, `It\'s 10\:30`, out)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel", truncate("hello", 3))
}

func TestProduceUpNext_ReusesExistingCacheFileWithoutInvokingFFmpeg(t *testing.T) {
	g := New("ffmpeg-must-not-run", hclog.NewNullLogger())
	spec := Spec{NextShowName: "Show", NextEpisodeTitle: "Pilot", DurationS: 10, Width: 1280, Height: 720, FPS: 30, VideoBitrateKbps: 3000, AudioBitrateKbps: 128, CacheRoot: t.TempDir()}

	require.NoError(t, os.MkdirAll(spec.CacheRoot, 0o755))
	require.NoError(t, os.WriteFile(spec.outPath(), []byte("cached-bumper-contents"), 0o644))

	path, err := g.ProduceUpNext(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, spec.outPath(), path)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cached-bumper-contents", string(contents), "existing cache file must be reused, not regenerated by the (unreachable) ffmpeg binary")
}

func TestProduceUpNext_EmptyCacheFileIsNotReused(t *testing.T) {
	g := New("ffmpeg", hclog.NewNullLogger())
	spec := Spec{NextShowName: "Show", DurationS: 10, Width: 1280, Height: 720, FPS: 30, CacheRoot: t.TempDir()}

	require.NoError(t, os.MkdirAll(spec.CacheRoot, 0o755))
	require.NoError(t, os.WriteFile(spec.outPath(), nil, 0o644))

	_, err := g.ProduceUpNext(context.Background(), spec)
	assert.Error(t, err, "a zero-byte cache file is a failed prior generation and must be regenerated, not reused")
}
