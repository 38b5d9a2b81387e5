package transcoder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs_SingleInputSeeksWhenStartPositionSet(t *testing.T) {
	spec := RunSpec{
		Input: "/media/a.mp4", StartPositionS: 12.5,
		OutputDir: "/out/c1", Width: 1280, Height: 720, FPS: 30,
		SegmentDurationS: 6, PlaylistWindowSize: 5, VideoBitrateKbps: 3000, AudioBitrateKbps: 128,
	}
	args := BuildArgs(spec)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-ss 12.500")
	assert.Contains(t, joined, "-i /media/a.mp4")
	assert.NotContains(t, joined, "-f concat")
}

func TestBuildArgs_ConcatManifestNeverSeeksAtTopLevel(t *testing.T) {
	spec := RunSpec{
		ConcatManifestPath: "/out/c1/manifest/concat.txt",
		OutputDir:          "/out/c1", Width: 1280, Height: 720, FPS: 30,
		SegmentDurationS: 6, PlaylistWindowSize: 5,
	}
	args := BuildArgs(spec)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f concat -safe 0 -i /out/c1/manifest/concat.txt")
	assert.NotContains(t, joined, "-ss")
}

func TestBuildArgs_GOPMatchesFPSTimesSegmentDuration(t *testing.T) {
	spec := RunSpec{Input: "/a.mp4", OutputDir: "/out", FPS: 24, SegmentDurationS: 4, PlaylistWindowSize: 5}
	args := BuildArgs(spec)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-g 96")
	assert.Contains(t, joined, "-keyint_min 96")
}

func TestBuildArgs_NeverInjectsDiscontinuityFlags(t *testing.T) {
	spec := RunSpec{Input: "/a.mp4", OutputDir: "/out", FPS: 30, SegmentDurationS: 6, PlaylistWindowSize: 5}
	args := BuildArgs(spec)
	for _, a := range args {
		assert.NotContains(t, a, "discontinuity")
	}
}

func TestIsHardwareAccelError(t *testing.T) {
	assert.True(t, isHardwareAccelError("Cannot load nvcuda.dll"))
	assert.True(t, isHardwareAccelError("No NVENC capable devices found"))
	assert.False(t, isHardwareAccelError("some unrelated stream error"))
}

func TestToSoftwareFallback_StripsHWAccelAndSwapsCodec(t *testing.T) {
	args := []string{"-hwaccel", "cuda", "-re", "-i", "a.mp4", "-c:v", "h264_nvenc", "-b:v", "3000k"}
	out := toSoftwareFallback(args)
	require.NotContains(t, out, "-hwaccel")
	require.NotContains(t, out, "cuda")
	assert.Contains(t, out, "libx264")
	assert.NotContains(t, out, "h264_nvenc")
}

func TestDeleteThreshold_RetainsAtLeastWindowSize(t *testing.T) {
	got := deleteThreshold(RunSpec{SegmentDurationS: 6, PlaylistWindowSize: 200})
	assert.Equal(t, 200, got)

	got2 := deleteThreshold(RunSpec{SegmentDurationS: 6, PlaylistWindowSize: 5})
	assert.GreaterOrEqual(t, got2, 5)
}
