package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/channelcast/channelcast/internal/models"
)

// writeConcatManifest writes an ffmpeg concat-demuxer manifest listing
// bumperPath (if non-empty) followed by items, seeking the first item to
// seekPositionS via an `inpoint` directive when resuming mid-file (§4.4
// advance policy step 2: "seeked ... if and only if it is the first item of
// the current run"). The manifest is written atomically (temp + rename) so
// a worker reading it mid-write never sees a truncated file.
func writeConcatManifest(dir string, bumperPath string, items []models.MediaItem, seekPositionS float64) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	var b strings.Builder
	if bumperPath != "" {
		fmt.Fprintf(&b, "file %s\n", quote(bumperPath))
	}
	for i, item := range items {
		fmt.Fprintf(&b, "file %s\n", quote(item.Path))
		if i == 0 && seekPositionS > 0 {
			fmt.Fprintf(&b, "inpoint %.3f\n", seekPositionS)
		}
	}

	path := filepath.Join(dir, "concat.txt")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

func quote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", "'\\''") + "'"
}
