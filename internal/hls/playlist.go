// Package hls implements the HLS Playlist Service (C5): it serves the
// current on-disk playlist, injecting discontinuity markers at recorded
// transition points, and returns a minimal valid placeholder while the
// transcoder warms up. Discontinuity insertion happens only at read time
// (§4.5) — this package never writes the transcoder's playlist file.
package hls

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

const (
	discontinuityTag = "#EXT-X-DISCONTINUITY"
	extinfPrefix     = "#EXTINF:"
)

var segmentLinePattern = regexp.MustCompile(`stream_(\d+)\.ts`)

// Service serves playlists for channels, tracking pending transition markers
// per channel.
type Service struct {
	mu      sync.Mutex
	markers map[string]map[int]bool // channelID -> segment number -> pending
}

// NewService creates an empty Service.
func NewService() *Service {
	return &Service{markers: make(map[string]map[int]bool)}
}

// RecordTransition marks segmentNumber for discontinuity insertion the next
// time it's served for channelID. Per the ordering guarantee in §5, callers
// (C4) must record this before any client can observe a playlist containing
// that segment.
func (s *Service) RecordTransition(channelID string, segmentNumber int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markers[channelID] == nil {
		s.markers[channelID] = make(map[int]bool)
	}
	s.markers[channelID][segmentNumber] = true
}

// ClearTransition removes a pending marker once served.
func (s *Service) ClearTransition(channelID string, segmentNumber int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers[channelID], segmentNumber)
}

func (s *Service) pendingMarkers(channelID string) map[int]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]bool, len(s.markers[channelID]))
	for k, v := range s.markers[channelID] {
		out[k] = v
	}
	return out
}

// GetPlaylist returns the playlist text to serve for channelID, given the
// path to the on-disk playlist file and the configured segment duration
// (used for the placeholder's target duration).
func (s *Service) GetPlaylist(channelID, playlistPath string, segmentDurationS int) (string, error) {
	data, err := os.ReadFile(playlistPath)
	if err != nil || !looksLikePlaylist(data) {
		return placeholder(segmentDurationS), nil
	}

	pending := s.pendingMarkers(channelID)
	if len(pending) == 0 {
		return string(data), nil
	}

	out, served := injectMarkers(string(data), pending)
	for seg := range served {
		s.ClearTransition(channelID, seg)
	}
	return out, nil
}

func looksLikePlaylist(data []byte) bool {
	return bytes.Contains(data, []byte("#EXTM3U"))
}

// injectMarkers scans content line by line; for each EXTINF line whose
// following segment URI matches a pending segment number, it prepends a
// discontinuity tag (unless already present on the preceding line).
func injectMarkers(content string, pending map[int]bool) (string, map[int]bool) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	served := make(map[int]bool)
	var out []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if strings.HasPrefix(line, extinfPrefix) && i+1 < len(lines) {
			if seg, ok := segmentNumberOf(lines[i+1]); ok && pending[seg] {
				alreadyMarked := len(out) > 0 && out[len(out)-1] == discontinuityTag
				if !alreadyMarked {
					out = append(out, discontinuityTag)
				}
				served[seg] = true
			}
		}

		out = append(out, line)
	}

	return strings.Join(out, "\n") + "\n", served
}

func segmentNumberOf(line string) (int, bool) {
	m := segmentLinePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// placeholder returns a minimal valid header-only live playlist (§4.5).
func placeholder(segmentDurationS int) string {
	if segmentDurationS <= 0 {
		segmentDurationS = 6
	}
	return fmt.Sprintf(
		"#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:%d\n#EXT-X-MEDIA-SEQUENCE:0\n#EXT-X-PLAYLIST-TYPE:EVENT\n",
		segmentDurationS,
	)
}
