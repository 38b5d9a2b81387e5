package transcoder

import (
	"os"
	"regexp"
	"strconv"
	"time"
)

var segmentRefPattern = regexp.MustCompile(`stream_(\d+)\.ts`)

// highestSegment scans a playlist file's text for segment references and
// returns the largest segment number found, or -1 if none / the file is
// unreadable.
func highestSegment(playlistPath string) int {
	data, err := os.ReadFile(playlistPath)
	if err != nil {
		return -1
	}
	matches := segmentRefPattern.FindAllSubmatch(data, -1)
	highest := -1
	for _, m := range matches {
		if n, err := strconv.Atoi(string(m[1])); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// baselineSegment inspects the existing playlist (if any) before spawning,
// distinguishing an initial start from a transition (§4.1 step iii).
func (w *Worker) baselineSegment(spec RunSpec) (baseline int, isTransition bool) {
	highest := highestSegment(spec.playlistPath())
	if highest < 0 {
		return -1, false
	}
	return highest, true
}

// pollProgress polls the playlist for evidence of progress after a spawn.
// Initial start: success = at least one segment reference present, timeout
// 45s. Transition: success = highest segment number strictly greater than
// the pre-spawn baseline, timeout 35s, checked every 200ms (§4.1). A
// timeout is not fatal — the handle remains active and a warning is logged.
func (w *Worker) pollProgress(channelID string, spec RunSpec, isTransition bool, onSegmentsReady OnSegmentsReady) {
	timeout := 45 * time.Second
	if isTransition {
		timeout = 35 * time.Second
	}

	w.mu.Lock()
	rp := w.runs[channelID]
	baseline := -1
	if rp != nil {
		baseline = rp.baseline
	}
	w.mu.Unlock()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		<-ticker.C
		if !w.IsActive(channelID) {
			return // process already ended; waitAndReport owns the event.
		}

		highest := highestSegment(spec.playlistPath())
		if isTransition {
			if highest > baseline {
				w.logger.Info("transition segment observed", "channel_id", channelID, "segment", highest)
				if onSegmentsReady != nil {
					onSegmentsReady(channelID, highest, true)
				}
				return
			}
		} else if highest >= 0 {
			w.logger.Info("initial segment observed", "channel_id", channelID, "segment", highest)
			if onSegmentsReady != nil {
				onSegmentsReady(channelID, highest, false)
			}
			return
		}
	}

	w.logger.Warn("polling timed out waiting for transcoder progress", "channel_id", channelID, "transition", isTransition)
}
