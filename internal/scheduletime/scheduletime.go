// Package scheduletime implements the Schedule Time Service (C3): a pure,
// allocation-light mapping from wall-clock time to a position within an
// ordered media list. It performs no I/O and must never suspend (§5).
package scheduletime

import (
	"time"

	"github.com/channelcast/channelcast/internal/models"
)

// PositionAt computes {fileIndex, seekPosition, elapsedSeconds} for atTime
// given the channel's anchor and the ordered media durations. Returns
// (Position{}, false) when media is empty or every item has zero duration
// (§4.3 edge cases).
func PositionAt(anchor time.Time, media []models.MediaItem, atTime time.Time) (models.Position, bool) {
	if len(media) == 0 {
		return models.Position{}, false
	}

	var total float64
	for _, m := range media {
		total += float64(m.DurationS)
	}
	if total <= 0 {
		return models.Position{}, false
	}

	if atTime.Before(anchor) {
		return models.Position{FileIndex: 0, SeekPositionS: 0, ElapsedSeconds: 0}, true
	}

	elapsed := atTime.Sub(anchor).Seconds()
	offset := mod(elapsed, total)

	var cumulative float64
	for i, m := range media {
		d := float64(m.DurationS)
		if offset < cumulative+d {
			return models.Position{
				FileIndex:      i,
				SeekPositionS:  offset - cumulative,
				ElapsedSeconds: elapsed,
			}, true
		}
		cumulative += d
	}

	// Floating point edge: offset landed exactly on total. Wrap to the last item's end.
	last := len(media) - 1
	return models.Position{
		FileIndex:      last,
		SeekPositionS:  float64(media[last].DurationS),
		ElapsedSeconds: elapsed,
	}, true
}

// mod is floating-point modulo that always returns a non-negative result,
// matching Go's math.Mod sign convention being insufficient for our use
// (elapsed is already guaranteed >= 0 by the caller, but total wrap needs
// care when offset == total exactly).
func mod(a, b float64) float64 {
	r := a - b*float64(int64(a/b))
	if r < 0 {
		r += b
	}
	return r
}
