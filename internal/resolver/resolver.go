// Package resolver implements the Playlist Resolver (C2): at any instant it
// resolves the ordered list of candidate media for a channel from the
// two-level bucket + schedule-block content model, with fallback (§4.2).
package resolver

import (
	"time"

	"github.com/channelcast/channelcast/internal/models"
)

// BucketLookup resolves a bucket id to its ordered MediaItem list. Out of
// scope persistence (§6) satisfies this; it is a narrow seam so C2 stays
// free of repository concerns and remains a pure function of its inputs
// plus this lookup.
type BucketLookup func(bucketID string) ([]models.MediaItem, bool)

// ChannelBucketLink is one channel→bucket binding, ordered by link priority,
// used for the "no active block" fallback (§4.2 step 3).
type ChannelBucketLink struct {
	BucketID string
	Priority int
}

// Resolve returns the ordered MediaItem list that should currently apply to
// a channel. blocks need not be pre-filtered to the channel; Resolve does
// that itself so callers can pass a cached all-channels block set.
func Resolve(channelID string, atTime time.Time, blocks []models.ScheduleBlock, channelBuckets []ChannelBucketLink, lookup BucketLookup) []models.MediaItem {
	if block, ok := activeBlock(channelID, atTime, blocks); ok {
		if items, ok := lookup(block.BucketID); ok {
			return items
		}
	}

	// Fallback: concatenation of all buckets linked to the channel in
	// link-priority order (§4.2 step 3).
	ordered := append([]ChannelBucketLink(nil), channelBuckets...)
	sortByPriorityDesc(ordered)

	var out []models.MediaItem
	for _, link := range ordered {
		if items, ok := lookup(link.BucketID); ok {
			out = append(out, items...)
		}
	}
	return out
}

func sortByPriorityDesc(links []ChannelBucketLink) {
	// Small-N insertion sort: channel→bucket link counts are tiny (a handful
	// per channel), and this keeps the resolver free of a sort-package
	// allocation on every call.
	for i := 1; i < len(links); i++ {
		j := i
		for j > 0 && links[j-1].Priority < links[j].Priority {
			links[j-1], links[j] = links[j], links[j-1]
			j--
		}
	}
}

// activeBlock finds the highest-priority enabled ScheduleBlock for channelID
// active at atTime, breaking ties by earliest CreatedAt (§4.2 step 1).
func activeBlock(channelID string, atTime time.Time, blocks []models.ScheduleBlock) (models.ScheduleBlock, bool) {
	var best models.ScheduleBlock
	found := false

	for _, b := range blocks {
		if b.ChannelID != channelID || !b.Enabled {
			continue
		}
		if !dayMatches(b, atTime) {
			continue
		}
		if !timeOfDayMatches(b, atTime) {
			continue
		}
		if !found ||
			b.Priority > best.Priority ||
			(b.Priority == best.Priority && b.CreatedAt.Before(best.CreatedAt)) {
			best = b
			found = true
		}
	}

	return best, found
}

// timeOfDayMatches implements the wrap semantics of §4.2: when end <= start,
// the block spans midnight and t is in the block if t >= start OR t < end.
func timeOfDayMatches(b models.ScheduleBlock, atTime time.Time) bool {
	tod := timeOfDay(atTime)
	if b.EndTime <= b.StartTime {
		return tod >= b.StartTime || tod < b.EndTime
	}
	return tod >= b.StartTime && tod < b.EndTime
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

// dayMatches implements §4.2's wrap-aware day-of-week matching: near
// midnight, both the previous and next calendar day are considered so a
// block starting at 00:00 on day N is discoverable while serving the last
// segment of day N-1, and vice versa. After midnight, a block that wraps
// (end <= start) also matches on the day after one of its days, up to its
// end time, since the running instance started the day before.
func dayMatches(b models.ScheduleBlock, atTime time.Time) bool {
	if b.EveryDay {
		return true
	}

	today := models.Weekday(atTime.Weekday())
	if b.DaysOfWeek[today] {
		return true
	}

	tod := timeOfDay(atTime)
	prev := models.Weekday((int(today) + 6) % 7)
	if tod == 0 && b.DaysOfWeek[prev] {
		return true
	}
	if b.EndTime <= b.StartTime && tod < b.EndTime && b.DaysOfWeek[prev] {
		return true
	}
	if tod >= 23*time.Hour {
		next := models.Weekday((int(today) + 1) % 7)
		if b.DaysOfWeek[next] {
			return true
		}
	}

	return false
}
