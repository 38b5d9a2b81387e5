// Package epg implements the EPG Projector (C8): a deterministic projection
// of the schedule onto wall-clock time, using the same Resolver + Schedule
// Time logic the scheduler uses, with a two-tier cache (§4.8).
package epg

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/channelcast/channelcast/internal/models"
	"github.com/channelcast/channelcast/internal/scheduletime"
)

const safetyCeiling = 10000

// Resolve mirrors resolver.Resolve's signature as a narrow dependency seam
// so this package doesn't need to import the resolver package directly
// (avoiding the cyclic-ownership the design notes rule out): EPG calls
// Resolver, never the reverse.
type Resolve func(channelID string, atTime time.Time) []models.MediaItem

type cacheEntry struct {
	programs  []models.EPGProgram
	expiresAt time.Time
}

// ExternalCache is the repository-backed second tier (§4.8, ~2h TTL).
type ExternalCache interface {
	Get(channelID string) (programs []models.EPGProgram, ok bool)
	Put(channelID string, programs []models.EPGProgram, ttl time.Duration)
	Invalidate(channelID string)
}

// AnchorLookup returns a channel's current scheduleAnchorTime, mirroring the
// same field the scheduler and C3 key off of, so the projector can seed its
// very first program against the real anchor instead of assuming index 0.
type AnchorLookup func(channelID string) time.Time

// Projector generates and caches EPGPrograms.
type Projector struct {
	resolve       Resolve
	anchorFor     AnchorLookup
	lookaheadHrs  atomic.Int64
	memoryTTL     atomic.Int64 // nanoseconds
	externalTTL   atomic.Int64 // nanoseconds
	externalCache ExternalCache

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewProjector creates a Projector. externalCache may be nil to disable the
// second tier (e.g. in tests).
func NewProjector(resolve Resolve, anchorFor AnchorLookup, lookaheadHrs int, memoryTTL, externalTTL time.Duration, externalCache ExternalCache) *Projector {
	p := &Projector{
		resolve:       resolve,
		anchorFor:     anchorFor,
		externalCache: externalCache,
		cache:         make(map[string]cacheEntry),
	}
	p.lookaheadHrs.Store(int64(lookaheadHrs))
	p.memoryTTL.Store(int64(memoryTTL))
	p.externalTTL.Store(int64(externalTTL))
	return p
}

// SetHorizon updates the lookahead window and cache TTLs live, e.g. on a
// config hot-reload. Zero/negative values leave the corresponding field
// unchanged.
func (p *Projector) SetHorizon(lookaheadHrs int, memoryTTL, externalTTL time.Duration) {
	if lookaheadHrs > 0 {
		p.lookaheadHrs.Store(int64(lookaheadHrs))
	}
	if memoryTTL > 0 {
		p.memoryTTL.Store(int64(memoryTTL))
	}
	if externalTTL > 0 {
		p.externalTTL.Store(int64(externalTTL))
	}
}

// Invalidate clears both cache tiers for channelID (§4.8: invalidated by
// Invalidate and by any schedule mutation, admin-driven).
func (p *Projector) Invalidate(channelID string) {
	p.mu.Lock()
	delete(p.cache, channelID)
	p.mu.Unlock()
	if p.externalCache != nil {
		p.externalCache.Invalidate(channelID)
	}
}

// Programs returns the forward-looking program list for channelID, from
// local midnight of today to now+horizonHours (default p.lookaheadHrs).
func (p *Projector) Programs(channelID string, now time.Time, horizonHours int) []models.EPGProgram {
	memoryTTL := time.Duration(p.memoryTTL.Load())
	if horizonHours <= 0 {
		horizonHours = int(p.lookaheadHrs.Load())
	}

	p.mu.Lock()
	if entry, ok := p.cache[channelID]; ok && now.Before(entry.expiresAt) {
		p.mu.Unlock()
		return entry.programs
	}
	p.mu.Unlock()

	if p.externalCache != nil {
		if programs, ok := p.externalCache.Get(channelID); ok {
			p.mu.Lock()
			p.cache[channelID] = cacheEntry{programs: programs, expiresAt: now.Add(memoryTTL)}
			p.mu.Unlock()
			return programs
		}
	}

	programs := p.generate(channelID, now, horizonHours)

	p.mu.Lock()
	p.cache[channelID] = cacheEntry{programs: programs, expiresAt: now.Add(memoryTTL)}
	p.mu.Unlock()

	if p.externalCache != nil {
		p.externalCache.Put(channelID, programs, time.Duration(p.externalTTL.Load()))
	}

	return programs
}

// generate implements §4.8's advancement algorithm.
func (p *Projector) generate(channelID string, now time.Time, horizonHours int) []models.EPGProgram {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	horizon := now.Add(time.Duration(horizonHours) * time.Hour)

	var programs []models.EPGProgram
	cursor := midnight
	var prevList []models.MediaItem
	index := 0
	var itemStart time.Time

	for cursor.Before(horizon) && len(programs) < safetyCeiling {
		list := p.resolve(channelID, cursor)
		if len(list) == 0 {
			cursor = cursor.Add(1 * time.Hour)
			if !hasFutureBlock(p, channelID, cursor, horizon) {
				break
			}
			continue
		}

		if !sameList(list, prevList) {
			anchor := p.anchorFor(channelID)
			if pos, ok := scheduletime.PositionAt(anchor, list, cursor); ok {
				index = pos.FileIndex
				itemStart = cursor.Add(-time.Duration(pos.SeekPositionS * float64(time.Second)))
			} else {
				index = 0
				itemStart = cursor
			}
			prevList = list
		}
		if index >= len(list) {
			index = 0
		}

		item := list[index]
		end := itemStart.Add(time.Duration(item.DurationS) * time.Second)
		if end.After(horizon) {
			end = horizon
		}

		programs = append(programs, models.EPGProgram{
			ChannelID: channelID,
			StartTime: itemStart,
			EndTime:   end,
			Title:     displayTitle(item),
			Category:  item.Codec, // best-effort; category is scanner-provided metadata we don't model further
			FileIndex: index,
		})

		cursor = end
		itemStart = end
		index++
	}

	return programs
}

// hasFutureBlock is a conservative stand-in for "no future block exists
// before the horizon": since Resolve has no direct visibility into future
// blocks from here (that lives in the resolver's repository), the projector
// treats persistent emptiness across the whole remaining horizon as "no
// future block" by probing a handful of points; a true implementation
// wired to the schedule-block repository would check directly.
func hasFutureBlock(p *Projector, channelID string, cursor, horizon time.Time) bool {
	_, ok := p.NextActiveAt(channelID, cursor, horizon)
	return ok
}

// NextActiveAt returns the earliest instant in [from, horizon) at which
// channelID resolves a non-empty media list, letting a caller waiting on an
// empty schedule gap (§4.4 Looping) sleep until that instant instead of
// polling blindly. Coarse hourly probing finds the right window, then a
// finer minute-level scan narrows the boundary within it.
func (p *Projector) NextActiveAt(channelID string, from, horizon time.Time) (time.Time, bool) {
	const coarseStep = time.Hour
	const fineStep = time.Minute

	if len(p.resolve(channelID, from)) > 0 {
		return from, true
	}

	prev := from
	cursor := from.Add(coarseStep)
	for cursor.Before(horizon) {
		if len(p.resolve(channelID, cursor)) > 0 {
			for t := prev; t.Before(cursor); t = t.Add(fineStep) {
				if len(p.resolve(channelID, t)) > 0 {
					return t, true
				}
			}
			return cursor, true
		}
		prev = cursor
		cursor = cursor.Add(coarseStep)
	}
	return time.Time{}, false
}

func sameList(a, b []models.MediaItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func displayTitle(item models.MediaItem) string {
	if item.ShowTitle != "" && item.Title != "" {
		return item.ShowTitle + ": " + item.Title
	}
	if item.Title != "" {
		return item.Title
	}
	return item.ShowTitle
}

// CurrentAndNext returns the program airing now and the one after it.
func (p *Projector) CurrentAndNext(channelID string, now time.Time) (current, next *models.EPGProgram) {
	programs := p.Programs(channelID, now, 0)
	for i, prog := range programs {
		if !prog.StartTime.After(now) && prog.EndTime.After(now) {
			current = &programs[i]
			if i+1 < len(programs) {
				next = &programs[i+1]
			}
			return
		}
	}
	return nil, nil
}

// PositionForCurrentProgram maps the currently-airing program back onto
// (fileIndex, seekPosition) using the guide's own projection, so the
// scheduler resumes at exactly what the guide advertises instead of
// re-deriving the position independently (§4.4 single-source-of-truth rule:
// EPG-first, C3-fallback only when no program is found).
func (p *Projector) PositionForCurrentProgram(channelID string, now time.Time, anchor time.Time, media []models.MediaItem) (models.Position, bool) {
	current, _ := p.CurrentAndNext(channelID, now)
	if current == nil {
		return models.Position{}, false
	}
	if current.FileIndex < 0 || current.FileIndex >= len(media) {
		return models.Position{}, false
	}

	seek := now.Sub(current.StartTime).Seconds()
	if seek < 0 {
		seek = 0
	}
	return models.Position{
		FileIndex:      current.FileIndex,
		SeekPositionS:  seek,
		ElapsedSeconds: seek,
	}, true
}
