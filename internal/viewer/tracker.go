// Package viewer implements the Viewer Session Tracker (C7): it tracks
// recent segment/playlist requests per channel and signals activate and
// deactivate transitions to the Channel Scheduler (§4.7).
package viewer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// RequestKind distinguishes what kind of request refreshed lastSeenAt.
type RequestKind int

const (
	KindPlaylist RequestKind = iota
	KindSegment
)

// ActivationEvent is emitted when a channel crosses the grace-period boundary.
type ActivationEvent struct {
	ChannelID string
	Activate  bool // true = activate, false = deactivate
	At        time.Time
}

// Tracker polls presence once per second and emits activation events on the
// Events channel. No distinction is made between viewers — presence is
// boolean (§4.7).
type Tracker struct {
	grace  atomic.Int64 // time.Duration nanoseconds; read/written via SetGrace
	logger hclog.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
	active   map[string]bool

	Events chan ActivationEvent
}

// New creates a Tracker with the given grace period (default 45s per §6).
func New(grace time.Duration, logger hclog.Logger) *Tracker {
	if grace <= 0 {
		grace = 45 * time.Second
	}
	t := &Tracker{
		logger:   logger,
		lastSeen: make(map[string]time.Time),
		active:   make(map[string]bool),
		Events:   make(chan ActivationEvent, 64),
	}
	t.grace.Store(int64(grace))
	return t
}

// SetGrace updates the grace period live, e.g. on a config hot-reload. A
// non-positive value is ignored.
func (t *Tracker) SetGrace(grace time.Duration) {
	if grace <= 0 {
		return
	}
	t.grace.Store(int64(grace))
}

// NoteRequest records activity for channelID. kind is currently unused for
// presence purposes (any request counts) but is kept in the signature to
// match §4.7's contract and to let future callers distinguish request types
// in logs/metrics without an API change.
func (t *Tracker) NoteRequest(channelID string, kind RequestKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[channelID] = time.Now()
}

// Run starts the once-per-second presence evaluation loop. It blocks until
// ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.evaluate()
		}
	}
}

func (t *Tracker) evaluate() {
	now := time.Now()
	grace := time.Duration(t.grace.Load())

	t.mu.Lock()
	var toEmit []ActivationEvent
	for channelID, seen := range t.lastSeen {
		withinGrace := now.Sub(seen) <= grace
		wasActive := t.active[channelID]

		if withinGrace && !wasActive {
			t.active[channelID] = true
			toEmit = append(toEmit, ActivationEvent{ChannelID: channelID, Activate: true, At: now})
		} else if !withinGrace && wasActive {
			t.active[channelID] = false
			toEmit = append(toEmit, ActivationEvent{ChannelID: channelID, Activate: false, At: now})
		}
	}
	t.mu.Unlock()

	for _, ev := range toEmit {
		select {
		case t.Events <- ev:
		default:
			t.logger.Warn("activation event dropped: channel full", "channel_id", ev.ChannelID)
		}
	}
}

// IsActive reports the tracker's last-evaluated presence state for channelID.
func (t *Tracker) IsActive(channelID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[channelID]
}
