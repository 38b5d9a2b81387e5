// Package orchestrator wires every component into a running process (C10):
// repository construction, orphan cleanup, state restore, the per-channel
// scheduler actors, the HTTP playback/EPG surface, and graceful shutdown.
// The only process-global state — the channel set and the
// maxConcurrentStreams gate — lives here, behind explicit methods (§9 design
// notes, "Global state").
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/channelcast/channelcast/internal/bumper"
	"github.com/channelcast/channelcast/internal/config"
	"github.com/channelcast/channelcast/internal/epg"
	"github.com/channelcast/channelcast/internal/hls"
	"github.com/channelcast/channelcast/internal/models"
	"github.com/channelcast/channelcast/internal/persistence"
	"github.com/channelcast/channelcast/internal/resolver"
	"github.com/channelcast/channelcast/internal/scheduler"
	"github.com/channelcast/channelcast/internal/scheduletime"
	"github.com/channelcast/channelcast/internal/store"
	"github.com/channelcast/channelcast/internal/transcoder"
	"github.com/channelcast/channelcast/internal/viewer"
)

// Orchestrator is the top-level, process-wide wiring.
type Orchestrator struct {
	cfg    *config.Config
	logger hclog.Logger
	db     *gorm.DB

	channels       *store.ChannelRepository
	buckets        *store.BucketRepository
	channelBuckets *store.ChannelBucketRepository
	scheduleBlocks *store.ScheduleBlockRepository
	epgCache       *store.EPGCacheRepository

	worker   *transcoder.Worker
	hlsSvc   *hls.Service
	bumperGen *bumper.Generator
	tracker  *viewer.Tracker
	projector *epg.Projector
	stateStore *persistence.Store
	sched    *scheduler.Scheduler

	streamCfg     atomic.Pointer[config.StreamConfig]
	maxConcurrent atomic.Int64

	activeMu sync.Mutex
	active   map[string]bool

	channelsByID   map[string]models.Channel
	channelsBySlug map[string]models.Channel

	stopSave context.CancelFunc
}

// New constructs and wires an Orchestrator from cfg. It connects the
// database, builds every repository and component, but does not yet spawn
// workers or start listening (call Run for that).
func New(cfg *config.Config, logger hclog.Logger) (*Orchestrator, error) {
	db, err := store.Connect(cfg.Database, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	o := &Orchestrator{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		channels:       store.NewChannelRepository(db),
		buckets:        store.NewBucketRepository(db),
		channelBuckets: store.NewChannelBucketRepository(db),
		scheduleBlocks: store.NewScheduleBlockRepository(db),
		epgCache:       store.NewEPGCacheRepository(db),
		active:         make(map[string]bool),
		channelsByID:   make(map[string]models.Channel),
		channelsBySlug: make(map[string]models.Channel),
	}

	o.streamCfg.Store(&cfg.Stream)
	o.maxConcurrent.Store(int64(cfg.Stream.MaxConcurrentStreams))

	o.worker = transcoder.New(cfg.Stream.FFmpegPath, logger.Named("transcoder"))
	o.hlsSvc = hls.NewService()
	o.bumperGen = bumper.New(cfg.Stream.FFmpegPath, logger.Named("bumper"))
	o.tracker = viewer.New(cfg.Stream.ViewerGracePeriod(), logger.Named("viewer"))
	o.stateStore = persistence.NewStore(cfg.Stream.StateFilePath, logger.Named("persistence"))

	o.projector = epg.NewProjector(
		o.resolveForEPG,
		o.anchorForChannel,
		cfg.EPG.LookaheadHours,
		cfg.EPG.CacheTTL(),
		cfg.EPG.DatabaseCacheTTL(),
		epg.NewStoreExternalCache(o.epgCache),
	)

	o.sched = scheduler.New(scheduler.Dependencies{
		Resolve:         o.resolveForChannel,
		RestorePosition: o.restorePosition,
		PersistAnchor:   o.channels.SaveAnchor,
		NextActiveAt:    o.projector.NextActiveAt,
		Worker:          o.worker,
		HLS:             o.hlsSvc,
		Bumper:          o.bumperGen,
		Stream:          o.currentStream,
		Logger:          logger.Named("scheduler"),
	})

	return o, nil
}

// currentStream returns the live stream configuration, updated by
// reloadConfig on a config hot-reload.
func (o *Orchestrator) currentStream() config.StreamConfig {
	return *o.streamCfg.Load()
}

// Bootstrap kills orphaned transcoder subprocesses, loads channel config and
// persisted state, and registers every channel's actor (without activating
// any of them — §4.10 "does not auto-start channels").
func (o *Orchestrator) Bootstrap() error {
	killed := o.worker.KillOrphans(o.cfg.Stream.OutputRoot)
	if killed > 0 {
		o.logger.Info("cleaned up orphaned transcoder processes", "count", killed)
	}

	channels, err := o.channels.List()
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	snapshot, err := o.stateStore.Load()
	if err != nil {
		o.logger.Warn("state restore failed; starting clean", "error", err)
		snapshot = persistence.Snapshot{}
	}
	recoverByChannel := make(map[string]bool, len(snapshot.Channels))
	anchorByChannel := make(map[string]time.Time, len(snapshot.Channels))
	indexByChannel := make(map[string]int, len(snapshot.Channels))
	for _, cs := range snapshot.Channels {
		recoverByChannel[cs.ChannelID] = cs.WasStreaming
		anchorByChannel[cs.ChannelID] = cs.ScheduleAnchorTime
		indexByChannel[cs.ChannelID] = cs.CurrentIndex
	}

	for _, ch := range channels {
		if anchor, ok := anchorByChannel[ch.ID]; ok && !anchor.IsZero() {
			ch.ScheduleAnchorTime = anchor
			ch.CurrentIndex = indexByChannel[ch.ID]
		}
		o.channelsByID[ch.ID] = ch
		o.channelsBySlug[ch.Slug] = ch
		o.sched.RegisterChannel(ch, recoverByChannel[ch.ID])
	}

	o.logger.Info("bootstrap complete", "channels", len(channels))
	return nil
}

// Run starts the viewer tracker, the periodic state-save loop, and blocks
// until ctx is cancelled, then persists final state.
func (o *Orchestrator) Run(ctx context.Context) error {
	go o.tracker.Run(ctx)
	go o.forwardActivations(ctx)

	saveCtx, cancel := context.WithCancel(ctx)
	o.stopSave = cancel
	go o.periodicSave(saveCtx)

	<-ctx.Done()

	if err := o.persistState(); err != nil {
		o.logger.Error("final state save failed", "error", err)
	}
	return nil
}

func (o *Orchestrator) forwardActivations(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.tracker.Events:
			if ev.Activate {
				o.requestActivate(ev.ChannelID)
			} else {
				o.requestDeactivate(ev.ChannelID)
			}
		}
	}
}

// requestActivate gates new activations behind maxConcurrentStreams (§9
// "Global state"): a channel already counted as active is always forwarded
// (keep-alive); a new one is rejected once the cap is reached.
func (o *Orchestrator) requestActivate(channelID string) {
	o.activeMu.Lock()
	if !o.active[channelID] {
		if int64(len(o.active)) >= o.maxConcurrent.Load() {
			o.activeMu.Unlock()
			o.logger.Warn("max concurrent streams reached; rejecting activation", "channel_id", channelID)
			return
		}
		o.active[channelID] = true
	}
	o.activeMu.Unlock()
	o.sched.Activate(channelID)
}

func (o *Orchestrator) requestDeactivate(channelID string) {
	o.activeMu.Lock()
	delete(o.active, channelID)
	o.activeMu.Unlock()
	o.sched.Deactivate(channelID)
}

func (o *Orchestrator) periodicSave(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.persistState(); err != nil {
				o.logger.Warn("periodic state save failed", "error", err)
			}
		}
	}
}

func (o *Orchestrator) persistState() error {
	return o.stateStore.Save(o.sched.Snapshot())
}

// Shutdown stops the HTTP surface's callers should be calling separately;
// this performs the orchestrator-owned teardown: cancel the save loop (Run's
// ctx cancellation already triggers the final save).
func (o *Orchestrator) Shutdown() {
	if o.stopSave != nil {
		o.stopSave()
	}
}

// resolveForChannel wraps resolver.Resolve with this orchestrator's
// repositories, matching the resolver.BucketLookup/ChannelBucketLink seam.
func (o *Orchestrator) resolveForChannel(channelID string, at time.Time) []models.MediaItem {
	blocks, err := o.scheduleBlocks.ForChannel(channelID)
	if err != nil {
		o.logger.Warn("schedule block lookup failed", "channel_id", channelID, "error", err)
		blocks = nil
	}
	linkRows, err := o.channelBuckets.Links(channelID)
	if err != nil {
		o.logger.Warn("channel bucket link lookup failed", "channel_id", channelID, "error", err)
		linkRows = nil
	}
	links := make([]resolver.ChannelBucketLink, len(linkRows))
	for i, l := range linkRows {
		links[i] = resolver.ChannelBucketLink{BucketID: l.BucketID, Priority: l.Priority}
	}
	return resolver.Resolve(channelID, at, blocks, links, o.buckets.MediaItems)
}

func (o *Orchestrator) resolveForEPG(channelID string, at time.Time) []models.MediaItem {
	return o.resolveForChannel(channelID, at)
}

// anchorForChannel looks up a registered channel's scheduleAnchorTime for the
// EPG projector; returns the zero Time for an unknown channel. C3 has no
// special case for a zero anchor: the elapsed time from it saturates at the
// maximum time.Duration, so every probe lands on the same fixed offset.
func (o *Orchestrator) anchorForChannel(channelID string) time.Time {
	if ch, ok := o.channelsByID[channelID]; ok {
		return ch.ScheduleAnchorTime
	}
	return time.Time{}
}

// restorePosition implements the single-source-of-truth restart-recovery
// rule: EPG first, C3 fallback (§4.4).
func (o *Orchestrator) restorePosition(channelID string, media []models.MediaItem, anchor time.Time, now time.Time) (models.Position, bool) {
	if pos, ok := o.projector.PositionForCurrentProgram(channelID, now, anchor, media); ok {
		return pos, true
	}
	return scheduletime.PositionAt(anchor, media, now)
}

func (o *Orchestrator) channelBySlug(slug string) (models.Channel, bool) {
	ch, ok := o.channelsBySlug[slug]
	return ch, ok
}

func (o *Orchestrator) allChannels() []models.Channel {
	out := make([]models.Channel, 0, len(o.channelsByID))
	for _, ch := range o.channelsByID {
		out = append(out, ch)
	}
	return out
}
