// Package scheduler implements the Channel Scheduler (C4): a per-channel
// serialising actor driving the state machine of §4.4. Each channel owns one
// goroutine consuming a private, buffered event queue; all state mutation
// happens on that goroutine, eliminating the dual-spawn races the design
// notes attribute to callback/promise-based supervision in the source.
package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/channelcast/channelcast/internal/bumper"
	"github.com/channelcast/channelcast/internal/config"
	"github.com/channelcast/channelcast/internal/hls"
	"github.com/channelcast/channelcast/internal/models"
	"github.com/channelcast/channelcast/internal/scheduletime"
	"github.com/channelcast/channelcast/internal/transcoder"
)

// EventKind enumerates the typed events of §4.4's transition table, plus one
// internal housekeeping event (retryResolve for waiting mode) not named in
// the table but required to implement it.
type EventKind int

const (
	EvActivate EventKind = iota
	EvDeactivate         // viewerGraceExpired
	EvItemEnd
	EvWorkerReported
	EvWorkerFailed
	EvWorkerExited
	EvDeleteChannel
	evRetryResolve
)

type event struct {
	kind          EventKind
	segmentNumber int
	isTransition  bool
	err           error
}

// Dependencies wires the scheduler to the other components without coupling
// it to the repository layer directly — the same narrow-seam pattern as C2
// and C3 (resolver.BucketLookup, scheduletime.PositionAt).
type Dependencies struct {
	// Resolve returns the ordered media list currently applicable to a
	// channel (wraps resolver.Resolve plus repository lookups).
	Resolve func(channelID string, at time.Time) []models.MediaItem

	// RestorePosition implements the single-source-of-truth restart-recovery
	// rule (§4.4): EPG-first, falling back to scheduletime.PositionAt. ok is
	// false only when neither source can place the channel (e.g. empty media).
	RestorePosition func(channelID string, media []models.MediaItem, anchor time.Time, now time.Time) (models.Position, bool)

	// PersistAnchor records a newly-established scheduleAnchorTime (§3
	// invariant: the anchor only advances via explicit reset).
	PersistAnchor func(channelID string, currentIndex int, anchor time.Time) error

	// NextActiveAt returns the earliest instant in [from, horizon) at which
	// a channel's media list is non-empty again (epg.Projector.NextActiveAt).
	// Probed up to 24h ahead; the wait is shortened below the flat 60s retry
	// only when the next non-empty instant is less than 60s away (§4.4
	// Looping). May be nil, in which case the flat retry is always used.
	NextActiveAt func(channelID string, from, horizon time.Time) (time.Time, bool)

	Worker *transcoder.Worker
	HLS    *hls.Service
	Bumper *bumper.Generator

	// Stream returns the current stream configuration. It's a function
	// rather than a value so a config hot-reload (C10) can swap it in and
	// have every subsequent activation/transition observe it immediately.
	Stream func() config.StreamConfig
	Logger hclog.Logger
}

// Scheduler owns one actor per known channel.
type Scheduler struct {
	deps Dependencies

	mu     sync.Mutex
	actors map[string]*actor
}

// New creates a Scheduler. Channels must be registered with RegisterChannel
// before they can be activated.
func New(deps Dependencies) *Scheduler {
	return &Scheduler{deps: deps, actors: make(map[string]*actor)}
}

// RegisterChannel starts the actor goroutine for ch. recoverPending marks
// that the next activation should consult RestorePosition instead of
// computing position fresh (§4.4 "restart recovery").
func (s *Scheduler) RegisterChannel(ch models.Channel, recoverPending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actors[ch.ID]; exists {
		return
	}

	a := &actor{
		sched:           s,
		channel:         ch,
		state:           models.ChannelIdle,
		events:          make(chan event, 32),
		stop:            make(chan struct{}),
		recoverPending:  recoverPending,
		logger:          s.deps.Logger.Named(ch.Slug),
	}
	s.actors[ch.ID] = a
	go a.run()
}

func (s *Scheduler) actorFor(channelID string) *actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actors[channelID]
}

// Activate signals viewer presence for channelID (C7 -> C4, §4.7).
func (s *Scheduler) Activate(channelID string) {
	if a := s.actorFor(channelID); a != nil {
		a.send(event{kind: EvActivate})
	}
}

// Deactivate signals the viewer grace period has expired (C7 -> C4).
func (s *Scheduler) Deactivate(channelID string) {
	if a := s.actorFor(channelID); a != nil {
		a.send(event{kind: EvDeactivate})
	}
}

// DeleteChannel stops and removes a channel's actor (any state -> Idle,
// then removed).
func (s *Scheduler) DeleteChannel(channelID string) {
	a := s.actorFor(channelID)
	if a == nil {
		return
	}
	a.send(event{kind: EvDeleteChannel})
}

// State reports a channel's current scheduler state, for the status API.
func (s *Scheduler) State(channelID string) (models.ChannelState, bool) {
	a := s.actorFor(channelID)
	if a == nil {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, true
}

// Snapshot returns the restart-survivable fields for every registered
// channel (C9's Save input).
func (s *Scheduler) Snapshot() []models.ChannelSnapshot {
	s.mu.Lock()
	actors := make([]*actor, 0, len(s.actors))
	for _, a := range s.actors {
		actors = append(actors, a)
	}
	s.mu.Unlock()

	out := make([]models.ChannelSnapshot, 0, len(actors))
	for _, a := range actors {
		a.mu.Lock()
		out = append(out, models.ChannelSnapshot{
			ChannelID:          a.channel.ID,
			CurrentIndex:       a.channel.CurrentIndex,
			ScheduleAnchorTime: a.channel.ScheduleAnchorTime,
			WasStreaming:       a.state == models.ChannelStreaming || a.state == models.ChannelTransitioning,
		})
		a.mu.Unlock()
	}
	return out
}

// actor is the per-channel serialising state machine.
type actor struct {
	sched  *Scheduler
	logger hclog.Logger

	events chan event
	stop   chan struct{}

	mu      sync.Mutex // guards channel + state against concurrent reads from Snapshot/State
	channel models.Channel
	state   models.ChannelState

	currentMedia   []models.MediaItem
	recoverPending bool

	generation   atomic.Int64
	failureTimes []time.Time
	attemptCount int
}

func (a *actor) send(ev event) {
	select {
	case a.events <- ev:
	default:
		a.logger.Warn("actor event queue full; dropping event", "kind", ev.kind)
	}
}

func (a *actor) setState(s models.ChannelState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *actor) getState() models.ChannelState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *actor) run() {
	for {
		select {
		case ev := <-a.events:
			a.handle(ev)
		case <-a.stop:
			return
		}
	}
}

func (a *actor) handle(ev event) {
	if ev.kind == EvDeleteChannel {
		a.onDelete()
		return
	}

	switch a.getState() {
	case models.ChannelIdle:
		switch ev.kind {
		case EvActivate, evRetryResolve:
			a.onActivate()
		}
	case models.ChannelStarting:
		switch ev.kind {
		case EvWorkerReported:
			a.setState(models.ChannelStreaming)
			a.attemptCount = 0
			a.failureTimes = nil
			a.logger.Info("channel streaming", "channel_id", a.channel.ID)
		case EvWorkerFailed:
			a.onWorkerFailed()
		case EvDeactivate:
			a.onViewerGraceExpired()
		}
	case models.ChannelStreaming:
		switch ev.kind {
		case EvItemEnd:
			a.onItemEnd()
		case EvWorkerFailed:
			a.onWorkerFailed()
		case EvDeactivate:
			a.onViewerGraceExpired()
		}
	case models.ChannelTransitioning:
		switch ev.kind {
		case EvWorkerReported:
			a.sched.deps.HLS.RecordTransition(a.channel.ID, ev.segmentNumber)
			a.setState(models.ChannelStreaming)
			a.attemptCount = 0
			a.failureTimes = nil
			a.logger.Info("transition complete", "channel_id", a.channel.ID, "segment", ev.segmentNumber)
		case EvWorkerFailed:
			a.onWorkerFailed()
		case EvDeactivate:
			a.onViewerGraceExpired()
		}
	case models.ChannelStopping:
		switch ev.kind {
		case EvWorkerExited:
			a.setState(models.ChannelIdle)
		}
	}
}

// onActivate implements Idle -> Starting: resolve media; compute position
// (restart-recovery first, else C3); record the anchor if absent; spawn the
// worker.
func (a *actor) onActivate() {
	now := time.Now()
	media := a.sched.deps.Resolve(a.channel.ID, now)
	if len(media) == 0 {
		a.logger.Warn("no media resolved; remaining idle", "channel_id", a.channel.ID)
		a.scheduleRetry(a.emptyMediaRetryDelay(now))
		return
	}
	a.currentMedia = media

	var pos models.Position
	var ok bool
	if a.recoverPending {
		pos, ok = a.sched.deps.RestorePosition(a.channel.ID, media, a.channel.ScheduleAnchorTime, now)
		a.recoverPending = false
	}
	if !ok {
		if a.channel.ScheduleAnchorTime.IsZero() {
			a.channel.ScheduleAnchorTime = now
			if err := a.sched.deps.PersistAnchor(a.channel.ID, 0, now); err != nil {
				a.logger.Warn("persist anchor failed", "channel_id", a.channel.ID, "error", err)
			}
		}
		pos, ok = scheduletime.PositionAt(a.channel.ScheduleAnchorTime, media, now)
	}
	if !ok {
		a.logger.Warn("could not compute position; remaining idle", "channel_id", a.channel.ID)
		a.scheduleRetry(60 * time.Second)
		return
	}

	a.channel.CurrentIndex = pos.FileIndex
	item := media[pos.FileIndex]
	stream := a.sched.deps.Stream()

	spec := transcoder.RunSpec{
		ChannelID:          a.channel.ID,
		Input:              item.Path,
		StartPositionS:     pos.SeekPositionS,
		OutputDir:          a.channel.OutputDir,
		VideoBitrateKbps:   a.channel.VideoBitrateKbps,
		AudioBitrateKbps:   a.channel.AudioBitrateKbps,
		Width:              a.channel.Width,
		Height:             a.channel.Height,
		FPS:                a.channel.FPS,
		SegmentDurationS:   a.channel.SegmentDurationS,
		PlaylistWindowSize: stream.PlaylistWindowSize,
		SegmentMaxAgeS:     stream.SegmentMaxAgeS,
		Preset:             stream.TranscoderPreset,
		HWAccel:            stream.HWAccel,
	}

	a.setState(models.ChannelStarting)
	gen := a.generation.Add(1)

	_, err := a.sched.deps.Worker.Start(context.Background(), spec,
		a.onWorkerItemEndFor(gen), a.onWorkerSegmentsReadyFor(gen))
	if err != nil {
		a.logger.Error("worker spawn failed", "channel_id", a.channel.ID, "error", err)
		a.send(event{kind: EvWorkerFailed})
	}
}

// onItemEnd implements Streaming -> Transitioning: build the bumper + next
// item(s) concat manifest and spawn the transitioning worker.
func (a *actor) onItemEnd() {
	a.setState(models.ChannelTransitioning)

	now := time.Now()
	media := a.sched.deps.Resolve(a.channel.ID, now)
	if len(media) == 0 {
		a.logger.Warn("media list empty at item end; stopping and waiting", "channel_id", a.channel.ID)
		a.sched.deps.Worker.Stop(a.channel.ID)
		a.setState(models.ChannelIdle)
		a.scheduleRetry(a.emptyMediaRetryDelay(now))
		return
	}
	a.currentMedia = media

	pos, ok := scheduletime.PositionAt(a.channel.ScheduleAnchorTime, media, now)
	if !ok {
		a.logger.Warn("could not compute position at item end; stopping and waiting", "channel_id", a.channel.ID)
		a.sched.deps.Worker.Stop(a.channel.ID)
		a.setState(models.ChannelIdle)
		a.scheduleRetry(60 * time.Second)
		return
	}
	nextIndex := pos.FileIndex
	nextItem := media[nextIndex]
	stream := a.sched.deps.Stream()

	bumperSpec := bumper.Spec{
		NextShowName:     nextItem.ShowTitle,
		NextEpisodeTitle: nextItem.Title,
		DurationS:        10,
		Width:            a.channel.Width,
		Height:           a.channel.Height,
		FPS:              a.channel.FPS,
		VideoBitrateKbps: a.channel.VideoBitrateKbps,
		AudioBitrateKbps: a.channel.AudioBitrateKbps,
		CacheRoot:        stream.BumperCacheRoot,
	}
	bumperPath, err := a.sched.deps.Bumper.ProduceUpNext(context.Background(), bumperSpec)
	if err != nil {
		a.logger.Warn("bumper generation failed, continuing without it", "channel_id", a.channel.ID, "error", err)
		bumperPath = ""
	}

	items := []models.MediaItem{nextItem}
	lookahead := nextIndex
	for i := 0; i < 2; i++ {
		lookahead++
		if lookahead >= len(media) {
			lookahead = 0
		}
		items = append(items, media[lookahead])
	}

	manifestDir := filepath.Join(a.channel.OutputDir, "manifest")
	manifestPath, err := writeConcatManifest(manifestDir, bumperPath, items, 0)
	if err != nil {
		a.logger.Error("concat manifest write failed", "channel_id", a.channel.ID, "error", err)
		a.send(event{kind: EvWorkerFailed})
		return
	}

	a.channel.CurrentIndex = nextIndex

	spec := transcoder.RunSpec{
		ChannelID:          a.channel.ID,
		ConcatManifestPath: manifestPath,
		OutputDir:          a.channel.OutputDir,
		VideoBitrateKbps:   a.channel.VideoBitrateKbps,
		AudioBitrateKbps:   a.channel.AudioBitrateKbps,
		Width:              a.channel.Width,
		Height:             a.channel.Height,
		FPS:                a.channel.FPS,
		SegmentDurationS:   a.channel.SegmentDurationS,
		PlaylistWindowSize: stream.PlaylistWindowSize,
		SegmentMaxAgeS:     stream.SegmentMaxAgeS,
		Preset:             stream.TranscoderPreset,
		HWAccel:            stream.HWAccel,
	}

	gen := a.generation.Add(1)

	_, err = a.sched.deps.Worker.Start(context.Background(), spec,
		a.onWorkerItemEndFor(gen), a.onWorkerSegmentsReadyFor(gen))
	if err != nil {
		a.logger.Error("transition worker spawn failed", "channel_id", a.channel.ID, "error", err)
		a.send(event{kind: EvWorkerFailed})
	}
}

// onWorkerFailed implements the WorkerRepeatedlyFails policy (§4.4):
// 3 consecutive abnormal exits within 60s backs off 30s; fatal after 5
// total attempts within the failing streak.
func (a *actor) onWorkerFailed() {
	now := time.Now()
	a.failureTimes = append(a.failureTimes, now)
	cutoff := now.Add(-60 * time.Second)
	kept := a.failureTimes[:0]
	for _, t := range a.failureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	a.failureTimes = kept
	a.attemptCount++

	a.setState(models.ChannelIdle)

	if a.attemptCount >= 5 {
		a.logger.Error("channel worker repeatedly failing; marking fatal, will not auto-retry",
			"channel_id", a.channel.ID, "attempts", a.attemptCount)
		return
	}

	if len(a.failureTimes) >= 3 {
		a.logger.Warn("worker failing repeatedly; backing off 30s", "channel_id", a.channel.ID)
		a.scheduleRetry(30 * time.Second)
		return
	}

	a.scheduleRetry(2 * time.Second)
}

// onViewerGraceExpired implements Streaming/Transitioning -> Stopping.
func (a *actor) onViewerGraceExpired() {
	a.setState(models.ChannelStopping)
	channelID := a.channel.ID
	go func() {
		a.sched.deps.Worker.Stop(channelID)
		a.send(event{kind: EvWorkerExited})
	}()
}

// onDelete implements Any -> deleteChannel -> Idle, then actor teardown.
func (a *actor) onDelete() {
	channelID := a.channel.ID
	a.sched.deps.Worker.Stop(channelID)
	a.setState(models.ChannelIdle)

	a.sched.mu.Lock()
	delete(a.sched.actors, channelID)
	a.sched.mu.Unlock()

	close(a.stop)
}

// emptyMediaRetryDelay returns how long to wait before retrying an empty
// media list: the flat 60s poll, or a shorter wait when a future schedule
// block is known to start sooner (§4.4 Looping).
func (a *actor) emptyMediaRetryDelay(now time.Time) time.Duration {
	const flatRetry = 60 * time.Second
	if a.sched.deps.NextActiveAt == nil {
		return flatRetry
	}
	next, ok := a.sched.deps.NextActiveAt(a.channel.ID, now, now.Add(24*time.Hour))
	if !ok {
		return flatRetry
	}
	if wait := next.Sub(now); wait > 0 && wait < flatRetry {
		return wait
	}
	return flatRetry
}

// scheduleRetry arms a one-shot timer that re-sends an activation-equivalent
// event after d, implementing the "waiting mode" 60s retry of §4.4. The
// retry is tagged with the actor's current generation so a retry fired after
// the channel has since moved on (reactivated, deleted) is a no-op.
func (a *actor) scheduleRetry(d time.Duration) {
	gen := a.generation.Load()
	time.AfterFunc(d, func() {
		if a.generation.Load() != gen {
			return
		}
		a.send(event{kind: evRetryResolve})
	})
}

func (a *actor) onWorkerItemEndFor(gen int64) transcoder.OnItemEnd {
	return func(channelID string, reason transcoder.ExitReason, err error) {
		if a.generation.Load() != gen {
			return
		}
		if reason == transcoder.ExitGraceful {
			a.send(event{kind: EvItemEnd})
			return
		}
		if reason == transcoder.ExitAbnormal {
			a.send(event{kind: EvWorkerFailed, err: err})
		}
	}
}

func (a *actor) onWorkerSegmentsReadyFor(gen int64) transcoder.OnSegmentsReady {
	return func(channelID string, segmentNumber int, isTransition bool) {
		if a.generation.Load() != gen {
			return
		}
		a.send(event{kind: EvWorkerReported, segmentNumber: segmentNumber, isTransition: isTransition})
	}
}
