package orchestrator

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/channelcast/channelcast/internal/config"
)

func loadAndValidate(path string) (*config.Config, error) {
	return config.Load(path)
}

// WatchConfig reloads cfg's validated fields on file change, logging the
// new values. Stream knobs and EPG horizons take effect live (the scheduler,
// viewer tracker, and EPG projector all read their settings through an
// indirection that reloadConfig swaps). Server and database settings are
// neither applied nor logged on reload; they take effect only on restart.
func (o *Orchestrator) WatchConfig(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				o.reloadConfig(path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				o.logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (o *Orchestrator) reloadConfig(path string) {
	fresh, err := loadAndValidate(path)
	if err != nil {
		o.logger.Error("config reload failed; keeping previous configuration", "error", err)
		return
	}

	o.cfg.Stream = fresh.Stream
	o.cfg.EPG = fresh.EPG

	// Swapping the pointer means every actor's next spec build and the
	// max-concurrent gate observe the new values immediately; no component
	// holds a stale value copy.
	streamCopy := fresh.Stream
	o.streamCfg.Store(&streamCopy)
	o.maxConcurrent.Store(int64(fresh.Stream.MaxConcurrentStreams))
	o.tracker.SetGrace(fresh.Stream.ViewerGracePeriod())
	o.projector.SetHorizon(fresh.EPG.LookaheadHours, fresh.EPG.CacheTTL(), fresh.EPG.DatabaseCacheTTL())

	o.logger.Info("configuration reloaded",
		"viewer_grace_period_seconds", fresh.Stream.ViewerGracePeriodS,
		"hw_accel", fresh.Stream.HWAccel,
		"max_concurrent_streams", fresh.Stream.MaxConcurrentStreams,
		"epg_lookahead_hours", fresh.EPG.LookaheadHours)
}
