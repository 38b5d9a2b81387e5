package orchestrator

import (
	"os"
	"runtime"
	"time"

	gopsutilprocess "github.com/shirou/gopsutil/v4/process"
)

// HealthSnapshot is a point-in-time resource/activity summary, grounded on
// the worker's own gopsutil usage (KillOrphans) rather than a new dependency.
type HealthSnapshot struct {
	UptimeSeconds   float64
	ActiveChannels  int
	RegisteredCount int
	Goroutines      int
	RSSBytes        uint64
}

var processStart = time.Now()

// Health reports a resource snapshot for the status API (out of scope per
// §1, but the data source is part of this package so an operator endpoint
// can be added without further wiring).
func (o *Orchestrator) Health() HealthSnapshot {
	snap := HealthSnapshot{
		UptimeSeconds:   time.Since(processStart).Seconds(),
		Goroutines:      runtime.NumGoroutine(),
		RegisteredCount: len(o.channelsByID),
	}

	o.activeMu.Lock()
	snap.ActiveChannels = len(o.active)
	o.activeMu.Unlock()

	if proc, err := gopsutilprocess.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			snap.RSSBytes = mem.RSS
		}
	}

	return snap
}
