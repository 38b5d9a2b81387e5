// Package transcoder implements the Transcoder Worker (C1): it launches and
// supervises one transcoder subprocess per active channel, surfaces
// lifecycle events, and force-kills orphans. Grounded on the reference
// stack's internal/transcode/ffmpeg/runner.go CommandRunner/hw-fallback
// shape, generalized from a VOD session model to the always-on per-channel
// model of §4.1.
package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	gopsutilprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/channelcast/channelcast/internal/errors"
)

// ExitReason classifies why a subprocess ended, driving the lifecycle event
// table in §4.1.
type ExitReason int

const (
	ExitGraceful ExitReason = iota
	ExitStopped             // SIGTERM/SIGKILL initiated by Stop(); no event.
	ExitAbnormal
)

// Handle is returned by Start and represents one supervised run.
type Handle struct {
	ChannelID string
	PID       int
	StartedAt time.Time
}

// OnItemEnd is invoked when the subprocess signals (via exit) that the item
// finished, or after an abnormal-exit recovery delay (§4.1 failure table).
type OnItemEnd func(channelID string, reason ExitReason, err error)

// OnSegmentsReady is invoked once pollProgress observes evidence that the
// worker is producing output: for an initial start, any segment reference;
// for a transition, a segment number strictly greater than the pre-spawn
// baseline (the new segment number is passed). Drives the scheduler's
// Starting/Transitioning -> Streaming transition (§4.4).
type OnSegmentsReady func(channelID string, segmentNumber int, isTransition bool)

// CommandRunner abstracts process start/wait for testability, matching the
// reference stack's runner.go CommandRunner seam.
type CommandRunner interface {
	Start(cmd *exec.Cmd) error
	Wait(cmd *exec.Cmd) error
}

type execRunner struct{}

func (execRunner) Start(cmd *exec.Cmd) error { return cmd.Start() }
func (execRunner) Wait(cmd *exec.Cmd) error  { return cmd.Wait() }

type runningProcess struct {
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	startedAt time.Time
	stopping  bool
	baseline  int // highest segment number observed just before spawn
}

// Worker supervises at most one subprocess per channel.
type Worker struct {
	ffmpegPath string
	logger     hclog.Logger
	runner     CommandRunner

	mu   sync.Mutex
	runs map[string]*runningProcess
}

// New creates a Worker. logger should already be named (e.g. "transcoder").
func New(ffmpegPath string, logger hclog.Logger) *Worker {
	return &Worker{
		ffmpegPath: ffmpegPath,
		logger:     logger,
		runner:     execRunner{},
		runs:       make(map[string]*runningProcess),
	}
}

// WithRunner overrides the CommandRunner, for tests.
func (w *Worker) WithRunner(r CommandRunner) *Worker {
	w.runner = r
	return w
}

// IsActive reports whether a worker is currently associated with channelID.
func (w *Worker) IsActive(channelID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.runs[channelID]
	return ok
}

// Start spawns a transcoder for spec.ChannelID, first terminating any
// existing worker for that channel and waiting >=200ms (§4.1 "exactly one
// worker may be associated with a channel at a time").
func (w *Worker) Start(ctx context.Context, spec RunSpec, onItemEnd OnItemEnd, onSegmentsReady OnSegmentsReady) (*Handle, error) {
	if err := os.MkdirAll(spec.OutputDir, 0o755); err != nil {
		return nil, errors.NewTranscoderSpawnError(spec.ChannelID, err)
	}
	clearStartingPlaceholder(spec.OutputDir)

	if spec.ConcatManifestPath == "" && spec.Input == "" {
		return nil, errors.NewTranscoderSpawnError(spec.ChannelID, fmt.Errorf("no input or concat manifest given"))
	}
	if spec.Input != "" {
		if _, err := os.Stat(spec.Input); err != nil {
			return nil, errors.NewTranscoderSpawnError(spec.ChannelID, fmt.Errorf("input not found: %w", err))
		}
	}
	if spec.ConcatManifestPath != "" {
		if info, err := os.Stat(spec.ConcatManifestPath); err != nil || info.Size() == 0 {
			return nil, errors.NewTranscoderSpawnError(spec.ChannelID, fmt.Errorf("concat manifest missing or empty"))
		}
	}

	baseline, isTransition := w.baselineSegment(spec)

	if w.IsActive(spec.ChannelID) {
		w.Stop(spec.ChannelID)
		time.Sleep(200 * time.Millisecond)
	}

	runCtx, cancel := context.WithCancel(ctx)
	args := BuildArgs(spec)
	cmd := exec.CommandContext(runCtx, w.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, errors.NewTranscoderSpawnError(spec.ChannelID, err)
	}

	if err := w.runner.Start(cmd); err != nil {
		if isHardwareAccelError(err.Error()) {
			fallbackArgs := toSoftwareFallback(args)
			cmd = exec.CommandContext(runCtx, w.ffmpegPath, fallbackArgs...)
			stderr, err = cmd.StderrPipe()
			if err == nil {
				err = w.runner.Start(cmd)
			}
		}
		if err != nil {
			cancel()
			return nil, errors.NewTranscoderSpawnError(spec.ChannelID, err)
		}
	}

	rp := &runningProcess{cmd: cmd, cancel: cancel, startedAt: time.Now(), baseline: baseline}
	w.mu.Lock()
	w.runs[spec.ChannelID] = rp
	w.mu.Unlock()

	go w.monitorStderr(spec.ChannelID, stderr)
	go w.waitAndReport(spec.ChannelID, rp, onItemEnd)
	go w.pollProgress(spec.ChannelID, spec, isTransition, onSegmentsReady)

	return &Handle{ChannelID: spec.ChannelID, PID: cmd.Process.Pid, StartedAt: rp.startedAt}, nil
}

func (w *Worker) waitAndReport(channelID string, rp *runningProcess, onItemEnd OnItemEnd) {
	err := w.runner.Wait(rp.cmd)

	w.mu.Lock()
	stopping := rp.stopping
	if w.runs[channelID] == rp {
		delete(w.runs, channelID)
	}
	w.mu.Unlock()

	if stopping {
		return // Stop()-initiated; no event per §4.1.
	}

	if err == nil {
		onItemEnd(channelID, ExitGraceful, nil)
		return
	}

	// AbnormalExit: surface the error, then invoke onItemEnd after 1s to
	// allow higher-level recovery (§4.1 Failures table).
	w.logger.Error("transcoder exited abnormally", "channel_id", channelID, "error", err)
	time.AfterFunc(1*time.Second, func() {
		onItemEnd(channelID, ExitAbnormal, err)
	})
}

// Stop sends SIGTERM, waits up to 5s, then SIGKILL, returning only after the
// subprocess has been reaped (§4.1).
func (w *Worker) Stop(channelID string) {
	w.mu.Lock()
	rp, ok := w.runs[channelID]
	if ok {
		rp.stopping = true
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	if rp.cmd.Process != nil {
		_ = rp.cmd.Process.Signal(syscallTerm())
	}

	done := make(chan struct{})
	go func() {
		_ = w.runner.Wait(rp.cmd)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		rp.cancel() // cancel's context kills via exec.CommandContext's Cancel (SIGKILL equivalent)
		if rp.cmd.Process != nil {
			_ = rp.cmd.Process.Kill()
		}
		<-done
	}

	w.mu.Lock()
	if w.runs[channelID] == rp {
		delete(w.runs, channelID)
	}
	w.mu.Unlock()
}

// KillOrphans scans the host for transcoder processes whose command line
// references outputDir and terminates them (SIGTERM, 2s, SIGKILL). It is
// advisory/best-effort, invoked at orchestrator startup (§4.1, §4.10).
func (w *Worker) KillOrphans(outputDir string) int {
	procs, err := gopsutilprocess.Processes()
	if err != nil {
		w.logger.Warn("kill orphans: could not list processes", "error", err)
		return 0
	}

	killed := 0
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || !strings.Contains(cmdline, outputDir) {
			continue
		}
		name, _ := p.Name()
		if !strings.Contains(name, "ffmpeg") {
			continue
		}

		_ = p.SendSignal(syscallTerm())
		terminated := make(chan struct{})
		go func(pid int32) {
			for i := 0; i < 20; i++ {
				if running, _ := gopsutilprocess.PidExists(pid); !running {
					close(terminated)
					return
				}
				time.Sleep(100 * time.Millisecond)
			}
			close(terminated)
		}(p.Pid)
		<-terminated

		if running, _ := gopsutilprocess.PidExists(p.Pid); running {
			_ = p.Kill()
		}
		killed++
	}

	if killed > 0 {
		w.logger.Info("killed orphaned transcoder processes", "count", killed, "output_dir", outputDir)
	}
	return killed
}

var benignStderrPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)deprecated pixel format`),
	regexp.MustCompile(`(?i)non-monotonous DTS`),
	regexp.MustCompile(`(?i)Last message repeated`),
}

// monitorStderr parses stderr line-by-line, demoting benign codec warnings
// to debug with rate limiting (first occurrence + every Nth within 5s),
// grounded on the reference stack's runner.go monitorProgress regex style.
func (w *Worker) monitorStderr(channelID string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lastWarn := make(map[string]time.Time)
	count := make(map[string]int)

	for scanner.Scan() {
		line := scanner.Text()
		benign := false
		for _, p := range benignStderrPatterns {
			if p.MatchString(line) {
				benign = true
				break
			}
		}

		if benign {
			count[line]++
			if t, ok := lastWarn[line]; !ok || time.Since(t) > 5*time.Second || count[line]%50 == 1 {
				w.logger.Debug("transcoder stderr (benign)", "channel_id", channelID, "line", line)
				lastWarn[line] = time.Now()
			}
			continue
		}

		w.logger.Warn("transcoder stderr", "channel_id", channelID, "line", line)
	}
}

func clearStartingPlaceholder(outputDir string) {
	_ = os.Remove(outputDir + "/starting")
}
