package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/stats"
	"github.com/mkb23/overcode/internal/store"
	"github.com/mkb23/overcode/internal/vcs"
)

// TickInterval is the Monitor Loop's fixed cadence (spec.md §4.J).
const TickInterval = 10 * time.Second

// SleepChunk bounds each slice of the tick's sleep so the activity-signal
// file can cancel the remainder early (spec.md §4.J step 11).
const SleepChunk = 10 * time.Second

// ActiveClaudeSessionRefreshInterval is how often step 3 runs.
const ActiveClaudeSessionRefreshInterval = 10 * time.Second

// StatsRefreshInterval is how often step 4 (transcript stats merge) runs.
const StatsRefreshInterval = 60 * time.Second

// AutoArchiveInterval is how often step 9 runs.
const AutoArchiveInterval = 60 * time.Second

// MaxWorkers bounds the per-session detection worker pool (spec.md §5).
const MaxWorkers = 8

// Config bundles everything a Daemon needs to run one tmux session's
// Monitor Loop.
type Config struct {
	Panes       core.PaneController
	FS          core.FS
	Clock       core.Clock
	Transcripts core.TranscriptReader

	Store       *store.Store
	Dispatcher  *detect.Dispatcher
	TmuxSession string

	// StateDir is ~/.overcode/sessions/<S>, holding monitor_state.json,
	// agent_history.csv, and activity_signal for this tmux session.
	StateDir string

	Pricing stats.Prices
	Logger  *log.Logger
}

// Daemon drives one tmux session's Monitor Loop (spec.md §4.J).
type Daemon struct {
	cfg     Config
	tracker *HeartbeatTracker
	logger  *log.Logger

	loopCount int64

	lastClaudeSessionRefresh time.Time
	lastStatsRefresh         time.Time
	lastAutoArchive          time.Time

	lastActivitySignal time.Time
}

// NewDaemon constructs a Daemon. Callers acquire the daemonlock.Lock
// themselves, before calling Run, so lock lifetime spans the whole
// process rather than being managed internally here.
func NewDaemon(cfg Config) *Daemon {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}
	return &Daemon{cfg: cfg, tracker: NewHeartbeatTracker(), logger: logger}
}

func (d *Daemon) statePath(name string) string {
	return filepath.Join(d.cfg.StateDir, name)
}

// Run executes the Monitor Loop until ctx is cancelled (by a SIGTERM/
// SIGINT handler upstream setting the loop's shutdown flag). On return,
// the caller is responsible for removing the PID file.
func (d *Daemon) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.logger.Printf("shutdown requested, exiting cleanly")
			return nil
		default:
		}

		tickStart := d.cfg.Clock.Now()
		if err := d.tick(ctx, tickStart); err != nil {
			d.logger.Printf("tick error: %v", err)
		}
		d.loopCount++

		if d.sleepInterruptible(ctx, TickInterval) {
			return nil
		}
	}
}

// sleepInterruptible sleeps for total, chunked so the activity-signal file
// can cancel the remainder early, returning true if ctx was cancelled.
func (d *Daemon) sleepInterruptible(ctx context.Context, total time.Duration) bool {
	remaining := total
	for remaining > 0 {
		chunk := SleepChunk
		if remaining < chunk {
			chunk = remaining
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(chunk):
		}
		remaining -= chunk
		if d.activitySignalFired() {
			return false
		}
	}
	return false
}

// activitySignalFired reports whether activity_signal's mtime has
// advanced since the last check, and if so records the new mtime.
func (d *Daemon) activitySignalFired() bool {
	info, err := os.Stat(d.statePath("activity_signal"))
	if err != nil {
		return false
	}
	if info.ModTime().After(d.lastActivitySignal) {
		d.lastActivitySignal = info.ModTime()
		return true
	}
	return false
}

func (d *Daemon) tick(ctx context.Context, now time.Time) error {
	sessions, err := d.cfg.Store.List()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	var mine []store.Session
	for _, s := range sessions {
		if s.TmuxSession == d.cfg.TmuxSession {
			mine = append(mine, s)
		}
	}

	if d.cfg.Transcripts != nil {
		if now.Sub(d.lastClaudeSessionRefresh) >= ActiveClaudeSessionRefreshInterval {
			d.refreshActiveClaudeSessions(ctx, mine)
			d.lastClaudeSessionRefresh = now
		}
		if now.Sub(d.lastStatsRefresh) >= StatsRefreshInterval {
			d.refreshTranscriptStats(ctx, mine)
			d.lastStatsRefresh = now
		}
	}

	d.runHeartbeats(ctx, mine, now)

	snapshots := d.detectAndAccumulate(ctx, mine, now)

	state := MonitorState{
		Version:      Version,
		PID:          os.Getpid(),
		LoopCount:    d.loopCount,
		IntervalSecs: int(TickInterval.Seconds()),
		LastTickTime: store.ISOTime(now),
		TmuxSession:  d.cfg.TmuxSession,
		Sessions:     snapshots,
	}
	if err := Publish(d.cfg.FS, d.statePath("monitor_state.json"), state); err != nil {
		d.logger.Printf("publishing monitor state: %v", err)
	}

	d.runOversight(snapshots, now)

	if now.Sub(d.lastAutoArchive) >= AutoArchiveInterval {
		d.runAutoArchive(ctx, now)
		d.lastAutoArchive = now
	}

	d.logger.Printf("tick %d: %d sessions", d.loopCount, len(mine))
	return nil
}

func (d *Daemon) refreshActiveClaudeSessions(ctx context.Context, sessions []store.Session) {
	for _, sess := range sessions {
		if sess.Status != store.LifecycleRunning {
			continue
		}
		id, err := d.cfg.Transcripts.CurrentSessionID(ctx, sess.StartDirectory)
		if err != nil || id == "" {
			continue
		}
		sessID := sess.ID
		_ = d.cfg.Store.Update(sessID, func(s *store.Session) error {
			if s.ActiveClaudeSessionID == id {
				return nil
			}
			found := false
			for _, existing := range s.ClaudeSessionIDs {
				if existing == id {
					found = true
					break
				}
			}
			if !found {
				s.ClaudeSessionIDs = append(s.ClaudeSessionIDs, id)
			}
			s.ActiveClaudeSessionID = id
			return nil
		})
	}
}

func (d *Daemon) refreshTranscriptStats(ctx context.Context, sessions []store.Session) {
	for _, sess := range sessions {
		if sess.Status != store.LifecycleRunning || sess.ActiveClaudeSessionID == "" {
			continue
		}
		ts, err := d.cfg.Transcripts.Stats(ctx, sess.StartDirectory, sess.ActiveClaudeSessionID)
		if err != nil {
			continue
		}
		sessID := sess.ID
		_ = d.cfg.Store.Update(sessID, func(s *store.Session) error {
			s.Stats.InteractionCount = ts.InteractionCount
			s.Stats.InputTokens = ts.InputTokens
			s.Stats.OutputTokens = ts.OutputTokens
			s.Stats.CacheCreationTokens = ts.CacheCreationTokens
			s.Stats.CacheReadTokens = ts.CacheReadTokens
			s.Stats.TotalTokens = ts.InputTokens + ts.OutputTokens + ts.CacheCreationTokens + ts.CacheReadTokens
			s.Stats.CurrentContextTokens = ts.CurrentContextTokens
			s.Stats.EstimatedCostUSD = stats.Cost(ts.InputTokens, ts.OutputTokens, ts.CacheCreationTokens, ts.CacheReadTokens, d.cfg.Pricing)
			return nil
		})
	}
}

func (d *Daemon) runHeartbeats(ctx context.Context, sessions []store.Session, now time.Time) {
	for _, sess := range sessions {
		if sess.Status != store.LifecycleRunning {
			continue
		}
		previous := detect.ActivityStatus(sess.Stats.CurrentState)
		if !Eligible(sess, previous, BudgetExceeded(sess)) {
			continue
		}
		start, err := store.ParseISOTime(sess.StartTime)
		if err != nil {
			start = now
		}
		if !Due(sess, start, now) {
			continue
		}
		if err := d.tracker.Send(ctx, d.cfg.Panes, sess, now); err != nil {
			d.logger.Printf("heartbeat: %v", err)
			continue
		}
		sessID := sess.ID
		stamp := store.ISOTime(now)
		_ = d.cfg.Store.Update(sessID, func(s *store.Session) error {
			s.LastHeartbeatTime = &stamp
			return nil
		})
	}
}

// detectAndAccumulate runs the per-session detect+accumulate+persist+
// history steps (spec.md §4.J steps 6's sub-bullets) across a bounded
// worker pool, returning the published snapshot for each session.
func (d *Daemon) detectAndAccumulate(ctx context.Context, sessions []store.Session, now time.Time) []AgentSnapshot {
	sem := make(chan struct{}, MaxWorkers)
	results := make([]AgentSnapshot, len(sessions))
	done := make(chan int, len(sessions))

	for i, sess := range sessions {
		sem <- struct{}{}
		go func(i int, sess store.Session) {
			defer func() { <-sem; done <- i }()
			results[i] = d.processSession(ctx, sess, now)
		}(i, sess)
	}
	for range sessions {
		<-done
	}
	return results
}

func (d *Daemon) processSession(ctx context.Context, sess store.Session, now time.Time) AgentSnapshot {
	if sess.Status == store.LifecycleTerminated || sess.Status == store.LifecycleDone {
		status := detect.StatusTerminated
		if sess.Status == store.LifecycleDone {
			status = detect.StatusWaitingOversight
		}
		return d.snapshotFor(sess, status, "")
	}

	if sess.ParentSessionID != nil {
		if updated, ok := d.ingestReport(sess, now); ok {
			return d.snapshotFor(updated, detect.StatusWaitingOversight, "")
		}
	}

	result, err := d.cfg.Dispatcher.Detect(ctx, sess.TmuxSession, sess.TmuxWindow, sess.Name, sess.HookStatusDetection, sess.ParentSessionID != nil)
	if err != nil {
		d.logger.Printf("detect(%s): %v", sess.Name, err)
		return d.snapshotFor(sess, detect.ActivityStatus(sess.Stats.CurrentState), sess.Stats.CurrentTask)
	}

	repo, branch := vcs.RefreshContext(ctx, sess.StartDirectory)

	effective := EffectiveStatus(sess, result.Status, d.tracker)

	sessID := sess.ID
	previous := detect.ActivityStatus(sess.Stats.CurrentState)
	startTime, err := store.ParseISOTime(sess.StartTime)
	if err != nil {
		startTime = now
	}

	updated, _ := d.cfg.Store.GetAndUpdate(sessID, func(s *store.Session) error {
		if effective == detect.StatusTerminated && s.Status != store.LifecycleTerminated {
			s.Status = store.LifecycleTerminated
		}
		StampOversightDeadline(s, effective, now)
		s.RepoName = repo
		s.Branch = branch
		stats.AccumulateTime(&s.Stats, s.Status, previous, effective, startTime, now, func(msg string) {
			d.logger.Printf("stats drift (%s): %s", sess.Name, msg)
		})
		s.Stats.CurrentState = string(effective)
		s.Stats.CurrentTask = result.Activity
		return nil
	})

	_ = AppendHistoryRow(d.cfg.FS, d.statePath("agent_history.csv"), store.ISOTime(now), sess.Name, effective, result.Activity)

	return d.snapshotFor(updated, effective, result.Activity)
}

func (d *Daemon) snapshotFor(sess store.Session, status detect.ActivityStatus, activity string) AgentSnapshot {
	var repo, branch string
	if sess.RepoName != nil {
		repo = *sess.RepoName
	}
	if sess.Branch != nil {
		branch = *sess.Branch
	}
	var parent string
	if sess.ParentSessionID != nil {
		parent = *sess.ParentSessionID
	}
	return AgentSnapshot{
		ID:             sess.ID,
		Name:           sess.Name,
		Lifecycle:      sess.Status,
		Status:         status,
		Activity:       activity,
		RepoName:       repo,
		Branch:         branch,
		IsAsleep:       sess.IsAsleep,
		BudgetExceeded: BudgetExceeded(sess),
		ParentID:       parent,
		Stats:          sess.Stats,
		IsRemote:       sess.IsRemote,
	}
}

func (d *Daemon) runOversight(snapshots []AgentSnapshot, now time.Time) {
	for _, snap := range snapshots {
		if snap.Lifecycle != store.LifecycleRunning || snap.Status != detect.StatusWaitingOversight {
			continue
		}
		id := snap.ID
		_ = d.cfg.Store.Update(id, func(s *store.Session) error {
			updated, changed := ApplyOversight(*s, snap.Status, now)
			if changed {
				*s = updated
			}
			return nil
		})
	}
}

func (d *Daemon) runAutoArchive(ctx context.Context, now time.Time) {
	sessions, err := d.cfg.Store.List()
	if err != nil {
		return
	}
	for _, sess := range sessions {
		if sess.TmuxSession != d.cfg.TmuxSession {
			continue
		}
		if !DueForAutoArchive(sess, now) {
			continue
		}
		archived := AutoArchive(ctx, d.cfg.Panes, sess, func(msg string) { d.logger.Print(msg) })
		if err := d.cfg.Store.Archive(archived.ID, archived.Status); err != nil {
			d.logger.Printf("auto-archive: %v", err)
		}
	}
}
