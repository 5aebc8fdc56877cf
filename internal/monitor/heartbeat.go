package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/stats"
	"github.com/mkb23/overcode/internal/store"
)

// HeartbeatTracker holds the Heartbeat Engine's transient, in-process
// state (spec.md §4.K): which sessions are currently running because a
// heartbeat nudged them, and the one-shot "emit heartbeat_start on the
// next running tick" flag. This is a simplified in-memory analogue of the
// teacher's file-backed NotificationSlot dedup (internal/daemon/
// notification.go) — the set only needs to survive one daemon process's
// lifetime, not a restart, so a file-backed slot would be overkill.
type HeartbeatTracker struct {
	mu                      sync.Mutex
	runningFromHeartbeat    map[string]bool
	heartbeatStartPending   map[string]bool
}

// NewHeartbeatTracker returns an empty tracker.
func NewHeartbeatTracker() *HeartbeatTracker {
	return &HeartbeatTracker{
		runningFromHeartbeat:  map[string]bool{},
		heartbeatStartPending: map[string]bool{},
	}
}

// Eligible reports whether sess is heartbeat-eligible this tick given its
// previous detected status and whether it is over budget (spec.md §4.K).
func Eligible(sess store.Session, previousStatus detect.ActivityStatus, budgetExceeded bool) bool {
	if !sess.HeartbeatEnabled || sess.HeartbeatPaused || sess.IsAsleep {
		return false
	}
	if stats.IsGreen(previousStatus) {
		return false
	}
	if budgetExceeded {
		return false
	}
	return sess.HeartbeatInstruction != ""
}

// Due reports whether sess's heartbeat is due, given now.
func Due(sess store.Session, startTime, now time.Time) bool {
	last := startTime
	if sess.LastHeartbeatTime != nil {
		if t, err := store.ParseISOTime(*sess.LastHeartbeatTime); err == nil && t.After(last) {
			last = t
		}
	}
	elapsed := now.Sub(last).Seconds()
	return elapsed >= float64(sess.HeartbeatFrequencySeconds)
}

// Send nudges sess's window with its configured heartbeat instruction and
// records the session as running-from-heartbeat plus a one-shot
// heartbeat_start_pending marker. It does not stamp last_heartbeat_time;
// runHeartbeats persists that after a successful Send.
func (h *HeartbeatTracker) Send(ctx context.Context, panes core.PaneController, sess store.Session, now time.Time) error {
	if err := panes.SendKeys(ctx, sess.TmuxSession, sess.TmuxWindow, sess.HeartbeatInstruction, true); err != nil {
		return fmt.Errorf("sending heartbeat to %s: %w", sess.Name, err)
	}
	h.mu.Lock()
	h.runningFromHeartbeat[sess.ID] = true
	h.heartbeatStartPending[sess.ID] = true
	h.mu.Unlock()
	return nil
}

// RunningFromHeartbeat reports whether id was last nudged into running by
// a heartbeat and hasn't yet been observed non-running since.
func (h *HeartbeatTracker) RunningFromHeartbeat(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runningFromHeartbeat[id]
}

// ClearRunningFromHeartbeat drops the running-from-heartbeat flag for id,
// called once the session is observed non-running again.
func (h *HeartbeatTracker) ClearRunningFromHeartbeat(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.runningFromHeartbeat, id)
}

// ConsumeHeartbeatStartPending reports and clears the one-shot
// heartbeat_start marker for id, consumed the next time its status
// becomes running.
func (h *HeartbeatTracker) ConsumeHeartbeatStartPending(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	pending := h.heartbeatStartPending[id]
	delete(h.heartbeatStartPending, id)
	return pending
}
