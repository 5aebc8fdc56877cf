package monitor

import (
	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/stats"
	"github.com/mkb23/overcode/internal/store"
)

// runningLike reports whether a detected status counts as "the agent is
// running" for the purposes of heartbeat-state transitions — the green
// statuses plus the heartbeat-derived running variants themselves.
func runningLike(s detect.ActivityStatus) bool {
	return stats.IsGreen(s)
}

// EffectiveStatus layers heartbeat and sleep state over a tick's raw
// detected status (spec.md §4.J step 6): asleep overrides everything;
// heartbeat_start fires once, the tick a heartbeat-nudged session is first
// observed running again, then downgrades to running_heartbeat on
// subsequent running ticks; waiting_heartbeat marks a non-running session
// that still has an enabled, unpaused heartbeat configured; otherwise the
// detector's own status passes through.
func EffectiveStatus(sess store.Session, detected detect.ActivityStatus, tracker *HeartbeatTracker) detect.ActivityStatus {
	if sess.IsAsleep {
		tracker.ClearRunningFromHeartbeat(sess.ID)
		return detect.StatusAsleep
	}

	if runningLike(detected) {
		if tracker.RunningFromHeartbeat(sess.ID) {
			if tracker.ConsumeHeartbeatStartPending(sess.ID) {
				return detect.StatusHeartbeatStart
			}
			return detect.StatusRunningHeartbeat
		}
		return detected
	}

	tracker.ClearRunningFromHeartbeat(sess.ID)
	if sess.HeartbeatEnabled && !sess.HeartbeatPaused {
		return detect.StatusWaitingHeartbeat
	}
	return detected
}
