package monitor

import (
	"time"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/store"
)

// ApplyOversight implements the Oversight Engine (spec.md §4.L): applies
// only to sessions whose lifecycle is still running and whose effective
// status has been surfaced as waiting_oversight this tick. Returns the
// mutated session and whether it changed.
func ApplyOversight(sess store.Session, effective detect.ActivityStatus, now time.Time) (store.Session, bool) {
	if sess.Status != store.LifecycleRunning || effective != detect.StatusWaitingOversight {
		return sess, false
	}

	switch sess.OversightPolicy {
	case store.OversightWait:
		return sess, false

	case store.OversightFail:
		return failOversight(sess, "No report filed"), true

	case store.OversightTimeout:
		if sess.OversightDeadline == nil {
			return sess, false
		}
		deadline, err := store.ParseISOTime(*sess.OversightDeadline)
		if err != nil || now.Before(deadline) {
			return sess, false
		}
		return failOversight(sess, "Oversight timeout expired"), true

	default:
		return sess, false
	}
}

func failOversight(sess store.Session, reason string) store.Session {
	failure := store.ReportFailure
	sess.ReportStatus = &failure
	sess.ReportReason = reason
	sess.Status = store.LifecycleDone
	return sess
}

// OversightDeadline computes the deadline to stamp onto a child session
// the first time its Stop hook fires (spec.md §4.L).
func OversightDeadline(now time.Time, timeoutSeconds int) string {
	return store.ISOTime(now.Add(time.Duration(timeoutSeconds) * time.Second))
}

// StampOversightDeadline sets sess.OversightDeadline the first tick its
// status is observed as waiting_oversight, regardless of oversight
// policy ("the deadline is set when the Stop hook first fires for a
// child", spec.md §4.L) — not just when the policy is `timeout`, since a
// session's policy can change after the deadline would have been set.
func StampOversightDeadline(sess *store.Session, effective detect.ActivityStatus, now time.Time) {
	if effective != detect.StatusWaitingOversight || sess.OversightDeadline != nil {
		return
	}
	deadline := OversightDeadline(now, sess.OversightTimeoutSeconds)
	sess.OversightDeadline = &deadline
}
