package monitor

import (
	"context"
	"time"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/store"
)

// AutoArchiveAfter is how long a done child sits before Auto-Archive
// reclaims its window (spec.md §4.M).
const AutoArchiveAfter = time.Hour

// BudgetExceeded reports whether sess has tripped its cost budget
// (spec.md §4.M). A zero budget means unlimited.
func BudgetExceeded(sess store.Session) bool {
	return sess.CostBudgetUSD > 0 && sess.Stats.EstimatedCostUSD >= sess.CostBudgetUSD
}

// DueForAutoArchive reports whether a done session has sat long enough
// past its last state transition to be archived.
func DueForAutoArchive(sess store.Session, now time.Time) bool {
	if sess.Status != store.LifecycleDone {
		return false
	}
	since, err := store.ParseISOTime(sess.Stats.StateSince)
	if err != nil {
		return false
	}
	return now.Sub(since) >= AutoArchiveAfter
}

// AutoArchive kills sess's window (best effort — failures are logged, not
// fatal) and transitions it to terminated, ready for the caller to move it
// into the store's archive.
func AutoArchive(ctx context.Context, panes core.PaneController, sess store.Session, warn func(string)) store.Session {
	if err := panes.KillWindow(ctx, sess.TmuxSession, sess.TmuxWindow); err != nil && warn != nil {
		warn("auto-archive: killing window for " + sess.Name + ": " + err.Error())
	}
	sess.Status = store.LifecycleTerminated
	return sess
}
