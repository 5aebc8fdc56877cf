package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/store"
)

// reportFile is the wire shape of report_<agent>.json (spec.md §6.2),
// written by a child agent when it files its outcome.
type reportFile struct {
	Status    store.ReportStatus `json:"status"`
	Reason    string             `json:"reason"`
	Timestamp float64            `json:"timestamp"`
}

// ReportPath is report_<agent>.json's location under a tmux session's
// state dir (spec.md §6.1, §6.2). Shared by the Monitor Loop and Follow
// Mode's Stop path, which both need to locate a child's report file.
func ReportPath(stateDir, sessionName string) string {
	return filepath.Join(stateDir, fmt.Sprintf("report_%s.json", sessionName))
}

func (d *Daemon) reportPath(sessionName string) string {
	return ReportPath(d.cfg.StateDir, sessionName)
}

// ingestReport implements the core `running` → `done` transition for a
// child that filed a report: "to done when it is a child and a report was filed"
// (spec.md §3.1 lifecycle). Returns the updated session and true if a
// report file was found and applied.
func (d *Daemon) ingestReport(sess store.Session, now time.Time) (store.Session, bool) {
	updated, ok, err := IngestReport(d.cfg.FS, d.cfg.Store, d.cfg.StateDir, sess, now)
	if err != nil {
		d.logger.Printf("report(%s): %v", sess.Name, err)
	}
	return updated, ok
}

// IngestReport reads report_<name>.json for sess (if present) and, for a
// still-running session, applies it: sets report_status/report_reason and
// transitions the session to done (spec.md §3.1 lifecycle, §6.2, Glossary
// "Report"). Exported so Follow Mode's Stop path (spec.md §4.N) can apply
// the same transition without depending on a live Daemon.
func IngestReport(fs core.FS, st *store.Store, stateDir string, sess store.Session, now time.Time) (store.Session, bool, error) {
	data, err := fs.ReadFile(ReportPath(stateDir, sess.Name))
	if os.IsNotExist(err) {
		return sess, false, nil
	}
	if err != nil {
		return sess, false, fmt.Errorf("reading report(%s): %w", sess.Name, err)
	}

	var report reportFile
	if err := json.Unmarshal(data, &report); err != nil {
		return sess, false, fmt.Errorf("parsing report(%s): %w", sess.Name, err)
	}
	if report.Status == "" {
		return sess, false, nil
	}

	sessID := sess.ID
	status := report.Status
	applied := false
	updated, err := st.GetAndUpdate(sessID, func(s *store.Session) error {
		if s.Status != store.LifecycleRunning {
			return nil
		}
		s.ReportStatus = &status
		s.ReportReason = report.Reason
		s.Status = store.LifecycleDone
		s.Stats.StateSince = store.ISOTime(now)
		applied = true
		return nil
	})
	if err != nil {
		return sess, false, fmt.Errorf("applying report(%s): %w", sess.Name, err)
	}
	if !applied {
		return sess, false, nil
	}
	return updated, true, nil
}
