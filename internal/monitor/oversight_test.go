package monitor

import (
	"testing"
	"time"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/store"
)

func TestApplyOversightIgnoresNonWaitingOversight(t *testing.T) {
	sess := baseSession()
	sess.OversightPolicy = store.OversightFail
	_, changed := ApplyOversight(sess, detect.StatusRunning, time.Now())
	if changed {
		t.Error("expected no change for a status other than waiting_oversight")
	}
}

func TestApplyOversightWaitIsNoop(t *testing.T) {
	sess := baseSession()
	sess.OversightPolicy = store.OversightWait
	_, changed := ApplyOversight(sess, detect.StatusWaitingOversight, time.Now())
	if changed {
		t.Error("expected wait policy to never change the session")
	}
}

func TestApplyOversightFailMarksDoneImmediately(t *testing.T) {
	sess := baseSession()
	sess.OversightPolicy = store.OversightFail
	got, changed := ApplyOversight(sess, detect.StatusWaitingOversight, time.Now())
	if !changed {
		t.Fatal("expected a change")
	}
	if got.Status != store.LifecycleDone {
		t.Errorf("expected done, got %v", got.Status)
	}
	if got.ReportStatus == nil || *got.ReportStatus != store.ReportFailure {
		t.Errorf("expected report_status=failure, got %v", got.ReportStatus)
	}
	if got.ReportReason != "No report filed" {
		t.Errorf("unexpected reason: %q", got.ReportReason)
	}
}

func TestApplyOversightTimeoutBeforeDeadlineIsNoop(t *testing.T) {
	sess := baseSession()
	sess.OversightPolicy = store.OversightTimeout
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := store.ISOTime(now.Add(time.Hour))
	sess.OversightDeadline = &deadline

	_, changed := ApplyOversight(sess, detect.StatusWaitingOversight, now)
	if changed {
		t.Error("expected no change before the deadline")
	}
}

func TestStampOversightDeadlineSetsDeadlineOnce(t *testing.T) {
	sess := baseSession()
	sess.OversightPolicy = store.OversightTimeout
	sess.OversightTimeoutSeconds = 60
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	StampOversightDeadline(&sess, detect.StatusWaitingOversight, now)
	if sess.OversightDeadline == nil {
		t.Fatal("expected deadline to be stamped")
	}
	want := store.ISOTime(now.Add(60 * time.Second))
	if *sess.OversightDeadline != want {
		t.Errorf("got deadline %q, want %q", *sess.OversightDeadline, want)
	}

	later := now.Add(time.Minute)
	StampOversightDeadline(&sess, detect.StatusWaitingOversight, later)
	if *sess.OversightDeadline != want {
		t.Errorf("expected deadline not to move on a later tick, got %q", *sess.OversightDeadline)
	}
}

func TestStampOversightDeadlineIgnoresOtherStatuses(t *testing.T) {
	sess := baseSession()
	StampOversightDeadline(&sess, detect.StatusRunning, time.Now())
	if sess.OversightDeadline != nil {
		t.Error("expected no deadline for a non-waiting_oversight status")
	}
}

func TestApplyOversightTimeoutAfterDeadlineFails(t *testing.T) {
	sess := baseSession()
	sess.OversightPolicy = store.OversightTimeout
	now := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	deadline := store.ISOTime(now.Add(-time.Minute))
	sess.OversightDeadline = &deadline

	got, changed := ApplyOversight(sess, detect.StatusWaitingOversight, now)
	if !changed {
		t.Fatal("expected a change past the deadline")
	}
	if got.ReportReason != "Oversight timeout expired" {
		t.Errorf("unexpected reason: %q", got.ReportReason)
	}
}
