package store

import (
	"fmt"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "sessions.json"))
}

func TestCreateAndGet(t *testing.T) {
	s := tempStore(t)
	sess, err := s.Create(Session{Name: "alpha", TmuxSession: "overcode"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != "alpha" {
		t.Errorf("expected name alpha, got %s", got.Name)
	}
}

func TestCreateDuplicateNameRejected(t *testing.T) {
	s := tempStore(t)
	if _, err := s.Create(Session{Name: "alpha", TmuxSession: "overcode"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := s.Create(Session{Name: "alpha", TmuxSession: "overcode"}); err != ErrDuplicateName {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestCreateSameNameDifferentTmuxSessionAllowed(t *testing.T) {
	s := tempStore(t)
	if _, err := s.Create(Session{Name: "alpha", TmuxSession: "one"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := s.Create(Session{Name: "alpha", TmuxSession: "two"}); err != nil {
		t.Fatalf("expected distinct tmux session to be allowed, got %v", err)
	}
}

func TestDepthLimitEnforced(t *testing.T) {
	s := tempStore(t)
	var parentID *string
	for i := 0; i < MaxDepth; i++ {
		sess, err := s.Create(Session{Name: fmt.Sprintf("gen-%d", i), TmuxSession: "overcode", ParentSessionID: parentID})
		if err != nil {
			t.Fatalf("Create() gen %d error: %v", i, err)
		}
		id := sess.ID
		parentID = &id
	}
	if _, err := s.Create(Session{Name: "too-deep", TmuxSession: "overcode", ParentSessionID: parentID}); err != ErrDepthExceeded {
		t.Fatalf("expected ErrDepthExceeded, got %v", err)
	}
}

func TestReparentRejectsCycle(t *testing.T) {
	s := tempStore(t)
	parent, err := s.Create(Session{Name: "parent", TmuxSession: "overcode"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	parentID := parent.ID
	child, err := s.Create(Session{Name: "child", TmuxSession: "overcode", ParentSessionID: &parentID})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	childID := child.ID
	if err := s.Reparent(parent.ID, &childID); err != ErrParentCycle {
		t.Fatalf("expected ErrParentCycle, got %v", err)
	}
}

func TestUpdateRejectsSleepHeartbeatConflict(t *testing.T) {
	s := tempStore(t)
	sess, err := s.Create(Session{Name: "alpha", TmuxSession: "overcode"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	err = s.Update(sess.ID, func(sess *Session) error {
		sess.IsAsleep = true
		sess.HeartbeatEnabled = true
		sess.HeartbeatPaused = false
		return nil
	})
	if err != ErrSleepHeartbeatConflict {
		t.Fatalf("expected ErrSleepHeartbeatConflict, got %v", err)
	}
}

func TestUpdateRejectsUnknownActiveClaudeSession(t *testing.T) {
	s := tempStore(t)
	sess, err := s.Create(Session{Name: "alpha", TmuxSession: "overcode"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	err = s.Update(sess.ID, func(sess *Session) error {
		sess.ActiveClaudeSessionID = "not-tracked"
		return nil
	})
	if err != ErrUnknownActiveClaudeSession {
		t.Fatalf("expected ErrUnknownActiveClaudeSession, got %v", err)
	}
}

func TestArchiveMovesSessionOutOfLiveList(t *testing.T) {
	s := tempStore(t)
	sess, err := s.Create(Session{Name: "alpha", TmuxSession: "overcode"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := s.Archive(sess.ID, LifecycleDone); err != nil {
		t.Fatalf("Archive() error: %v", err)
	}

	live, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("expected no live sessions after archive, got %d", len(live))
	}

	archived, err := s.ListArchived()
	if err != nil {
		t.Fatalf("ListArchived() error: %v", err)
	}
	if len(archived) != 1 || archived[0].Status != LifecycleDone {
		t.Errorf("expected one archived session with status done, got %+v", archived)
	}
}

func TestChildren(t *testing.T) {
	s := tempStore(t)
	parent, err := s.Create(Session{Name: "parent", TmuxSession: "overcode"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := s.Create(Session{Name: "child-a", TmuxSession: "overcode", ParentSessionID: &parent.ID}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := s.Create(Session{Name: "child-b", TmuxSession: "overcode", ParentSessionID: &parent.ID}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	kids, err := s.Children(parent.ID)
	if err != nil {
		t.Fatalf("Children() error: %v", err)
	}
	if len(kids) != 2 {
		t.Errorf("expected 2 children, got %d", len(kids))
	}
}

func TestOperationTimesRingAndMedian(t *testing.T) {
	var stats SessionStats
	for i := 1; i <= OperationTimesCap+10; i++ {
		stats.PushOperationTime(float64(i))
	}
	if len(stats.OperationTimes) != OperationTimesCap {
		t.Fatalf("expected ring capped at %d, got %d", OperationTimesCap, len(stats.OperationTimes))
	}
	if stats.OperationTimes[0] != 11 {
		t.Errorf("expected oldest entries evicted, first entry = %v", stats.OperationTimes[0])
	}

	var small SessionStats
	small.PushOperationTime(1)
	small.PushOperationTime(3)
	small.PushOperationTime(2)
	if got := small.MedianOperationTime(); got != 2 {
		t.Errorf("expected median 2, got %v", got)
	}
}

func TestParseFrequency(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"30s", 30, false},
		{"5m", 300, false},
		{"2h", 7200, false},
		{"90", 90, false},
		{"0m", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, c := range cases {
		got, err := ParseFrequency(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseFrequency(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFrequency(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseFrequency(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
