package control

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/launch"
	"github.com/mkb23/overcode/internal/store"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakePanes struct {
	mu   sync.Mutex
	sent []string
	killed []int
	exists bool
}

func newFakePanes() *fakePanes { return &fakePanes{exists: true} }

func (f *fakePanes) EnsureSession(ctx context.Context, name string) error { return nil }
func (f *fakePanes) NewWindow(ctx context.Context, session, name, cwd string) (int, error) {
	return 0, nil
}
func (f *fakePanes) KillWindow(ctx context.Context, session string, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, index)
	return nil
}
func (f *fakePanes) WindowExists(ctx context.Context, session string, index int) (bool, error) {
	return f.exists, nil
}
func (f *fakePanes) SendKeys(ctx context.Context, session string, index int, keys string, enter bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, keys)
	return nil
}
func (f *fakePanes) CapturePane(ctx context.Context, session string, index int, lines int) (string, error) {
	return "", nil
}
func (f *fakePanes) SelectWindow(ctx context.Context, session string, index int) error { return nil }
func (f *fakePanes) ListWindows(ctx context.Context, session string) ([]int, error)    { return nil, nil }

func newSurface(t *testing.T) (*Surface, *fakePanes) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "sessions.json"))
	panes := newFakePanes()
	l := launch.New(panes, st, fixedClock{time.Now()})
	l.Getenv = func(string) string { return "" }
	return &Surface{Store: st, Panes: panes, Launcher: l, Clock: fixedClock{time.Now()}}, panes
}

func TestSendTextWakesSleepingAgent(t *testing.T) {
	s, panes := newSurface(t)
	sess, err := s.Store.Create(store.Session{Name: "alpha", TmuxSession: "overcode", IsAsleep: true, Status: store.LifecycleRunning})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := s.SendText(context.Background(), sess.ID, "hello"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	got, _ := s.Store.Get(sess.ID)
	if got.IsAsleep {
		t.Error("expected SendText to wake the agent")
	}
	if len(panes.sent) != 1 || panes.sent[0] != "hello" {
		t.Errorf("unexpected sent keys: %v", panes.sent)
	}
}

func TestSetSleepRejectsRunningActivity(t *testing.T) {
	s, _ := newSurface(t)
	sess, _ := s.Store.Create(store.Session{
		Name: "alpha", TmuxSession: "overcode", Status: store.LifecycleRunning,
		Stats: store.SessionStats{CurrentState: string(detect.StatusRunning)},
	})
	err := s.SetSleep(sess.ID, true)
	ctrlErr, ok := err.(*Error)
	if !ok || ctrlErr.Status != 409 {
		t.Fatalf("expected 409 conflict, got %v", err)
	}
}

func TestSetSleepRejectsActiveUnpausedHeartbeat(t *testing.T) {
	s, _ := newSurface(t)
	sess, _ := s.Store.Create(store.Session{
		Name: "alpha", TmuxSession: "overcode", Status: store.LifecycleRunning,
		HeartbeatEnabled: true, HeartbeatPaused: false,
		Stats: store.SessionStats{CurrentState: string(detect.StatusWaitingUser)},
	})
	err := s.SetSleep(sess.ID, true)
	ctrlErr, ok := err.(*Error)
	if !ok || ctrlErr.Status != 409 {
		t.Fatalf("expected 409 conflict, got %v", err)
	}
}

func TestSetSleepAllowedWhenIdleAndNoActiveHeartbeat(t *testing.T) {
	s, _ := newSurface(t)
	sess, _ := s.Store.Create(store.Session{
		Name: "alpha", TmuxSession: "overcode", Status: store.LifecycleRunning,
		Stats: store.SessionStats{CurrentState: string(detect.StatusWaitingUser)},
	})
	if err := s.SetSleep(sess.ID, true); err != nil {
		t.Fatalf("expected sleep to be allowed, got %v", err)
	}
	got, _ := s.Store.Get(sess.ID)
	if !got.IsAsleep {
		t.Error("expected agent to be asleep")
	}
}

func TestPauseResumeHeartbeatPreconditions(t *testing.T) {
	s, _ := newSurface(t)
	sess, _ := s.Store.Create(store.Session{
		Name: "alpha", TmuxSession: "overcode", Status: store.LifecycleRunning,
		HeartbeatEnabled: true,
	})

	if err := s.PauseHeartbeat(sess.ID); err != nil {
		t.Fatalf("PauseHeartbeat() error: %v", err)
	}
	if err := s.PauseHeartbeat(sess.ID); err == nil {
		t.Error("expected pausing an already-paused heartbeat to conflict")
	}
	if err := s.ResumeHeartbeat(sess.ID); err != nil {
		t.Fatalf("ResumeHeartbeat() error: %v", err)
	}

	if err := s.Store.Update(sess.ID, func(sess *store.Session) error {
		sess.IsAsleep = true
		sess.HeartbeatPaused = true
		return nil
	}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if err := s.ResumeHeartbeat(sess.ID); err == nil {
		t.Error("expected resuming heartbeat on a sleeping agent to conflict")
	}
}

func TestConfigureHeartbeatRejectsTooFrequent(t *testing.T) {
	s, _ := newSurface(t)
	sess, _ := s.Store.Create(store.Session{Name: "alpha", TmuxSession: "overcode", Status: store.LifecycleRunning})
	if err := s.ConfigureHeartbeat(sess.ID, "10s", "check in"); err == nil {
		t.Error("expected sub-30s frequency to be rejected")
	}
	if err := s.ConfigureHeartbeat(sess.ID, "5m", "check in"); err != nil {
		t.Fatalf("expected valid frequency to succeed, got %v", err)
	}
}

func TestKillCascadesDeepestFirst(t *testing.T) {
	s, panes := newSurface(t)
	root, _ := s.Store.Create(store.Session{Name: "root", TmuxSession: "overcode", TmuxWindow: 1, Status: store.LifecycleRunning})
	child, _ := s.Store.Create(store.Session{Name: "child", TmuxSession: "overcode", TmuxWindow: 2, Status: store.LifecycleRunning, ParentSessionID: &root.ID})
	grandchild, _ := s.Store.Create(store.Session{Name: "grandchild", TmuxSession: "overcode", TmuxWindow: 3, Status: store.LifecycleRunning, ParentSessionID: &child.ID})

	if err := s.Kill(context.Background(), root.ID, true); err != nil {
		t.Fatalf("Kill() error: %v", err)
	}
	if len(panes.killed) != 3 || panes.killed[0] != 3 || panes.killed[1] != 2 || panes.killed[2] != 1 {
		t.Errorf("expected windows killed deepest-first [3 2 1], got %v", panes.killed)
	}

	for _, id := range []string{root.ID, child.ID, grandchild.ID} {
		got, err := s.Store.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) error: %v", id, err)
		}
		if got.Status != store.LifecycleTerminated {
			t.Errorf("expected %s to be terminated, got %v", id, got.Status)
		}
	}
}

func TestKillNonCascadeOrphansChildren(t *testing.T) {
	s, _ := newSurface(t)
	root, _ := s.Store.Create(store.Session{Name: "root", TmuxSession: "overcode", Status: store.LifecycleRunning})
	child, _ := s.Store.Create(store.Session{Name: "child", TmuxSession: "overcode", Status: store.LifecycleRunning, ParentSessionID: &root.ID})

	if err := s.Kill(context.Background(), root.ID, false); err != nil {
		t.Fatalf("Kill() error: %v", err)
	}
	gotRoot, _ := s.Store.Get(root.ID)
	if gotRoot.Status != store.LifecycleTerminated {
		t.Errorf("expected root terminated, got %v", gotRoot.Status)
	}
	gotChild, _ := s.Store.Get(child.ID)
	if gotChild.Status != store.LifecycleRunning {
		t.Errorf("expected child to survive non-cascade kill, got %v", gotChild.Status)
	}
	if gotChild.ParentSessionID != nil {
		t.Errorf("expected child's parent_session_id cleared, got %v", *gotChild.ParentSessionID)
	}
}

func TestCleanupArchivesDoneAndTerminated(t *testing.T) {
	s, _ := newSurface(t)
	done, _ := s.Store.Create(store.Session{Name: "done", TmuxSession: "overcode", Status: store.LifecycleDone})
	running, _ := s.Store.Create(store.Session{Name: "running", TmuxSession: "overcode", Status: store.LifecycleRunning})

	count, err := s.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 session cleaned up, got %d", count)
	}
	archived, _ := s.Store.ListArchived()
	if len(archived) != 1 || archived[0].ID != done.ID {
		t.Errorf("expected done session archived, got %v", archived)
	}
	live, _ := s.Store.List()
	if len(live) != 1 || live[0].ID != running.ID {
		t.Errorf("expected running session to remain live, got %v", live)
	}
}

func TestBulkTransportUpdatesTmuxSession(t *testing.T) {
	s, _ := newSurface(t)
	sess, _ := s.Store.Create(store.Session{Name: "alpha", TmuxSession: "overcode", Status: store.LifecycleRunning})

	if err := s.BulkTransport([]string{sess.ID}, "overcode2"); err != nil {
		t.Fatalf("BulkTransport() error: %v", err)
	}
	got, _ := s.Store.Get(sess.ID)
	if got.TmuxSession != "overcode2" {
		t.Errorf("expected tmux_session overcode2, got %s", got.TmuxSession)
	}
}

func TestRestartMonitorRequiresSignal(t *testing.T) {
	s, _ := newSurface(t)
	if err := s.RestartMonitor(context.Background(), nil); err == nil {
		t.Error("expected nil signal to be rejected")
	}
	called := false
	if err := s.RestartMonitor(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("RestartMonitor() error: %v", err)
	}
	if !called {
		t.Error("expected signal to be invoked")
	}
}
