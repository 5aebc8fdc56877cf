package detect

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkb23/overcode/internal/patterns"
)

type fakePanes struct {
	content string
	err     error
}

func (f *fakePanes) EnsureSession(ctx context.Context, name string) error { return nil }
func (f *fakePanes) NewWindow(ctx context.Context, session, name, cwd string) (int, error) {
	return 0, nil
}
func (f *fakePanes) KillWindow(ctx context.Context, session string, index int) error { return nil }
func (f *fakePanes) WindowExists(ctx context.Context, session string, index int) (bool, error) {
	return true, nil
}
func (f *fakePanes) SendKeys(ctx context.Context, session string, index int, keys string, enter bool) error {
	return nil
}
func (f *fakePanes) CapturePane(ctx context.Context, session string, index int, lines int) (string, error) {
	return f.content, f.err
}
func (f *fakePanes) SelectWindow(ctx context.Context, session string, index int) error { return nil }
func (f *fakePanes) ListWindows(ctx context.Context, session string) ([]int, error)    { return nil, nil }

func TestPollingDetectorElevatesBusyToRunning(t *testing.T) {
	panes := &fakePanes{content: "Reading file.go"}
	d := NewPollingDetector(panes, patterns.Default())
	result, err := d.Detect(context.Background(), "sess", 0)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if result.Status != StatusRunning {
		t.Errorf("expected StatusRunning, got %v", result.Status)
	}
}

func TestPollingDetectorElevatesIdlePromptToWaitingUser(t *testing.T) {
	panes := &fakePanes{content: "some output\n❯"}
	d := NewPollingDetector(panes, patterns.Default())
	result, err := d.Detect(context.Background(), "sess", 0)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if result.Status != StatusWaitingUser {
		t.Errorf("expected StatusWaitingUser, got %v", result.Status)
	}
}

func TestPollingDetectorPermissionPassesThrough(t *testing.T) {
	panes := &fakePanes{content: "Do you want to proceed?\nEnter to confirm"}
	d := NewPollingDetector(panes, patterns.Default())
	result, err := d.Detect(context.Background(), "sess", 0)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if result.Status != StatusPermission {
		t.Errorf("expected StatusPermission, got %v", result.Status)
	}
}

type fakeFS struct {
	files map[string][]byte
}

func (f *fakeFS) WriteAtomic(path string, data []byte, perm uint32) error {
	f.files[path] = data
	return nil
}
func (f *fakeFS) ReadFile(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}
func (f *fakeFS) AppendLine(path, line string, writeHeaderIfNew func() string) error { return nil }

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func writeHookState(t *testing.T, fs *fakeFS, dir, name string, event HookEvent) {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	fs.files[filepath.Join(dir, "hook_state_"+name+".json")] = data
}

func TestHookDetectorMapsEventsToStatus(t *testing.T) {
	fs := &fakeFS{files: map[string][]byte{}}
	dir := "/state"
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	hd := NewHookDetector(fs, dir, func() time.Time { return now })

	writeHookState(t, fs, dir, "alpha", HookEvent{Event: "UserPromptSubmit", Timestamp: unixSeconds(now.Add(-5 * time.Second))})
	status, ok, err := hd.Detect("alpha", false)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if !ok || status != StatusRunning {
		t.Errorf("expected (running, true), got (%v, %v)", status, ok)
	}

	writeHookState(t, fs, dir, "beta", HookEvent{Event: "Stop", Timestamp: unixSeconds(now.Add(-5 * time.Second))})
	status, ok, err = hd.Detect("beta", true)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if !ok || status != StatusWaitingOversight {
		t.Errorf("expected (waiting_oversight, true) for Stop with parent, got (%v, %v)", status, ok)
	}

	status, ok, err = hd.Detect("beta", false)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if !ok || status != StatusWaitingUser {
		t.Errorf("expected (waiting_user, true) for Stop without parent, got (%v, %v)", status, ok)
	}
}

func TestHookDetectorStaleEventFallsBack(t *testing.T) {
	fs := &fakeFS{files: map[string][]byte{}}
	dir := "/state"
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	hd := NewHookDetector(fs, dir, func() time.Time { return now })

	writeHookState(t, fs, dir, "stale", HookEvent{Event: "UserPromptSubmit", Timestamp: unixSeconds(now.Add(-200 * time.Second))})
	_, ok, err := hd.Detect("stale", false)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if ok {
		t.Error("expected stale hook event to report ok=false")
	}
}

func TestHookDetectorMissingFileFallsBack(t *testing.T) {
	fs := &fakeFS{files: map[string][]byte{}}
	hd := NewHookDetector(fs, "/state", time.Now)
	_, ok, err := hd.Detect("missing", false)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if ok {
		t.Error("expected missing hook state to report ok=false")
	}
}

func TestDispatcherFallsBackToPollingWhenHooksDisabled(t *testing.T) {
	panes := &fakePanes{content: "Reading file.go"}
	poller := NewPollingDetector(panes, patterns.Default())
	fs := &fakeFS{files: map[string][]byte{}}
	hooker := NewHookDetector(fs, "/state", time.Now)
	dispatcher := NewDispatcher(poller, hooker)

	result, err := dispatcher.Detect(context.Background(), "sess", 0, "alpha", false, false)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if result.Status != StatusRunning {
		t.Errorf("expected StatusRunning from polling fallback, got %v", result.Status)
	}
}

func TestDispatcherUsesHookStatusWhenFresh(t *testing.T) {
	panes := &fakePanes{content: "some stale looking pane text"}
	poller := NewPollingDetector(panes, patterns.Default())
	fs := &fakeFS{files: map[string][]byte{}}
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	hooker := NewHookDetector(fs, "/state", func() time.Time { return now })
	writeHookState(t, fs, "/state", "alpha", HookEvent{Event: "PermissionRequest", Timestamp: unixSeconds(now.Add(-1 * time.Second))})
	dispatcher := NewDispatcher(poller, hooker)

	result, err := dispatcher.Detect(context.Background(), "sess", 0, "alpha", true, false)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if result.Status != StatusPermission {
		t.Errorf("expected StatusPermission from hook detector, got %v", result.Status)
	}
	if result.RawPane == "" {
		t.Error("expected pane text still captured for activity enrichment even under hook detection")
	}
}
