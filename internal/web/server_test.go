package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkb23/overcode/internal/config"
	"github.com/mkb23/overcode/internal/control"
	"github.com/mkb23/overcode/internal/launch"
	"github.com/mkb23/overcode/internal/store"
)

func newTestServer(t *testing.T, cfg config.Web) (*Server, *store.Store) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "sessions.json"))
	clock := fixedClock{time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)}
	l := launch.New(stubPanes{}, st, clock)
	l.Getenv = func(string) string { return "" }
	return &Server{
		Config:           cfg,
		Store:            st,
		Surface:          &control.Surface{Store: st, Panes: stubPanes{}, Launcher: l, Clock: clock},
		FS:               &fakeFS{},
		Clock:            clock,
		MonitorStatePath: "monitor_state.json",
		HistoryPath:      "agent_history.csv",
	}, st
}

func TestHealthEndpointIsAlwaysPublic(t *testing.T) {
	s, _ := newTestServer(t, config.Web{Listen: "127.0.0.1:0"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.5:12345"
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusRequiresAPIKeyOverNonLoopback(t *testing.T) {
	s, _ := newTestServer(t, config.Web{Listen: "127.0.0.1:0", APIKey: "secret"})
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "203.0.113.5:12345"
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without API key, got %d: %s", rec.Code, rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req2.RemoteAddr = "203.0.113.5:12345"
	req2.Header.Set("X-API-Key", "secret")
	rec2 := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct API key, got %d", rec2.Code)
	}
}

func TestStatusAllowedOverLoopbackWithoutKey(t *testing.T) {
	s, _ := newTestServer(t, config.Web{Listen: "127.0.0.1:0", APIKey: "secret"})
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "127.0.0.1:55555"
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 over loopback, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestControlEndpointRejectedWhenAllowControlFalse(t *testing.T) {
	s, _ := newTestServer(t, config.Web{Listen: "127.0.0.1:0", APIKey: "secret", AllowControl: false})
	body, _ := json.Marshal(map[string]any{"id": "x", "text": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/control/send-text", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:1"
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when control disabled, got %d", rec.Code)
	}
}

func TestControlEndpointSendTextWakesSession(t *testing.T) {
	s, st := newTestServer(t, config.Web{Listen: "127.0.0.1:0", APIKey: "secret", AllowControl: true})
	sess, err := st.Create(store.Session{Name: "alpha", TmuxSession: "overcode", IsAsleep: true, Status: store.LifecycleRunning})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	body, _ := json.Marshal(map[string]any{"id": sess.ID, "text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/control/send-text", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:1"
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, _ := st.Get(sess.ID)
	if got.IsAsleep {
		t.Error("expected send-text to wake the session")
	}
}

func TestControlEndpointNotFoundMapsTo404(t *testing.T) {
	s, _ := newTestServer(t, config.Web{Listen: "127.0.0.1:0", APIKey: "secret", AllowControl: true})
	body, _ := json.Marshal(map[string]any{"id": "does-not-exist", "text": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/control/send-text", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:1"
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var decoded errorBody
	if err := json.NewDecoder(rec.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if decoded.OK {
		t.Error("expected ok=false")
	}
}

// stubPanes is a no-op core.PaneController used only to satisfy
// launch.Launcher/control.Surface construction in these tests — no test
// here exercises window/pane behavior directly.
type stubPanes struct{}

func (stubPanes) EnsureSession(ctx context.Context, name string) error { return nil }
func (stubPanes) NewWindow(ctx context.Context, session, name, cwd string) (int, error) {
	return 0, nil
}
func (stubPanes) KillWindow(ctx context.Context, session string, index int) error { return nil }
func (stubPanes) WindowExists(ctx context.Context, session string, index int) (bool, error) {
	return true, nil
}
func (stubPanes) SendKeys(ctx context.Context, session string, index int, keys string, enter bool) error {
	return nil
}
func (stubPanes) CapturePane(ctx context.Context, session string, index int, lines int) (string, error) {
	return "", nil
}
func (stubPanes) SelectWindow(ctx context.Context, session string, index int) error { return nil }
func (stubPanes) ListWindows(ctx context.Context, session string) ([]int, error)    { return nil, nil }
