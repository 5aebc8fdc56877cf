// Package web implements the Web API (spec.md §4.Q): a read-only JSON
// snapshot/timeline/health surface, public over loopback and
// X-API-Key-gated otherwise, plus authenticated POST control endpoints
// that delegate to internal/control.Surface. It never binds a listener
// itself beyond what Serve does — callers own the process lifecycle,
// matching gastown's internal/cmd/dashboard.go split between handler
// construction and `http.Server` wiring.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mkb23/overcode/internal/config"
	"github.com/mkb23/overcode/internal/control"
	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/monitor"
	"github.com/mkb23/overcode/internal/store"
)

// Server holds everything the Web API's handlers need.
type Server struct {
	Config          config.Web
	Store           *store.Store
	Surface         *control.Surface
	FS              core.FS
	Clock           core.Clock
	MonitorStatePath string
	HistoryPath     string

	// RestartMonitorSignal, StartSupervisorSignal, StopSupervisorSignal
	// back the three control actions that delegate to a caller-supplied
	// control.SignalFunc (spec.md §4.R) — nil means that action always
	// reports 400, which is the honest answer when nothing is wired.
	RestartMonitorSignal control.SignalFunc
	StartSupervisorSignal control.SignalFunc
	StopSupervisorSignal  control.SignalFunc
}

// Mux builds the HTTP route table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/timeline", s.handleTimeline)

	mux.HandleFunc("/api/control/send-text", s.handleSendText)
	mux.HandleFunc("/api/control/send-key", s.handleSendKey)
	mux.HandleFunc("/api/control/kill", s.handleKill)
	mux.HandleFunc("/api/control/restart", s.handleRestart)
	mux.HandleFunc("/api/control/launch", s.handleLaunch)
	mux.HandleFunc("/api/control/standing-orders", s.handleStandingOrders)
	mux.HandleFunc("/api/control/budget", s.handleBudget)
	mux.HandleFunc("/api/control/value", s.handleValue)
	mux.HandleFunc("/api/control/annotation", s.handleAnnotation)
	mux.HandleFunc("/api/control/sleep", s.handleSleep)
	mux.HandleFunc("/api/control/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("/api/control/heartbeat/pause", s.handleHeartbeatPause)
	mux.HandleFunc("/api/control/heartbeat/resume", s.handleHeartbeatResume)
	mux.HandleFunc("/api/control/time-context", s.handleToggleTimeContext)
	mux.HandleFunc("/api/control/hook-detection", s.handleToggleHookDetection)
	mux.HandleFunc("/api/control/bulk-transport", s.handleBulkTransport)
	mux.HandleFunc("/api/control/cleanup", s.handleCleanup)
	mux.HandleFunc("/api/control/restart-monitor", s.handleRestartMonitor)
	mux.HandleFunc("/api/control/supervisor/start", s.handleStartSupervisor)
	mux.HandleFunc("/api/control/supervisor/stop", s.handleStopSupervisor)
	return mux
}

// Serve builds an *http.Server with the same timeout profile gastown's
// dashboard command uses and blocks serving it until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.Config.Listen,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "timestamp": store.ISOTime(s.Clock.Now())})
}

func (s *Server) loadMonitorState() (monitor.MonitorState, error) {
	data, err := s.FS.ReadFile(s.MonitorStatePath)
	if err != nil {
		return monitor.MonitorState{}, err
	}
	var state monitor.MonitorState
	if err := json.Unmarshal(data, &state); err != nil {
		return monitor.MonitorState{}, fmt.Errorf("parsing monitor state: %w", err)
	}
	return state, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireRead(w, r) {
		return
	}
	state, err := s.loadMonitorState()
	if err != nil {
		// No published state yet (daemon hasn't run a tick) is not a
		// failure — report a running=false snapshot with no agents
		// rather than a 500, per spec.md §7's "tolerate missing file".
		resp := BuildStatus(monitor.MonitorState{}, store.ISOTime(s.Clock.Now()))
		resp.Daemon.Running = false
		writeJSON(w, resp)
		return
	}

	now := s.Clock.Now()
	resp := BuildStatus(state, store.ISOTime(now))
	for i, snap := range state.Sessions {
		sess, err := s.Store.Get(snap.ID)
		if err == nil {
			resp.Agents[i] = enrichFromSession(r.Context(), resp.Agents[i], sess, now)
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if !s.requireRead(w, r) {
		return
	}
	hours := parseFloatParam(r, "hours", 1)
	slots := parseIntParam(r, "slots", 60)

	rows, err := parseHistory(s.FS, s.HistoryPath)
	if err != nil {
		writeError(w, &apiError{Status: 500, Message: err.Error()})
		return
	}
	writeJSON(w, BuildTimeline(rows, hours, slots, s.Clock.Now()))
}

func parseFloatParam(r *http.Request, name string, def float64) float64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err != nil || f <= 0 {
		return def
	}
	return f
}

func parseIntParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
		return def
	}
	return n
}
