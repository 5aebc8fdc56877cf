// Package monitor implements the Monitor Loop and its enforcement
// sub-engines (spec.md §4.J/§4.K/§4.L/§4.M): the central per-tmux-session
// daemon that drives detection, stats accumulation, heartbeats, oversight,
// and budget/auto-archive, publishing MonitorState each tick.
package monitor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/store"
)

// Version is the MonitorState schema tag, bumped whenever its shape
// changes in a way consumers should care about.
const Version = "1"

// StaleAfter is the multiple of the fast tick interval by which a
// MonitorState file's mtime may lag before a consumer should treat it as
// stale (spec.md §3.3).
const StaleAfter = 2

// AgentSnapshot is the per-session view published inside MonitorState:
// derived from store.Session plus the tick's detected activity.
type AgentSnapshot struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Lifecycle      store.Lifecycle    `json:"lifecycle"`
	Status         detect.ActivityStatus `json:"status"`
	Activity       string             `json:"activity"`
	RepoName       string             `json:"repo_name,omitempty"`
	Branch         string             `json:"branch,omitempty"`
	IsAsleep       bool               `json:"is_asleep"`
	BudgetExceeded bool               `json:"budget_exceeded"`
	ParentID       string             `json:"parent_session_id,omitempty"`
	Stats          store.SessionStats `json:"stats"`
	IsRemote       bool               `json:"is_remote,omitempty"`
}

// MonitorState is the daemon's published, non-canonical snapshot
// (spec.md §3.3), rewritten atomically every tick.
type MonitorState struct {
	Version      string          `json:"version"`
	PID          int             `json:"pid"`
	LoopCount    int64           `json:"loop_count"`
	IntervalSecs int             `json:"interval_seconds"`
	LastTickTime string          `json:"last_tick_time"` // ISO-8601
	TmuxSession  string          `json:"tmux_session"`
	Sessions     []AgentSnapshot `json:"sessions"`

	SisterSummary map[string]SisterSummary `json:"sister_summary,omitempty"`
}

// SisterSummary is the per-sister reachability counter folded into
// MonitorState for web API consumption (spec.md §4.P, §4.Q).
type SisterSummary struct {
	Reachable bool   `json:"reachable"`
	LastError string `json:"last_error,omitempty"`
	Agents    int    `json:"agents"`
}

// Publish marshals state and writes it atomically to path.
func Publish(fs core.FS, path string, state MonitorState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding monitor state: %w", err)
	}
	return fs.WriteAtomic(path, data, 0o644)
}

// IsStale reports whether a MonitorState published at mtime, with the
// daemon running on intervalSeconds, should be considered stale as of now.
func IsStale(mtime time.Time, intervalSeconds int, now time.Time) bool {
	threshold := time.Duration(StaleAfter*intervalSeconds) * time.Second
	return now.Sub(mtime) > threshold
}
