package web

import (
	"context"
	"time"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/monitor"
	"github.com/mkb23/overcode/internal/stats"
	"github.com/mkb23/overcode/internal/store"
	"github.com/mkb23/overcode/internal/vcs"
)

// statusColorHex and statusTable mirror the original's status_constants.py
// tables (referenced from web_api.py's WEB_COLORS as hex, but the
// constants module itself was not present in the retrieval pack — these
// are reconstructed from the activity statuses this core actually
// tracks (internal/detect.ActivityStatus) plus the hex values web_api.py
// does carry directly (WEB_COLORS)).
var statusColorHex = map[string]string{
	"green":  "#22c55e",
	"yellow": "#eab308",
	"orange": "#f97316",
	"red":    "#ef4444",
	"dim":    "#6b7280",
	"cyan":   "#06b6d4",
}

var permEmoji = map[store.PermissivenessMode]string{
	store.PermissivenessNormal:     "👮",
	store.PermissivenessBypass:     "🔥",
	store.PermissivenessPermissive: "🏃",
}

// statusDisplay is (color name, emoji) for one activity status.
type statusDisplay struct {
	Color string
	Emoji string
}

var statusTable = map[detect.ActivityStatus]statusDisplay{
	detect.StatusRunning:          {"green", "🏃"},
	detect.StatusRunningHeartbeat: {"green", "💓"},
	detect.StatusHeartbeatStart:   {"green", "💓"},
	detect.StatusWaiting:         {"yellow", "⏳"},
	detect.StatusWaitingUser:     {"yellow", "💬"},
	detect.StatusWaitingHeartbeat: {"yellow", "💤"},
	detect.StatusWaitingOversight: {"orange", "🔎"},
	detect.StatusPermission:      {"orange", "🔐"},
	detect.StatusError:           {"red", "🔥"},
	detect.StatusAsleep:          {"dim", "😴"},
	detect.StatusTerminated:      {"dim", "⬛"},
}

func displayFor(status detect.ActivityStatus) statusDisplay {
	if d, ok := statusTable[status]; ok {
		return d
	}
	return statusDisplay{"yellow", "❓"}
}

// AgentInfo is one entry in /api/status's "agents" array. Field names
// follow original_source/src/overcode/web_api.py's _build_agent_info
// directly — this is the public HTTP contract external dashboards
// consume, so it mirrors the Python original's wire format verbatim
// rather than this codebase's internal Go naming conventions.
type AgentInfo struct {
	Name              string  `json:"name"`
	Status            string  `json:"status"`
	StatusEmoji       string  `json:"status_emoji"`
	StatusColor       string  `json:"status_color"`
	StatusColorHex    string  `json:"status_color_hex"`
	Activity          string  `json:"activity"`
	ParentName        string  `json:"parent_name,omitempty"`
	Repo              string  `json:"repo,omitempty"`
	Branch            string  `json:"branch,omitempty"`
	GreenTimeRaw      float64 `json:"green_time_raw"`
	NonGreenTimeRaw   float64 `json:"non_green_time_raw"`
	SleepTimeRaw      float64 `json:"sleep_time_raw"`
	HumanInteractions int     `json:"human_interactions"`
	RobotSteers       int     `json:"robot_steers"`
	TokensRaw         int64   `json:"tokens_raw"`
	CostUSD           float64 `json:"cost_usd"`
	StandingOrders    bool    `json:"standing_orders"`
	StandingOrdersComplete bool `json:"standing_orders_complete"`
	TimeInStateRaw    float64 `json:"time_in_state_raw"`
	MedianWorkTime    float64 `json:"median_work_time"`
	PermissivenessMode string `json:"permissiveness_mode"`
	PermEmoji          string `json:"perm_emoji"`
	BudgetExceeded     bool   `json:"budget_exceeded"`
	IsAsleep           bool   `json:"is_asleep"`
	IsRemote           bool   `json:"is_remote,omitempty"`
	GitDiffFiles       int    `json:"git_diff_files"`
	GitDiffInsertions  int    `json:"git_diff_insertions"`
	GitDiffDeletions   int    `json:"git_diff_deletions"`
}

// DaemonInfo is the "daemon" section of /api/status. Supervisor-Claude
// orchestration and the summarizer are out of scope (spec.md §1), so
// unlike web_api.py's _build_daemon_info this omits
// supervisor_claude_running/summarizer_* entirely rather than stubbing
// them.
type DaemonInfo struct {
	Running      bool   `json:"running"`
	LoopCount    int64  `json:"loop_count"`
	IntervalSecs int    `json:"interval_seconds"`
	LastTick     string `json:"last_tick_time"`
}

// PresenceInfo is the "presence" section. Presence detection is a
// pluggable, platform-optional capability (spec.md §9 "platform-optional
// presence") that this core does not implement on any platform, so
// Available is always false here and the TUI/dashboard should omit the
// section, exactly as spec.md §9 prescribes.
type PresenceInfo struct {
	Available bool `json:"available"`
}

// Summary is the "summary" section of /api/status.
type Summary struct {
	TotalAgents      int     `json:"total_agents"`
	GreenAgents      int     `json:"green_agents"`
	TotalGreenTime   float64 `json:"total_green_time"`
	TotalNonGreenTime float64 `json:"total_non_green_time"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
}

// StatusResponse is the full /api/status body (spec.md §4.Q).
type StatusResponse struct {
	Timestamp string       `json:"timestamp"`
	Daemon    DaemonInfo   `json:"daemon"`
	Presence  PresenceInfo `json:"presence"`
	Summary   Summary      `json:"summary"`
	Agents    []AgentInfo  `json:"agents"`
}

// nameByID resolves a parent session id to its name within the snapshot.
func nameByID(sessions []monitor.AgentSnapshot) map[string]string {
	out := make(map[string]string, len(sessions))
	for _, s := range sessions {
		out[s.ID] = s.Name
	}
	return out
}

// BuildStatus assembles a StatusResponse from the published MonitorState.
// nowISO is the response timestamp (caller-supplied so this stays a pure
// function, per spec.md's testability preference for the accumulation
// layers).
func BuildStatus(state monitor.MonitorState, nowISO string) StatusResponse {
	byID := nameByID(state.Sessions)

	agents := make([]AgentInfo, 0, len(state.Sessions))
	greenAgents := 0
	var totalGreen, totalNonGreen, totalCost float64

	for _, snap := range state.Sessions {
		disp := displayFor(snap.Status)
		green := stats.IsGreen(snap.Status)
		if green {
			greenAgents++
		}
		totalGreen += snap.Stats.GreenTimeSeconds
		totalNonGreen += snap.Stats.NonGreenTimeSeconds
		totalCost += snap.Stats.EstimatedCostUSD

		info := AgentInfo{
			Name:                   snap.Name,
			Status:                 string(snap.Status),
			StatusEmoji:            disp.Emoji,
			StatusColor:            disp.Color,
			StatusColorHex:         statusColorHex[disp.Color],
			Activity:               snap.Activity,
			ParentName:             byID[snap.ParentID],
			Repo:                   snap.RepoName,
			Branch:                 snap.Branch,
			GreenTimeRaw:           snap.Stats.GreenTimeSeconds,
			NonGreenTimeRaw:        snap.Stats.NonGreenTimeSeconds,
			SleepTimeRaw:           snap.Stats.SleepTimeSeconds,
			HumanInteractions:      snap.Stats.InteractionCount - snap.Stats.SteersCount,
			RobotSteers:            snap.Stats.SteersCount,
			TokensRaw:              snap.Stats.TotalTokens,
			CostUSD:                snap.Stats.EstimatedCostUSD,
			BudgetExceeded:         snap.BudgetExceeded,
			IsAsleep:               snap.IsAsleep,
			IsRemote:               snap.IsRemote,
		}
		agents = append(agents, info)
	}

	return StatusResponse{
		Timestamp: nowISO,
		Daemon: DaemonInfo{
			Running:      true,
			LoopCount:    state.LoopCount,
			IntervalSecs: state.IntervalSecs,
			LastTick:     state.LastTickTime,
		},
		Presence: PresenceInfo{Available: false},
		Summary: Summary{
			TotalAgents:       len(state.Sessions),
			GreenAgents:       greenAgents,
			TotalGreenTime:    totalGreen,
			TotalNonGreenTime: totalNonGreen,
			TotalCostUSD:      totalCost,
		},
		Agents: agents,
	}
}

// enrichFromSession fills in the fields BuildStatus cannot derive from
// MonitorState alone (standing orders text/preset booleans, permission
// mode + emoji, median operation time, time in current state, git-diff
// stats) by joining against the canonical Session Store record. Called
// per-agent by the HTTP handler, which already has both the snapshot and
// a live *store.Store to hand.
func enrichFromSession(ctx context.Context, info AgentInfo, sess store.Session, now time.Time) AgentInfo {
	info.StandingOrders = sess.StandingInstructions != ""
	info.StandingOrdersComplete = sess.StandingOrdersComplete
	info.PermissivenessMode = string(sess.PermissivenessMode)
	info.PermEmoji = permEmoji[sess.PermissivenessMode]
	info.MedianWorkTime = sess.Stats.MedianOperationTime()
	if since, err := store.ParseISOTime(sess.Stats.StateSince); err == nil {
		info.TimeInStateRaw = now.Sub(since).Seconds()
	}
	if diff, ok := vcs.DiffStat(ctx, sess.StartDirectory); ok {
		info.GitDiffFiles = diff.FilesChanged
		info.GitDiffInsertions = diff.Insertions
		info.GitDiffDeletions = diff.Deletions
	}
	return info
}
