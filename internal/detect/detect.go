// Package detect implements the Status Detector family (spec.md
// §4.E/§4.F/§4.G): turning a pattern-engine classification (or a hook
// event) into the activity status the rest of Overcode reasons about,
// and the per-session dispatcher that picks between the two strategies.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/patterns"
)

// ActivityStatus is the fine-grained activity axis tracked per session,
// distinct from the coarse store.Lifecycle.
type ActivityStatus string

const (
	StatusPermission       ActivityStatus = "permission"
	StatusError            ActivityStatus = "error"
	StatusRunning          ActivityStatus = "running"
	StatusWaiting          ActivityStatus = "waiting"
	StatusWaitingUser      ActivityStatus = "waiting_user"
	StatusWaitingOversight ActivityStatus = "waiting_oversight"
	StatusAsleep           ActivityStatus = "asleep"
	StatusHeartbeatStart   ActivityStatus = "heartbeat_start"
	StatusRunningHeartbeat ActivityStatus = "running_heartbeat"
	StatusWaitingHeartbeat ActivityStatus = "waiting_heartbeat"
	StatusTerminated       ActivityStatus = "terminated"
)

// Result is what both detector strategies return.
type Result struct {
	Status   ActivityStatus
	Activity string // short human-readable activity line
	RawPane  string // retained raw (ANSI-laden) pane text, for the caller
}

// PollingDetectTailLines is the default number of trailing pane lines
// considered by the pattern engine (spec.md §4.D/§4.E).
const PollingDetectTailLines = 50

// ActivityMaxWidth caps the activity line (stored as current_task), in
// display columns, via patterns.Table.CleanLine.
const ActivityMaxWidth = 100

// PollingDetector implements spec.md §4.E: capture the pane, classify
// with the Status Pattern Engine, and elevate the raw classification into
// the activity-status vocabulary the rest of the system understands.
type PollingDetector struct {
	panes    core.PaneController
	patterns *patterns.Table
}

// NewPollingDetector constructs a PollingDetector over panes, classifying
// with table (use patterns.Default() for the built-in rules).
func NewPollingDetector(panes core.PaneController, table *patterns.Table) *PollingDetector {
	return &PollingDetector{panes: panes, patterns: table}
}

// Detect captures the last PollingDetectTailLines lines of session/index
// and classifies them.
func (d *PollingDetector) Detect(ctx context.Context, session string, index int) (Result, error) {
	raw, err := d.panes.CapturePane(ctx, session, index, PollingDetectTailLines)
	if err != nil {
		return Result{}, fmt.Errorf("capturing pane: %w", err)
	}

	rawStatus, activity := d.patterns.Classify(raw, PollingDetectTailLines)
	return Result{
		Status:   elevate(rawStatus),
		Activity: d.patterns.CleanLine(activity, ActivityMaxWidth),
		RawPane:  raw,
	}, nil
}

// elevate maps a patterns.Status (the Status Pattern Engine's raw
// classification) into the activity-status vocabulary used everywhere
// else: busy becomes running (the agent IS doing something), idle_prompt
// becomes waiting_user (nothing to do but wait on the human); permission
// and waiting/error pass through unchanged. An unrecognized or absent
// classification defaults to waiting_user rather than raising, per
// spec.md §7 boundary behavior ("pattern mismatch / unknown status").
func elevate(s patterns.Status) ActivityStatus {
	switch s {
	case patterns.StatusPermission:
		return StatusPermission
	case patterns.StatusError:
		return StatusError
	case patterns.StatusBusy:
		return StatusRunning
	case patterns.StatusWaiting:
		return StatusWaiting
	case patterns.StatusIdlePrompt:
		return StatusWaitingUser
	default:
		return StatusWaitingUser
	}
}

// HookEvent is the ephemeral per-agent hook record (spec.md §3.4, §6.2:
// `{event, timestamp (float seconds since epoch), tool_name?}`).
type HookEvent struct {
	Event     string  `json:"event"`
	Timestamp float64 `json:"timestamp"`
	ToolName  string  `json:"tool_name,omitempty"`
}

// Time converts the float-epoch-seconds Timestamp to a time.Time.
func (e HookEvent) Time() time.Time {
	secs := int64(e.Timestamp)
	nanos := int64((e.Timestamp - float64(secs)) * float64(time.Second))
	return time.Unix(secs, nanos).UTC()
}

// HookEventMaxAge is how old a hook_state_<name>.json may be before it's
// considered stale and the caller must fall back to polling (spec.md
// §4.F).
const HookEventMaxAge = 120 * time.Second

var hookEventStatus = map[string]ActivityStatus{
	"UserPromptSubmit": StatusRunning,
	"PostToolUse":      StatusRunning,
	"PermissionRequest": StatusPermission,
	"SessionEnd":       StatusTerminated,
	// "Stop" is handled specially below: it depends on whether the
	// session has a parent (waiting_oversight) or not (waiting_user).
}

// HookDetector implements spec.md §4.F: read the most recent hook event
// recorded for a session and map it directly to an activity status,
// without capturing or pattern-matching the pane at all.
type HookDetector struct {
	fs       core.FS
	stateDir string
	now      func() time.Time
}

// NewHookDetector constructs a HookDetector reading hook_state_<name>.json
// files from stateDir.
func NewHookDetector(fs core.FS, stateDir string, now func() time.Time) *HookDetector {
	return &HookDetector{fs: fs, stateDir: stateDir, now: now}
}

func (d *HookDetector) statePath(sessionName string) string {
	return filepath.Join(d.stateDir, fmt.Sprintf("hook_state_%s.json", sessionName))
}

// Detect reads the hook state for sessionName. ok is false when no state
// file exists or it is stale, signaling the caller to fall back to
// polling (spec.md §4.G).
func (d *HookDetector) Detect(sessionName string, hasParent bool) (status ActivityStatus, ok bool, err error) {
	data, err := d.fs.ReadFile(d.statePath(sessionName))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading hook state: %w", err)
	}

	var event HookEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", false, fmt.Errorf("parsing hook state: %w", err)
	}

	if d.now().Sub(event.Time()) > HookEventMaxAge {
		return "", false, nil
	}

	if event.Event == "Stop" {
		if hasParent {
			return StatusWaitingOversight, true, nil
		}
		return StatusWaitingUser, true, nil
	}

	mapped, known := hookEventStatus[event.Event]
	if !known {
		return "", false, nil
	}
	return mapped, true, nil
}

// Dispatcher holds both detector strategies and selects between them per
// session, per spec.md §4.G: "a per-session, not process-wide, strategy".
type Dispatcher struct {
	polling *PollingDetector
	hooks   *HookDetector
}

// NewDispatcher constructs a Dispatcher over both strategies.
func NewDispatcher(polling *PollingDetector, hooks *HookDetector) *Dispatcher {
	return &Dispatcher{polling: polling, hooks: hooks}
}

// Detect always runs the polling detector first, since pane text is still
// needed for activity-string enrichment even under hook-based detection
// (spec.md §4.F: "even when using hook status, capture pane text for
// activity enrichment"); a polling error is returned before the hook state
// is read. When useHooks is true and the hook detector has a fresh answer,
// its status replaces the polled one; otherwise the polled result is
// returned unchanged.
func (d *Dispatcher) Detect(ctx context.Context, session string, index int, sessionName string, useHooks, hasParent bool) (Result, error) {
	polled, err := d.polling.Detect(ctx, session, index)
	if err != nil {
		return Result{}, err
	}

	if !useHooks {
		return polled, nil
	}

	hookStatus, ok, err := d.hooks.Detect(sessionName, hasParent)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return polled, nil
	}

	return Result{
		Status:   hookStatus,
		Activity: polled.Activity,
		RawPane:  polled.RawPane,
	}, nil
}
