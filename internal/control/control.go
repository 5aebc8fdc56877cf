// Package control implements the Control Surface (spec.md §4.R): the set
// of action handlers shared by the Web API's POST endpoints and (out of
// scope here) a TUI. It operates on the Session Store and PaneController;
// it never itself binds an HTTP listener.
package control

import (
	"context"
	"fmt"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/launch"
	"github.com/mkb23/overcode/internal/stats"
	"github.com/mkb23/overcode/internal/store"
)

// Error is a control-surface failure carrying the HTTP status code the Web
// API should report for it (spec.md §4.Q: 400/404/409/500).
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &Error{Status: 400, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &Error{Status: 404, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Status: 409, Message: fmt.Sprintf(format, args...)}
}

// Surface holds everything a control action needs.
type Surface struct {
	Store    *store.Store
	Panes    core.PaneController
	Launcher *launch.Launcher
	Clock    core.Clock
}

// wake clears is_asleep as a side effect of any action that sends keys to
// a sleeping agent (spec.md §4.R: "any action ... first wakes it").
func wake(sess *store.Session) {
	sess.IsAsleep = false
}

// SendText sends literal text (with Enter) to a session's window, waking
// it first if asleep.
func (s *Surface) SendText(ctx context.Context, id, text string) error {
	sess, err := s.Store.Get(id)
	if err != nil {
		return wrapNotFound(err, id)
	}
	if err := s.Panes.SendKeys(ctx, sess.TmuxSession, sess.TmuxWindow, text, true); err != nil {
		return err
	}
	return s.Store.Update(id, func(sess *store.Session) error {
		wake(sess)
		return nil
	})
}

// SendKey sends a single named key (Enter, Escape, digit, arrow) without
// appending Enter, waking the session first if asleep.
func (s *Surface) SendKey(ctx context.Context, id, key string) error {
	sess, err := s.Store.Get(id)
	if err != nil {
		return wrapNotFound(err, id)
	}
	if err := s.Panes.SendKeys(ctx, sess.TmuxSession, sess.TmuxWindow, key, false); err != nil {
		return err
	}
	return s.Store.Update(id, func(sess *store.Session) error {
		wake(sess)
		return nil
	})
}

// Kill tears down a session. With cascade=true, descendants are torn down
// deepest-first so a parent is never killed while a child window still
// exists. With cascade=false, only id is killed and its direct children
// are orphaned (parent_session_id cleared) rather than torn down.
func (s *Surface) Kill(ctx context.Context, id string, cascade bool) error {
	if !cascade {
		children, err := s.Store.Children(id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := s.Store.Update(child.ID, func(sess *store.Session) error {
				sess.ParentSessionID = nil
				return nil
			}); err != nil {
				return err
			}
		}
		sess, err := s.Store.Get(id)
		if err != nil {
			return wrapNotFound(err, id)
		}
		_ = s.Panes.KillWindow(ctx, sess.TmuxSession, sess.TmuxWindow)
		return s.Store.Archive(id, store.LifecycleTerminated)
	}

	order, err := s.killOrder(id)
	if err != nil {
		return err
	}
	for _, sess := range order {
		_ = s.Panes.KillWindow(ctx, sess.TmuxSession, sess.TmuxWindow)
		if err := s.Store.Archive(sess.ID, store.LifecycleTerminated); err != nil {
			return err
		}
	}
	return nil
}

// killOrder returns id and every transitive descendant, deepest first.
func (s *Surface) killOrder(id string) ([]store.Session, error) {
	root, err := s.Store.Get(id)
	if err != nil {
		return nil, wrapNotFound(err, id)
	}

	var order []store.Session
	var visit func(store.Session) error
	visit = func(sess store.Session) error {
		children, err := s.Store.Children(sess.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := visit(child); err != nil {
				return err
			}
		}
		order = append(order, sess)
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

// Restart sends Ctrl-C then relaunches the agent in the same window,
// preserving its permission mode, allowed tools, and extra args.
func (s *Surface) Restart(ctx context.Context, id string) error {
	sess, err := s.Store.Get(id)
	if err != nil {
		return wrapNotFound(err, id)
	}
	if err := s.Panes.SendKeys(ctx, sess.TmuxSession, sess.TmuxWindow, "C-c", false); err != nil {
		return err
	}
	opts := launch.Options{
		Name:               sess.Name,
		TmuxSession:        sess.TmuxSession,
		WorkDir:            sess.StartDirectory,
		Command:            sess.Command,
		PermissivenessMode: sess.PermissivenessMode,
		AllowedTools:       sess.AllowedTools,
		ExtraClaudeArgs:    sess.ExtraClaudeArgs,
	}
	var parentName string
	if sess.ParentSessionID != nil {
		if parent, err := s.Store.Get(*sess.ParentSessionID); err == nil {
			parentName = parent.Name
		}
	}
	command := launch.ComposeStartupCommand(opts, derefString(sess.ParentSessionID), parentName)
	if err := s.Panes.SendKeys(ctx, sess.TmuxSession, sess.TmuxWindow, command, true); err != nil {
		return err
	}
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.Status = store.LifecycleRunning
		sess.ClaudeSessionIDs = nil
		sess.ActiveClaudeSessionID = ""
		return nil
	})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// LaunchNew creates a brand new session via the Launcher.
func (s *Surface) LaunchNew(ctx context.Context, opts launch.Options) (store.Session, error) {
	return s.Launcher.Launch(ctx, opts)
}

// SetStandingOrders sets or clears an agent's standing instructions.
func (s *Surface) SetStandingOrders(id, instructions string, preset *string) error {
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.StandingInstructions = instructions
		sess.StandingInstructionsPreset = preset
		return nil
	})
}

// ClearStandingOrders clears an agent's standing instructions.
func (s *Surface) ClearStandingOrders(id string) error {
	return s.SetStandingOrders(id, "", nil)
}

// SetBudget sets an agent's cost budget; 0 means unlimited.
func (s *Surface) SetBudget(id string, usd float64) error {
	if usd < 0 {
		return invalid("budget must be >= 0")
	}
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.CostBudgetUSD = usd
		return nil
	})
}

// SetValue sets an agent's priority value.
func (s *Surface) SetValue(id string, value int) error {
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.AgentValue = value
		return nil
	})
}

// SetAnnotation sets an agent's free-text human annotation.
func (s *Surface) SetAnnotation(id, annotation string) error {
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.HumanAnnotation = annotation
		return nil
	})
}

// SetSleep puts an agent to sleep or wakes it, enforcing spec.md §4.R's
// rejection rules: a running (busy) agent, or one with an active
// unpaused heartbeat, cannot be put to sleep.
func (s *Surface) SetSleep(id string, asleep bool) error {
	sess, err := s.Store.Get(id)
	if err != nil {
		return wrapNotFound(err, id)
	}
	if asleep {
		if stats.IsGreen(detect.ActivityStatus(sess.Stats.CurrentState)) {
			return conflict("cannot sleep a running agent")
		}
		if sess.HeartbeatEnabled && !sess.HeartbeatPaused {
			return conflict("cannot sleep an agent with an active, unpaused heartbeat")
		}
	}
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.IsAsleep = asleep
		return nil
	})
}

// ConfigureHeartbeat sets an agent's heartbeat frequency and instruction,
// enabling it. frequency is parsed with store.ParseFrequency.
func (s *Surface) ConfigureHeartbeat(id, frequency, instruction string) error {
	seconds, err := store.ParseFrequency(frequency)
	if err != nil {
		return invalid("invalid frequency: %v", err)
	}
	if seconds < 30 {
		return invalid("heartbeat frequency must be >= 30s")
	}
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.HeartbeatEnabled = true
		sess.HeartbeatFrequencySeconds = seconds
		sess.HeartbeatInstruction = instruction
		return nil
	})
}

// PauseHeartbeat pauses an enabled, unpaused heartbeat.
func (s *Surface) PauseHeartbeat(id string) error {
	sess, err := s.Store.Get(id)
	if err != nil {
		return wrapNotFound(err, id)
	}
	if !sess.HeartbeatEnabled || sess.HeartbeatPaused {
		return conflict("heartbeat is not enabled or is already paused")
	}
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.HeartbeatPaused = true
		return nil
	})
}

// ResumeHeartbeat resumes a paused heartbeat; the agent must not be
// asleep.
func (s *Surface) ResumeHeartbeat(id string) error {
	sess, err := s.Store.Get(id)
	if err != nil {
		return wrapNotFound(err, id)
	}
	if !sess.HeartbeatEnabled || !sess.HeartbeatPaused {
		return conflict("heartbeat is not enabled or is not paused")
	}
	if sess.IsAsleep {
		return conflict("cannot resume heartbeat while asleep")
	}
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.HeartbeatPaused = false
		return nil
	})
}

// ToggleTimeContext flips an agent's time_context_enabled flag.
func (s *Surface) ToggleTimeContext(id string) error {
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.TimeContextEnabled = !sess.TimeContextEnabled
		return nil
	})
}

// ToggleHookDetection flips an agent's hook_status_detection flag.
func (s *Surface) ToggleHookDetection(id string) error {
	return s.Store.Update(id, func(sess *store.Session) error {
		sess.HookStatusDetection = !sess.HookStatusDetection
		return nil
	})
}

// BulkTransport re-homes a set of sessions onto a different tmux session
// name. PaneController has no native "move window between sessions"
// primitive (spec.md §4.A doesn't define one), so this is an
// administrative remap of the stored coordinates only — a human or script
// driving tmux directly is expected to have actually moved the windows
// first; this call updates the Session Store to match reality.
func (s *Surface) BulkTransport(ids []string, targetTmuxSession string) error {
	for _, id := range ids {
		if err := s.Store.Update(id, func(sess *store.Session) error {
			sess.TmuxSession = targetTmuxSession
			return nil
		}); err != nil {
			return fmt.Errorf("transporting %s: %w", id, err)
		}
	}
	return nil
}

// Cleanup archives every done or terminated live session immediately,
// independent of the Monitor Loop's 1-hour auto-archive window (spec.md
// §4.M) — an operator-triggered eager sweep.
func (s *Surface) Cleanup() (int, error) {
	sessions, err := s.Store.List()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, sess := range sessions {
		if sess.Status == store.LifecycleDone || sess.Status == store.LifecycleTerminated {
			if err := s.Store.Archive(sess.ID, sess.Status); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// RestartMonitor and the supervisor start/stop actions below operate on
// processes outside this package's scope (the Monitor Daemon's own
// lifecycle, and the out-of-scope Supervisor-Claude orchestrator per
// spec.md §1). They record the requested intent via a caller-supplied
// signal function rather than managing a process directly, keeping
// internal/control free of daemon-lifecycle knowledge.
type SignalFunc func(ctx context.Context) error

// RestartMonitor invokes signal to request the Monitor Daemon restart
// itself (e.g. by writing a flag file the daemon checks each tick, or
// sending a process signal); this package does not know which.
func (s *Surface) RestartMonitor(ctx context.Context, signal SignalFunc) error {
	if signal == nil {
		return invalid("no restart signal configured")
	}
	return signal(ctx)
}

// StartSupervisor and StopSupervisor likewise delegate to a
// caller-supplied signal, since the supervisor orchestrator itself is
// explicitly out of scope (spec.md §1).
func (s *Surface) StartSupervisor(ctx context.Context, signal SignalFunc) error {
	if signal == nil {
		return invalid("no supervisor-start signal configured")
	}
	return signal(ctx)
}

func (s *Surface) StopSupervisor(ctx context.Context, signal SignalFunc) error {
	if signal == nil {
		return invalid("no supervisor-stop signal configured")
	}
	return signal(ctx)
}

func wrapNotFound(err error, id string) error {
	if err == store.ErrNotFound {
		return notFound("session %s not found", id)
	}
	return err
}
