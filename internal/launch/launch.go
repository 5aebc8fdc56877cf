// Package launch implements the Launcher (spec.md §4.O): creates a
// multiplexer window for a new agent, composes its startup command with
// the env vars a child uses to auto-wire its own parent, registers it in
// the Session Store, and optionally delivers an initial prompt once the
// agent's pane shows a ready prompt.
package launch

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/patterns"
	"github.com/mkb23/overcode/internal/store"
)

// Env var names a launching parent sets on a child, and a child reads off
// its own process environment (spec.md §6.3).
const (
	EnvSessionName     = "OVERCODE_SESSION_NAME"
	EnvTmuxSession     = "OVERCODE_TMUX_SESSION"
	EnvParentSessionID = "OVERCODE_PARENT_SESSION_ID"
	EnvParentName      = "OVERCODE_PARENT_NAME"
)

// PromptPollInterval and PromptPollTimeout implement step 7's polling for
// a ready prompt before delivering an initial prompt.
const (
	PromptPollInterval  = 500 * time.Millisecond
	PromptPollTimeout   = 30 * time.Second
	PromptFallbackDelay = 3 * time.Second
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateName reports whether name satisfies spec.md §4.O step 1.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match %s", name, namePattern.String())
	}
	return nil
}

// Options configures one Launch call.
type Options struct {
	Name        string
	TmuxSession string
	WorkDir     string

	// ParentName explicitly names a parent; if empty, Launch falls back
	// to this process's own OVERCODE_SESSION_NAME (spec.md §4.O step 2).
	ParentName string

	// Command is the base startup command, e.g. []string{"claude"}.
	Command []string

	PermissivenessMode store.PermissivenessMode
	AllowedTools       []string
	ExtraClaudeArgs    []string

	StandingInstructions string
	InitialPrompt        string
}

func permissivenessFlags(mode store.PermissivenessMode) []string {
	switch mode {
	case store.PermissivenessBypass:
		return []string{"--dangerously-skip-permissions"}
	case store.PermissivenessPermissive:
		return []string{"--permission-mode", "acceptEdits"}
	default:
		return nil
	}
}

// ComposeStartupCommand exposes composeCommand for callers outside this
// package that need to rebuild an agent's startup command without going
// through the full Launch algorithm — namely Restart (spec.md §4.R),
// which relaunches in the same window rather than registering a new
// session.
func ComposeStartupCommand(opts Options, parentSessionID, parentName string) string {
	return composeCommand(opts, parentSessionID, parentName)
}

// composeCommand builds the shell command string sent to the new window
// (spec.md §4.O step 5): env assignments prefixed onto the launch command,
// followed by permission flags, --allowedTools, and any extra args.
func composeCommand(opts Options, parentSessionID, parentName string) string {
	base := opts.Command
	if len(base) == 0 {
		base = []string{"claude"}
	}

	var env []string
	env = append(env, fmt.Sprintf("%s=%s", EnvSessionName, shellQuote(opts.Name)))
	env = append(env, fmt.Sprintf("%s=%s", EnvTmuxSession, shellQuote(opts.TmuxSession)))
	if parentSessionID != "" {
		env = append(env, fmt.Sprintf("%s=%s", EnvParentSessionID, shellQuote(parentSessionID)))
	}
	if parentName != "" {
		env = append(env, fmt.Sprintf("%s=%s", EnvParentName, shellQuote(parentName)))
	}

	args := append([]string{}, base...)
	args = append(args, permissivenessFlags(opts.PermissivenessMode)...)
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	args = append(args, opts.ExtraClaudeArgs...)

	return strings.Join(env, " ") + " " + strings.Join(args, " ")
}

// shellQuote single-quotes a value for safe inclusion in the composed
// startup command, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Launcher creates and registers new agent sessions.
type Launcher struct {
	Panes    core.PaneController
	Store    *store.Store
	Clock    core.Clock
	Patterns *patterns.Table

	// Getenv reads this process's own environment, overridable for
	// tests; defaults to os.Getenv.
	Getenv func(string) string
}

// New constructs a Launcher with production defaults.
func New(panes core.PaneController, st *store.Store, clock core.Clock) *Launcher {
	return &Launcher{
		Panes:    panes,
		Store:    st,
		Clock:    clock,
		Patterns: patterns.Default(),
		Getenv:   os.Getenv,
	}
}

func (l *Launcher) getenv(key string) string {
	if l.Getenv != nil {
		return l.Getenv(key)
	}
	return os.Getenv(key)
}

// resolveParent implements step 2: an explicit ParentName wins; otherwise
// fall back to the name this process was itself launched with, so an
// agent invoking `overcode launch` on its own behalf auto-wires itself as
// the parent without an explicit flag. Returns ("", "", nil) if there is
// no parent to wire (a root-level launch).
func (l *Launcher) resolveParent(opts Options) (parentSessionID, parentName string, err error) {
	name := opts.ParentName
	if name == "" {
		name = l.getenv(EnvSessionName)
	}
	if name == "" {
		return "", "", nil
	}
	parentSess, ok, err := l.Store.FindByName(name, opts.TmuxSession)
	if err != nil {
		return "", "", fmt.Errorf("resolving parent %q: %w", name, err)
	}
	if !ok {
		return "", "", fmt.Errorf("parent session %q not found in tmux session %q", name, opts.TmuxSession)
	}
	return parentSess.ID, parentSess.Name, nil
}

// Launch implements spec.md §4.O in full.
func (l *Launcher) Launch(ctx context.Context, opts Options) (store.Session, error) {
	if err := ValidateName(opts.Name); err != nil {
		return store.Session{}, err
	}

	// Step 3: idempotent relaunch.
	if existing, ok, err := l.Store.FindByName(opts.Name, opts.TmuxSession); err != nil {
		return store.Session{}, err
	} else if ok {
		gone, err := l.windowGone(ctx, existing)
		if err != nil {
			return store.Session{}, err
		}
		if !gone {
			return existing, nil
		}
		if err := l.Store.Archive(existing.ID, store.LifecycleTerminated); err != nil {
			return store.Session{}, fmt.Errorf("cleaning up stale session %q: %w", opts.Name, err)
		}
	}

	// Step 2: resolve parent (Store.Create itself enforces the resulting
	// MaxDepth invariant).
	parentSessionID, parentName, err := l.resolveParent(opts)
	if err != nil {
		return store.Session{}, err
	}

	// Step 4: create the window.
	if err := l.Panes.EnsureSession(ctx, opts.TmuxSession); err != nil {
		return store.Session{}, fmt.Errorf("ensuring tmux session %q: %w", opts.TmuxSession, err)
	}
	window, err := l.Panes.NewWindow(ctx, opts.TmuxSession, opts.Name, opts.WorkDir)
	if err != nil {
		return store.Session{}, fmt.Errorf("creating window for %q: %w", opts.Name, err)
	}

	// Step 5: compose and send the startup command.
	command := composeCommand(opts, parentSessionID, parentName)
	if err := l.Panes.SendKeys(ctx, opts.TmuxSession, window, command, true); err != nil {
		_ = l.Panes.KillWindow(ctx, opts.TmuxSession, window)
		return store.Session{}, fmt.Errorf("sending startup command: %w", err)
	}

	// Step 6: register in the Session Store.
	sess := store.Session{
		Name:                 opts.Name,
		TmuxSession:          opts.TmuxSession,
		TmuxWindow:           window,
		Command:              append([]string{}, opts.Command...),
		StartDirectory:       opts.WorkDir,
		StartTime:            store.ISOTime(l.Clock.Now()),
		Status:               store.LifecycleRunning,
		StandingInstructions: opts.StandingInstructions,
		PermissivenessMode:   opts.PermissivenessMode,
		HookStatusDetection:  true,
		AllowedTools:         opts.AllowedTools,
		ExtraClaudeArgs:      opts.ExtraClaudeArgs,
		Stats: store.SessionStats{
			StateSince: store.ISOTime(l.Clock.Now()),
		},
	}
	if parentSessionID != "" {
		sess.ParentSessionID = &parentSessionID
	}

	created, err := l.Store.Create(sess)
	if err != nil {
		_ = l.Panes.KillWindow(ctx, opts.TmuxSession, window)
		return store.Session{}, fmt.Errorf("registering session %q: %w", opts.Name, err)
	}

	// Step 7: deliver the initial prompt, if any.
	if opts.InitialPrompt != "" {
		l.sendInitialPrompt(ctx, opts.TmuxSession, window, opts.InitialPrompt)
	}

	return created, nil
}

func (l *Launcher) windowGone(ctx context.Context, sess store.Session) (bool, error) {
	exists, err := l.Panes.WindowExists(ctx, sess.TmuxSession, sess.TmuxWindow)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// sendInitialPrompt polls CapturePane until a bare prompt cursor line
// appears (spec.md §4.O step 7), then sends prompt via a buffer paste
// (newline-containing SendKeys already pastes rather than line-sends, per
// core.PaneController's contract). On timeout it falls back to a fixed
// delay and sends anyway.
func (l *Launcher) sendInitialPrompt(ctx context.Context, tmuxSession string, window int, prompt string) {
	deadline := time.Now().Add(PromptPollTimeout)
	ticker := time.NewTicker(PromptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			time.Sleep(PromptFallbackDelay)
			_ = l.Panes.SendKeys(ctx, tmuxSession, window, prompt, true)
			return
		}

		captured, err := l.Panes.CapturePane(ctx, tmuxSession, window, 10)
		if err != nil {
			continue
		}
		lines := strings.Split(patterns.StripANSI(captured), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			if strings.TrimSpace(lines[i]) == "" {
				continue
			}
			if l.Patterns.IsPromptLine(lines[i]) {
				_ = l.Panes.SendKeys(ctx, tmuxSession, window, prompt, true)
				return
			}
			break
		}
	}
}
