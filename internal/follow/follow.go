// Package follow implements Follow Mode (spec.md §4.N): a blocking
// streamer that tails a session's pane to a writer until the agent stops,
// terminates, or the caller cancels.
package follow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/patterns"
	"golang.org/x/term"
)

// PollInterval is Follow Mode's capture cadence (spec.md §4.N).
const PollInterval = 500 * time.Millisecond

// RingSize bounds the deduplication ring of previously emitted lines.
const RingSize = 50

// CaptureLines is how many trailing pane lines are captured each poll.
const CaptureLines = 200

// Outcome is why Follow returned, mapped to the CLI exit codes in
// spec.md §6.4.
type Outcome int

const (
	// OutcomeStopped means the agent's hook state showed a Stop event.
	OutcomeStopped Outcome = iota
	// OutcomeTerminated means the agent's window disappeared.
	OutcomeTerminated
	// OutcomeInterrupted means the caller's context was cancelled
	// (SIGINT) — the agent itself is left running.
	OutcomeInterrupted
)

// ExitCode maps an Outcome to the process exit code spec.md §6.4 defines.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeStopped:
		return 0
	case OutcomeTerminated:
		return 1
	case OutcomeInterrupted:
		return 130
	default:
		return 1
	}
}

// StopChecker reports whether the followed agent has stopped (hook state
// shows a Stop event) or its window is gone.
type StopChecker interface {
	// Stopped reports whether the agent's hook state shows Stop.
	Stopped() (bool, error)
	// WindowGone reports whether the multiplexer window has disappeared.
	WindowGone(ctx context.Context) (bool, error)
}

// ring deduplicates emitted lines across polls using spec.md §4.N's
// algorithm: locate the last previously-emitted line within the new
// capture and emit only lines beyond it.
type ring struct {
	lines []string
}

func (r *ring) push(line string) {
	r.lines = append(r.lines, line)
	if len(r.lines) > RingSize {
		r.lines = r.lines[len(r.lines)-RingSize:]
	}
}

func (r *ring) last() (string, bool) {
	if len(r.lines) == 0 {
		return "", false
	}
	return r.lines[len(r.lines)-1], true
}

// newLines returns the lines of capture beyond the last emitted line, or
// all of capture if no previously-emitted line is found within it.
func (r *ring) newLines(capture []string) []string {
	last, ok := r.last()
	if !ok {
		return capture
	}
	for i := len(capture) - 1; i >= 0; i-- {
		if capture[i] == last {
			return capture[i+1:]
		}
	}
	return capture
}

// CleanLine ANSI-strips then whitespace-trims a captured line, in that
// order (spec.md §4.N).
func CleanLine(line string) string {
	return strings.TrimSpace(patterns.StripANSI(line))
}

// Follow streams session/window's pane to out, polling every
// PollInterval, until checker reports the agent stopped or its window is
// gone, or ctx is cancelled.
func Follow(ctx context.Context, panes core.PaneController, checker StopChecker, session string, window int, out io.Writer) Outcome {
	r := &ring{}
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return OutcomeInterrupted
		case <-ticker.C:
		}

		gone, err := checker.WindowGone(ctx)
		if err == nil && gone {
			return OutcomeTerminated
		}

		raw, err := panes.CapturePane(ctx, session, window, CaptureLines)
		if err == nil {
			lines := strings.Split(raw, "\n")
			for _, line := range r.newLines(lines) {
				cleaned := CleanLine(line)
				if cleaned == "" {
					continue
				}
				fmt.Fprintln(out, cleaned)
			}
			for _, line := range lines {
				r.push(line)
			}
		}

		stopped, err := checker.Stopped()
		if err == nil && stopped {
			return OutcomeStopped
		}
	}
}

// ColorAllowed reports whether Follow Mode should colorize its output,
// based on whether the given file descriptor is an interactive terminal
// (spec.md's DOMAIN STACK: x/term for exactly this decision).
func ColorAllowed(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// HookStopChecker is the StopChecker implementation used by the CLI: it
// reads the agent's raw hook state file directly (looking for a Stop
// event, regardless of its age — unlike internal/detect's HookDetector,
// Follow Mode doesn't fall back to polling on staleness, it just wants to
// know "has Stop ever fired most recently") and checks window existence
// via the PaneController.
type HookStopChecker struct {
	fs          core.FS
	stateDir    string
	sessionName string
	panes       core.PaneController
	tmuxSession string
	window      int
}

// NewHookStopChecker constructs a HookStopChecker.
func NewHookStopChecker(fs core.FS, stateDir, sessionName string, panes core.PaneController, tmuxSession string, window int) *HookStopChecker {
	return &HookStopChecker{fs: fs, stateDir: stateDir, sessionName: sessionName, panes: panes, tmuxSession: tmuxSession, window: window}
}

func (c *HookStopChecker) Stopped() (bool, error) {
	path := filepath.Join(c.stateDir, fmt.Sprintf("hook_state_%s.json", c.sessionName))
	data, err := c.fs.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var event detect.HookEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return false, err
	}
	return event.Event == "Stop", nil
}

func (c *HookStopChecker) WindowGone(ctx context.Context) (bool, error) {
	exists, err := c.panes.WindowExists(ctx, c.tmuxSession, c.window)
	if err != nil {
		return false, err
	}
	return !exists, nil
}
