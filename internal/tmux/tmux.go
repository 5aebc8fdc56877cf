// Package tmux implements core.PaneController by shelling out to the tmux
// binary, the same way gastown's internal/tmux package drives tmux as a
// subprocess rather than linking a control library.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Common errors, mirroring the teacher's sentinel style.
var (
	ErrNoServer        = errors.New("tmux: no server running")
	ErrSessionNotFound = errors.New("tmux: session not found")
	ErrWindowNotFound  = errors.New("tmux: window not found")
)

// namedKeys maps the named keys spec.md §4.A allows (besides literal text),
// plus C-c for the Control Surface's Restart, to the tmux key-name tmux
// send-keys understands.
var namedKeys = map[string]string{
	"C-c":    "C-c",
	"Enter":  "Enter",
	"Escape": "Escape",
	"Up":     "Up",
	"Down":   "Down",
	"Left":   "Left",
	"Right":  "Right",
	"1":      "1",
	"2":      "2",
	"3":      "3",
	"4":      "4",
	"5":      "5",
}

// handleCacheEntry is a cached (session, window) existence check, amortizing
// subprocess cost per spec.md §4.A ("cache window handles with a short TTL").
type handleCacheEntry struct {
	exists   bool
	cachedAt time.Time
}

// Controller implements core.PaneController against a real tmux binary.
// The socket name (for test isolation, OVERCODE_TMUX_SOCKET) is fixed at
// construction.
type Controller struct {
	socket string

	mu    sync.Mutex
	cache map[string]handleCacheEntry
	ttl   time.Duration
}

// New creates a Controller. socket may be empty to use tmux's default
// socket, or the value of OVERCODE_TMUX_SOCKET for test isolation.
func New(socket string) *Controller {
	return &Controller{
		socket: socket,
		cache:  make(map[string]handleCacheEntry),
		ttl:    30 * time.Second,
	}
}

// NewFromEnv builds a Controller honoring OVERCODE_TMUX_SOCKET (spec.md §6.3).
func NewFromEnv() *Controller {
	return New(os.Getenv("OVERCODE_TMUX_SOCKET"))
}

func (c *Controller) run(ctx context.Context, args ...string) (string, error) {
	full := args
	if c.socket != "" {
		full = append([]string{"-L", c.socket}, args...)
	}
	cmd := exec.CommandContext(ctx, "tmux", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return "", wrapError(err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func wrapError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	switch {
	case strings.Contains(stderr, "no server running"), strings.Contains(stderr, "error connecting to"):
		return ErrNoServer
	case strings.Contains(stderr, "can't find session"), strings.Contains(stderr, "session not found"):
		return ErrSessionNotFound
	case strings.Contains(stderr, "can't find window"):
		return ErrWindowNotFound
	}
	if stderr != "" {
		return fmt.Errorf("tmux: %s", stderr)
	}
	return fmt.Errorf("tmux: %w", err)
}

func target(session string, index int) string {
	return fmt.Sprintf("%s:%d", session, index)
}

// EnsureSession creates the session if it does not already exist.
func (c *Controller) EnsureSession(ctx context.Context, name string) error {
	_, err := c.run(ctx, "has-session", "-t", "="+name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrNoServer) {
		return err
	}
	_, err = c.run(ctx, "new-session", "-d", "-s", name)
	return err
}

// NewWindow creates a window and returns its index.
func (c *Controller) NewWindow(ctx context.Context, session, name, cwd string) (int, error) {
	args := []string{"new-window", "-t", session, "-n", name, "-P", "-F", "#{window_index}"}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return 0, err
	}
	idx, perr := strconv.Atoi(strings.TrimSpace(out))
	if perr != nil {
		return 0, fmt.Errorf("tmux: unexpected window index output %q: %w", out, perr)
	}
	c.invalidate(session, idx)
	return idx, nil
}

// KillWindow destroys a window. A missing window is not an error.
func (c *Controller) KillWindow(ctx context.Context, session string, index int) error {
	_, err := c.run(ctx, "kill-window", "-t", target(session, index))
	c.invalidate(session, index)
	if err != nil && (errors.Is(err, ErrWindowNotFound) || errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer)) {
		return nil
	}
	return err
}

// WindowExists reports whether a window is present; never returns an
// error purely because the window is missing.
func (c *Controller) WindowExists(ctx context.Context, session string, index int) (bool, error) {
	key := target(session, index)

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && time.Since(entry.cachedAt) < c.ttl {
		c.mu.Unlock()
		return entry.exists, nil
	}
	c.mu.Unlock()

	_, err := c.run(ctx, "list-panes", "-t", key)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrWindowNotFound) && !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrNoServer) {
		return false, err
	}

	c.mu.Lock()
	c.cache[key] = handleCacheEntry{exists: exists, cachedAt: time.Now()}
	c.mu.Unlock()

	return exists, nil
}

func (c *Controller) invalidate(session string, index int) {
	c.mu.Lock()
	delete(c.cache, target(session, index))
	c.mu.Unlock()
}

// SendKeys sends literal text or a named key, optionally followed by Enter.
// Multi-line literal text is sent via a temp-file buffer paste (tmux
// load-buffer + paste-buffer) instead of send-keys, per spec.md §4.A, to
// preserve ordering and avoid argv length limits.
func (c *Controller) SendKeys(ctx context.Context, session string, index int, keys string, enter bool) error {
	tgt := target(session, index)

	if tkey, ok := namedKeys[keys]; ok {
		_, err := c.run(ctx, "send-keys", "-t", tgt, tkey)
		return err
	}

	if strings.Contains(keys, "\n") {
		if err := c.pasteBuffer(ctx, tgt, keys); err != nil {
			return err
		}
	} else if keys != "" {
		if _, err := c.run(ctx, "send-keys", "-t", tgt, "-l", keys); err != nil {
			return err
		}
	}

	if enter {
		time.Sleep(100 * time.Millisecond) // debounce, matching gastown's SendKeysDebounced default
		_, err := c.run(ctx, "send-keys", "-t", tgt, "Enter")
		return err
	}
	return nil
}

// pasteBuffer writes text to a temp file, loads it into a tmux paste
// buffer, and pastes it into the target window. This is the mechanism
// spec.md §4.A requires for multi-line SendKeys.
func (c *Controller) pasteBuffer(ctx context.Context, tgt, text string) error {
	f, err := os.CreateTemp("", "overcode-paste-*")
	if err != nil {
		return fmt.Errorf("creating paste buffer temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("writing paste buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing paste buffer: %w", err)
	}

	bufName := fmt.Sprintf("overcode-%d", time.Now().UnixNano())
	if _, err := c.run(ctx, "load-buffer", "-b", bufName, f.Name()); err != nil {
		return fmt.Errorf("loading paste buffer: %w", err)
	}
	defer c.run(ctx, "delete-buffer", "-b", bufName) //nolint:errcheck // best-effort cleanup

	_, err = c.run(ctx, "paste-buffer", "-b", bufName, "-t", tgt)
	return err
}

// CapturePane returns the last `lines` visual lines, ANSI preserved.
func (c *Controller) CapturePane(ctx context.Context, session string, index int, lines int) (string, error) {
	if lines <= 0 {
		lines = 50
	}
	return c.run(ctx, "capture-pane", "-e", "-p", "-t", target(session, index), "-S", fmt.Sprintf("-%d", lines))
}

// SelectWindow focuses a window.
func (c *Controller) SelectWindow(ctx context.Context, session string, index int) error {
	_, err := c.run(ctx, "select-window", "-t", target(session, index))
	return err
}

// ListWindows returns all window indices in a session.
func (c *Controller) ListWindows(ctx context.Context, session string) ([]int, error) {
	out, err := c.run(ctx, "list-windows", "-t", session, "-F", "#{window_index}")
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var indices []int
	for _, line := range strings.Split(out, "\n") {
		idx, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// IsInsideTmux reports whether the current process runs inside a tmux
// client session (used by the CLI to warn when launching outside tmux).
func IsInsideTmux() bool {
	return os.Getenv("TMUX") != ""
}
