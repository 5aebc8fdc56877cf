// Package core declares the narrow interfaces that bind the rest of
// Overcode together without creating import cycles between the concrete
// implementations (tmux subprocess control, the real clock/filesystem,
// vendor transcript parsing) and the packages that consume them (session
// store, status detectors, monitor loop).
package core

import (
	"context"
	"time"
)

// PaneController abstracts the terminal multiplexer. Implementations wrap
// a subprocess-driven control program (tmux); tests use an in-memory fake.
type PaneController interface {
	// EnsureSession creates the named multiplexer session if it does not
	// already exist. Idempotent.
	EnsureSession(ctx context.Context, name string) error

	// NewWindow creates a window inside session with the given name and
	// working directory, returning its index.
	NewWindow(ctx context.Context, session, name, cwd string) (int, error)

	// KillWindow destroys a window. Not an error if already gone.
	KillWindow(ctx context.Context, session string, index int) error

	// WindowExists reports whether a window is present. A missing window
	// is not an error condition — it is reported via the bool result.
	WindowExists(ctx context.Context, session string, index int) (bool, error)

	// SendKeys sends literal text or a named key (Enter, Escape, a digit
	// 1-5, an arrow key name) to a window. When keys contains newlines,
	// implementations must use a buffer-paste strategy rather than
	// line-by-line send-keys, to preserve ordering and avoid length
	// limits (see spec.md §4.A).
	SendKeys(ctx context.Context, session string, index int, keys string, enter bool) error

	// CapturePane returns the last `lines` visual lines of a window as a
	// UTF-8 byte string. ANSI escape sequences are preserved; stripping
	// is the caller's responsibility.
	CapturePane(ctx context.Context, session string, index int, lines int) (string, error)

	// SelectWindow focuses a window (used by Follow Mode and launch).
	SelectWindow(ctx context.Context, session string, index int) error

	// ListWindows returns the indices of all windows in a session.
	ListWindows(ctx context.Context, session string) ([]int, error)
}

// Clock abstracts wall and monotonic time so the pure accumulation logic
// in internal/stats and the monitor loop can be driven deterministically
// in tests.
type Clock interface {
	Now() time.Time
}

// FS abstracts the crash-safe persistence primitives every persisted
// document in Overcode relies on: atomic whole-file replace, and tailed
// append for the history CSV.
type FS interface {
	// WriteAtomic writes data to path by writing a temp file in the same
	// directory and renaming it over path, so readers never observe a
	// partially written file.
	WriteAtomic(path string, data []byte, perm uint32) error

	// ReadFile reads a file in full. Implementations should tolerate a
	// missing file by returning os.ErrNotExist so callers can treat it as
	// "no data yet" per spec.md §5.
	ReadFile(path string) ([]byte, error)

	// AppendLine appends a single line (with trailing newline) to path,
	// creating it (and any header, via writeHeaderIfNew when the file is new)
	// if it does not exist.
	AppendLine(path string, line string, writeHeaderIfNew func() string) error
}

// TranscriptReader abstracts the vendor's on-disk transcript format,
// yielding only counts and token sums — never structural parsing of the
// vendor's proprietary message format (spec.md §1 Non-goals).
type TranscriptReader interface {
	// CurrentSessionID returns the vendor's active session identifier for
	// the agent rooted at startDir, or "" if none can be determined.
	CurrentSessionID(ctx context.Context, startDir string) (string, error)

	// Stats returns accumulated interaction/token counts for a given
	// vendor session ID.
	Stats(ctx context.Context, startDir, claudeSessionID string) (TranscriptStats, error)
}

// TranscriptStats is the per-vendor-session accumulation TranscriptReader
// yields. All fields are monotone per vendor session.
type TranscriptStats struct {
	InteractionCount    int
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
	// CurrentContextTokens is the size of the active context window for
	// this vendor session right now — it drops after a `/clear` rotates
	// to a new vendor session id (spec.md §8 boundary behaviors).
	CurrentContextTokens int64
}
