package store

import "errors"

var (
	// ErrNotFound is returned when a session id is not present among
	// either live or archived sessions.
	ErrNotFound = errors.New("session not found")

	// ErrDuplicateName is returned on creation when (name, tmux_session)
	// collides with a live session (spec.md §3.1 invariants).
	ErrDuplicateName = errors.New("a session with this name already exists in this tmux session")

	// ErrDepthExceeded is returned when a new session's parent chain would
	// exceed MaxDepth.
	ErrDepthExceeded = errors.New("parent chain exceeds maximum depth")

	// ErrParentCycle is returned when a session would become its own
	// ancestor.
	ErrParentCycle = errors.New("parent assignment would create a cycle")

	// ErrSleepHeartbeatConflict is returned when a caller tries to put an
	// asleep session's heartbeat in a state sleep forbids (spec.md §4.K:
	// sleep and heartbeat delivery are mutually exclusive).
	ErrSleepHeartbeatConflict = errors.New("cannot enable heartbeat while session is asleep")

	// ErrUnknownActiveClaudeSession is returned when ActiveClaudeSessionID
	// is set to a value absent from ClaudeSessionIDs.
	ErrUnknownActiveClaudeSession = errors.New("active_claude_session_id must be a member of claude_session_ids")
)
