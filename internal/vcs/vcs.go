// Package vcs shells out to git to refresh a session's repo/branch
// context and to compute git-diff stats for the Web API, the same way
// internal/tmux drives tmux as a subprocess rather than linking a
// library (spec.md §4.J step 6 "Refresh VCS context"; §4.Q "git-diff
// stats"; original: monitor_daemon.py's refresh_git_context and
// tui_formatters.py's get_git_diff_stats).
package vcs

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Timeout bounds every git subprocess call (spec.md §5: "subprocess
// calls to VCS: 2 s").
const Timeout = 2 * time.Second

func run(ctx context.Context, dir string, args ...string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return "", false
	}
	return strings.TrimSpace(stdout.String()), true
}

// RefreshContext resolves the repo name and current branch for dir, or
// (nil, nil) if dir is not inside a git working tree. repoName is the
// base name of the repository's top-level directory.
func RefreshContext(ctx context.Context, dir string) (repoName, branch *string) {
	if dir == "" {
		return nil, nil
	}
	top, ok := run(ctx, dir, "rev-parse", "--show-toplevel")
	if !ok || top == "" {
		return nil, nil
	}
	name := filepath.Base(top)

	br, ok := run(ctx, dir, "branch", "--show-current")
	if !ok {
		return &name, nil
	}
	return &name, &br
}

// DiffStats is the (files changed, insertions, deletions) summary of
// `git diff --stat HEAD`.
type DiffStats struct {
	FilesChanged int
	Insertions   int
	Deletions    int
}

var (
	filesChangedRe = regexp.MustCompile(`(\d+) files? changed`)
	insertionsRe   = regexp.MustCompile(`(\d+) insertions?`)
	deletionsRe    = regexp.MustCompile(`(\d+) deletions?`)
)

// DiffStat returns the working-tree diff stat against HEAD for dir, and
// false if dir is not a git repository (or the command failed/timed
// out). No changes (but still a repo) is (DiffStats{}, true).
func DiffStat(ctx context.Context, dir string) (DiffStats, bool) {
	if dir == "" {
		return DiffStats{}, false
	}
	out, ok := run(ctx, dir, "diff", "--stat", "HEAD")
	if !ok {
		return DiffStats{}, false
	}
	if out == "" {
		return DiffStats{}, true
	}
	lines := strings.Split(out, "\n")
	summary := lines[len(lines)-1]

	var stats DiffStats
	if m := filesChangedRe.FindStringSubmatch(summary); m != nil {
		stats.FilesChanged, _ = strconv.Atoi(m[1])
	}
	if m := insertionsRe.FindStringSubmatch(summary); m != nil {
		stats.Insertions, _ = strconv.Atoi(m[1])
	}
	if m := deletionsRe.FindStringSubmatch(summary); m != nil {
		stats.Deletions, _ = strconv.Atoi(m[1])
	}
	return stats, true
}
