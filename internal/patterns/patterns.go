// Package patterns implements the Status Pattern Engine (spec.md §4.G/§4.H
// "Status Detection"): ordered pattern tables that classify a captured
// tmux pane into a coarse activity status, plus the status-bar scanners
// that extract background-bash and live-subagent counts. It is pure and
// deterministic — no I/O, no clock, so it can be exhaustively unit tested
// (spec.md §8 Testable Properties).
//
// Grounded on the original Python status_patterns.py (gastown-adjacent
// prior art for this same tool), transliterated into Go pattern tables
// with an optional on-disk override via patterns.toml, the way gastown
// loads hooks/registry.toml with BurntSushi/toml.
package patterns

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// Status is the coarse activity classification of a captured pane.
type Status string

const (
	StatusPermission Status = "permission"
	StatusError      Status = "error"
	StatusBusy       Status = "busy"
	StatusWaiting    Status = "waiting"
	StatusIdlePrompt Status = "idle_prompt"
	StatusUnknown    Status = "unknown"
)

// ansiEscape matches terminal escape sequences (colors, cursor movement).
var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

// StripANSI removes escape sequences from text captured with tmux's
// escape-sequence-preserving capture mode.
func StripANSI(text string) string {
	return ansiEscape.ReplaceAllString(text, "")
}

// Table holds every pattern list the engine matches against. The zero
// value is not useful; use Default() or Load to obtain one.
type Table struct {
	PermissionPatterns []string `toml:"permission_patterns"`
	ActiveIndicators   []string `toml:"active_indicators"`
	ExecutionIndicators []string `toml:"execution_indicators"` // case-sensitive
	WaitingPatterns    []string `toml:"waiting_patterns"`
	PromptChars        []string `toml:"prompt_chars"`
	LinePrefixes       []string `toml:"line_prefixes"`
	StatusBarPrefixes  []string `toml:"status_bar_prefixes"`
	CommandMenuPattern string   `toml:"command_menu_pattern"`
	SpawnFailurePatterns []string `toml:"spawn_failure_patterns"`
	ApprovalPatterns   []string `toml:"approval_patterns"` // regex, case-insensitive
	ErrorPatterns      []string `toml:"error_patterns"`    // regex, case-sensitive

	commandMenuRe *regexp.Regexp
	approvalRes   []*regexp.Regexp
	errorRes      []*regexp.Regexp
}

// Default returns the built-in pattern table, matching Claude Code's
// observed output formats at the time this engine was written.
func Default() *Table {
	t := &Table{
		PermissionPatterns: []string{
			"enter to confirm",
			"esc to reject",
			"allow this",
			"do you want to proceed",
			"❯ 1. yes",
			"tell claude what to do differently",
		},
		ActiveIndicators: []string{
			"web search",
			"searching",
			"fetching",
			"esc to interrupt",
			"thinking",
			"✽",
			"razzmatazzing",
			"fiddle-faddling",
			"pondering",
			"cogitating",
		},
		ExecutionIndicators: []string{
			"Reading", "Writing", "Editing", "Running", "Executing",
			"Searching", "Analyzing", "Processing", "Installing",
			"Building", "Compiling", "Testing", "Deploying",
		},
		WaitingPatterns: []string{
			"paused", "do you want", "proceed", "continue",
			"yes/no", "[y/n]", "press any key",
		},
		PromptChars:       []string{">", "›", "❯"},
		LinePrefixes:      []string{"› ", "> ", "❯ ", "- ", "• "},
		StatusBarPrefixes: []string{"⏵⏵"},
		CommandMenuPattern: `^\s*/[\w-]+\s{2,}\S`,
		SpawnFailurePatterns: []string{
			"command not found",
			"not found:",
			"no such file or directory",
			"permission denied",
			"cannot execute",
			"is not recognized",
		},
		ApprovalPatterns: []string{
			`waiting for.*approval`,
			`plan mode`,
			`approve.*plan`,
			`select.*option`,
			`choose.*[1-4]`,
			`review the plan`,
			`approve this plan`,
			`plan requires approval`,
		},
		ErrorPatterns: []string{
			`⎿\s*API Error`,
			`⎿\s*TypeError`,
			`⎿\s*Unable to connect`,
			`⎿\s*Error:.*compaction`,
			`You've hit your limit`,
			`Invalid API key`,
			`Missing API key`,
			`Retrying in.*seconds.*attempt`,
		},
	}
	t.compile()
	return t
}

func (t *Table) compile() {
	t.commandMenuRe = regexp.MustCompile(t.CommandMenuPattern)
	t.approvalRes = make([]*regexp.Regexp, len(t.ApprovalPatterns))
	for i, p := range t.ApprovalPatterns {
		t.approvalRes[i] = regexp.MustCompile("(?i)" + p)
	}
	t.errorRes = make([]*regexp.Regexp, len(t.ErrorPatterns))
	for i, p := range t.ErrorPatterns {
		t.errorRes[i] = regexp.MustCompile(p)
	}
}

func matchesAny(text string, patterns []string, caseSensitive bool) bool {
	if !caseSensitive {
		text = strings.ToLower(text)
	}
	for _, p := range patterns {
		needle := p
		if !caseSensitive {
			needle = strings.ToLower(needle)
		}
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func anyRegexMatches(text string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// findMatchingLine returns the first line (scanning from the end when
// reverse is true) that matches any pattern, and whether one was found.
func findMatchingLine(lines []string, patterns []string, caseSensitive, reverse bool) (string, bool) {
	if reverse {
		for i := len(lines) - 1; i >= 0; i-- {
			if matchesAny(lines[i], patterns, caseSensitive) {
				return lines[i], true
			}
		}
		return "", false
	}
	for _, l := range lines {
		if matchesAny(l, patterns, caseSensitive) {
			return l, true
		}
	}
	return "", false
}

// IsPromptLine reports whether a line is a bare empty-prompt marker.
func (t *Table) IsPromptLine(line string) bool {
	stripped := strings.TrimSpace(line)
	for _, p := range t.PromptChars {
		if stripped == p {
			return true
		}
	}
	return false
}

// IsStatusBarLine reports whether a line is the status-bar UI chrome.
func (t *Table) IsStatusBarLine(line string) bool {
	stripped := strings.TrimSpace(line)
	for _, prefix := range t.StatusBarPrefixes {
		if strings.HasPrefix(stripped, prefix) {
			return true
		}
	}
	return false
}

// IsCommandMenuLine reports whether a line is a slash-command-menu entry.
func (t *Table) IsCommandMenuLine(line string) bool {
	return t.commandMenuRe.MatchString(line)
}

// CountCommandMenuLines counts how many of lines are command-menu entries.
func (t *Table) CountCommandMenuLines(lines []string) int {
	n := 0
	for _, l := range lines {
		if t.IsCommandMenuLine(l) {
			n++
		}
	}
	return n
}

// findStatusBarLine returns the LAST status-bar line in content, since the
// current status bar is always at the bottom of the pane and older copies
// can persist in scrollback.
func (t *Table) findStatusBarLine(content string) (string, bool) {
	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		stripped := strings.TrimSpace(StripANSI(lines[i]))
		for _, prefix := range t.StatusBarPrefixes {
			if strings.HasPrefix(stripped, prefix) {
				return stripped, true
			}
		}
	}
	return "", false
}

var backgroundBashesRe = regexp.MustCompile(`(\d+)\s+bashes`)

// ExtractBackgroundBashCount reads the active background-bash count off
// the status bar ("N bashes" for 2+, "(running)" without "bashes" for
// exactly one, 0 otherwise).
func (t *Table) ExtractBackgroundBashCount(content string) int {
	line, ok := t.findStatusBarLine(content)
	if !ok {
		return 0
	}
	if m := backgroundBashesRe.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if strings.Contains(line, "(running)") && !strings.Contains(line, "bashes") {
		return 1
	}
	return 0
}

var localAgentsRe = regexp.MustCompile(`(\d+)\s+local\s+agents?`)

// ExtractLiveSubagentCount reads the running-subagent count off the
// status bar ("N local agents").
func (t *Table) ExtractLiveSubagentCount(content string) int {
	line, ok := t.findStatusBarLine(content)
	if !ok {
		return 0
	}
	if m := localAgentsRe.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// CleanLine strips a known prefix and truncates for display, respecting
// wide runes (CJK, emoji) when counting toward maxLength so truncation
// doesn't split a double-width glyph.
func (t *Table) CleanLine(line string, maxLength int) string {
	cleaned := strings.TrimSpace(line)
	for _, prefix := range t.LinePrefixes {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = cleaned[len(prefix):]
			break
		}
	}
	return truncateWidth(cleaned, maxLength)
}

// truncateWidth truncates s to at most maxLength display columns,
// appending "..." when truncated, treating East-Asian-wide and fullwidth
// runes as two columns (golang.org/x/text/width).
func truncateWidth(s string, maxLength int) string {
	totalCols := displayWidth(s)
	if totalCols <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return s
	}
	budget := maxLength - 3
	cols := 0
	cut := len(s)
	for i, r := range s {
		w := runeWidth(r)
		if cols+w > budget {
			cut = i
			break
		}
		cols += w
	}
	return s[:cut] + "..."
}

func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

func displayWidth(s string) int {
	cols := 0
	for _, r := range s {
		cols += runeWidth(r)
	}
	return cols
}

// DetectSpawnFailure reports whether pane content shows the launch command
// itself failed to start (spec.md §4.O launch failure detection).
func (t *Table) DetectSpawnFailure(content string) bool {
	return matchesAny(content, t.SpawnFailurePatterns, false)
}

// Classify inspects the trailing lines of a (pane-captured, possibly
// ANSI-laden) block of content, after dropping command-menu and status-bar
// lines (empty lines are kept and count toward tailLines), in priority order
// permission > error > busy > waiting > idle_prompt, and returns the
// coarse Status plus (when found) the triggering line.
//
// tailLines bounds how many trailing content lines are considered for the
// line-oriented pattern sets, matching the original detector's "last few
// lines" scope so a stale message far up the scrollback can't misclassify
// a now-idle session.
func (t *Table) Classify(content string, tailLines int) (Status, string) {
	stripped := StripANSI(content)
	allLines := strings.Split(stripped, "\n")

	var nonMenu []string
	for _, l := range allLines {
		if t.IsCommandMenuLine(l) || t.IsStatusBarLine(l) {
			continue
		}
		nonMenu = append(nonMenu, l)
	}

	tail := nonMenu
	if len(tail) > tailLines {
		tail = tail[len(tail)-tailLines:]
	}

	if line, ok := findMatchingLine(tail, t.PermissionPatterns, false, true); ok {
		return StatusPermission, line
	}
	// Approval-dialog sub-patterns are folded into the permission status
	// (SPEC_FULL.md SUPPLEMENTED FEATURES #3) — checked right after the
	// literal PermissionPatterns table, ahead of error/busy/waiting/idle.
	for _, l := range tail {
		if anyRegexMatches(l, t.approvalRes) {
			return StatusPermission, l
		}
	}

	for _, l := range tail {
		if anyRegexMatches(l, t.errorRes) {
			return StatusError, l
		}
	}

	if line, ok := findMatchingLine(tail, t.ActiveIndicators, false, true); ok {
		return StatusBusy, line
	}
	if line, ok := findMatchingLine(tail, t.ExecutionIndicators, true, true); ok {
		return StatusBusy, line
	}

	if line, ok := findMatchingLine(tail, t.WaitingPatterns, false, true); ok {
		return StatusWaiting, line
	}

	for i := len(nonMenu) - 1; i >= 0; i-- {
		if t.IsPromptLine(nonMenu[i]) {
			return StatusIdlePrompt, nonMenu[i]
		}
	}

	return StatusUnknown, ""
}
