package patterns

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStripANSI(t *testing.T) {
	in := "\x1b[1;32mhello\x1b[0m world"
	if got := StripANSI(in); got != "hello world" {
		t.Errorf("StripANSI() = %q, want %q", got, "hello world")
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	tbl := Default()

	cases := []struct {
		name    string
		content string
		want    Status
	}{
		{"permission wins over busy", "thinking\nDo you want to proceed?\nEnter to confirm", StatusPermission},
		{"error detected", "⎿ API Error: overloaded", StatusError},
		{"busy from spinner", "✽ Pondering...", StatusBusy},
		{"busy from execution verb", "Reading file.go", StatusBusy},
		{"approval dialog folds into permission", "Plan mode: review the plan", StatusPermission},
		{"idle prompt", "some output\n❯", StatusIdlePrompt},
		{"unknown for unrelated text", "just some ordinary output", StatusUnknown},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, _ := tbl.Classify(c.content, 10)
			if got != c.want {
				t.Errorf("Classify(%q) = %v, want %v", c.content, got, c.want)
			}
		})
	}
}

func TestIsCommandMenuLineExcludedFromClassification(t *testing.T) {
	tbl := Default()
	content := "  /compact     Compact the conversation\n  /clear        Clear context\n❯"
	got, _ := tbl.Classify(content, 10)
	if got != StatusIdlePrompt {
		t.Errorf("expected command-menu lines to be excluded, got %v", got)
	}
}

func TestCountCommandMenuLines(t *testing.T) {
	tbl := Default()
	lines := []string{
		"  /compact     Compact the conversation",
		"  /clear        Clear context",
		"not a menu line",
	}
	if got := tbl.CountCommandMenuLines(lines); got != 2 {
		t.Errorf("CountCommandMenuLines() = %d, want 2", got)
	}
}

func TestExtractBackgroundBashCount(t *testing.T) {
	tbl := Default()
	cases := []struct {
		statusLine string
		want       int
	}{
		{"⏵⏵ 3 bashes running", 3},
		{"⏵⏵ npm test (running)", 1},
		{"⏵⏵ bypass permissions on", 0},
	}
	for _, c := range cases {
		content := "some output\n" + c.statusLine
		if got := tbl.ExtractBackgroundBashCount(content); got != c.want {
			t.Errorf("ExtractBackgroundBashCount(%q) = %d, want %d", c.statusLine, got, c.want)
		}
	}
}

func TestExtractLiveSubagentCount(t *testing.T) {
	tbl := Default()
	content := "output\n⏵⏵ 2 local agents running"
	if got := tbl.ExtractLiveSubagentCount(content); got != 2 {
		t.Errorf("ExtractLiveSubagentCount() = %d, want 2", got)
	}
}

func TestFindStatusBarLineUsesLastMatch(t *testing.T) {
	tbl := Default()
	content := "⏵⏵ 1 local agents running\nsome noise\n⏵⏵ 4 local agents running"
	if got := tbl.ExtractLiveSubagentCount(content); got != 4 {
		t.Errorf("expected bottom-most status bar line to win, got %d", got)
	}
}

func TestCleanLineStripsPrefixAndTruncates(t *testing.T) {
	tbl := Default()
	got := tbl.CleanLine("❯ a very long line that exceeds the maximum length allowed for display", 20)
	if len(got) > 20 {
		t.Errorf("expected truncated output <= 20 runes, got %q (%d)", got, len(got))
	}
	if len(got) > 0 && got[0] == '❯' {
		t.Errorf("expected prefix to be stripped, got %q", got)
	}
}

func TestDetectSpawnFailure(t *testing.T) {
	tbl := Default()
	if !tbl.DetectSpawnFailure("zsh: command not found: claude") {
		t.Error("expected spawn failure to be detected")
	}
	if tbl.DetectSpawnFailure("Reading README.md") {
		t.Error("expected ordinary output not to be flagged as spawn failure")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	tbl, err := Load(filepath.Join(t.TempDir(), "patterns.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(tbl.PermissionPatterns) == 0 {
		t.Error("expected default permission patterns when override file is absent")
	}
}

func TestLoadOverridesPromptChars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.toml")
	content := `prompt_chars = ["$"]` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing override file: %v", err)
	}

	tbl, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !tbl.IsPromptLine("$") {
		t.Error("expected overridden prompt char to be recognized")
	}
	if tbl.IsPromptLine("❯") {
		t.Error("expected default prompt char to be replaced, not merged")
	}
}
