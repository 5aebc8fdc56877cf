package transcript

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCurrentSessionIDFindsMostRecentForDirectory(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	history := filepath.Join(home, ".claude", "history.jsonl")

	lines := `{"display":"a","timestamp":1000,"project":"` + dir + `","sessionId":"old"}
{"display":"b","timestamp":2000,"project":"/somewhere/else","sessionId":"other"}
{"display":"c","timestamp":3000,"project":"` + dir + `","sessionId":"new"}
`
	writeFile(t, history, lines)

	r := New(home)
	got, err := r.CurrentSessionID(context.Background(), dir)
	if err != nil {
		t.Fatalf("CurrentSessionID() error: %v", err)
	}
	if got != "new" {
		t.Errorf("CurrentSessionID() = %q, want %q", got, "new")
	}
}

func TestCurrentSessionIDMissingHistoryReturnsEmpty(t *testing.T) {
	home := t.TempDir()
	r := New(home)
	got, err := r.CurrentSessionID(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("CurrentSessionID() error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty session id, got %q", got)
	}
}

func TestStatsAccumulatesUsageAndInteractions(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	encoded := encodeProjectPath(dir)
	sessionFile := filepath.Join(home, ".claude", "projects", encoded, "abc123.jsonl")

	lines := `{"type":"user","message":{"content":"hello"}}
{"type":"assistant","message":{"usage":{"input_tokens":100,"output_tokens":50,"cache_creation_input_tokens":10,"cache_read_input_tokens":20}}}
{"type":"user","message":{"content":[{"type":"tool_result","content":"ok"}]}}
{"type":"assistant","message":{"usage":{"input_tokens":5,"output_tokens":5,"cache_creation_input_tokens":0,"cache_read_input_tokens":30}}}
`
	writeFile(t, sessionFile, lines)

	r := New(home)
	stats, err := r.Stats(context.Background(), dir, "abc123")
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.InteractionCount != 1 {
		t.Errorf("expected 1 real user interaction (tool_result excluded), got %d", stats.InteractionCount)
	}
	if stats.InputTokens != 105 || stats.OutputTokens != 55 {
		t.Errorf("unexpected token totals: %+v", stats)
	}
	if stats.CacheCreationTokens != 10 || stats.CacheReadTokens != 50 {
		t.Errorf("unexpected cache totals: %+v", stats)
	}
	if stats.CurrentContextTokens != 35 {
		t.Errorf("expected current context tokens from most recent usage (5+30), got %d", stats.CurrentContextTokens)
	}
}

func TestStatsMissingSessionFileReturnsZero(t *testing.T) {
	home := t.TempDir()
	r := New(home)
	stats, err := r.Stats(context.Background(), t.TempDir(), "does-not-exist")
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.InteractionCount != 0 || stats.InputTokens != 0 {
		t.Errorf("expected zero stats for missing file, got %+v", stats)
	}
}
