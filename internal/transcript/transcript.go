// Package transcript implements core.TranscriptReader against the
// vendor CLI's on-disk transcript files: a global history.jsonl of
// interaction timestamps, and per-vendor-session JSONL transcripts under
// a project directory, each assistant message carrying a usage block.
// Only counts and token sums are extracted — never the message content
// itself (spec.md §1 Non-goals: "no parsing of the vendor's proprietary
// transcript schema beyond counts and token sums").
//
// Grounded on original_source/src/overcode/history_reader.py: the
// directory-path-encoding scheme, the history.jsonl backward-scan for
// "most recent session id for directory", and the usage-block
// accumulation loop over a session's JSONL file.
package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mkb23/overcode/internal/core"
)

// Reader implements core.TranscriptReader against the vendor CLI's
// history.jsonl and per-session project transcripts rooted at home.
type Reader struct {
	historyPath  string
	projectsPath string

	mu           sync.Mutex
	cacheMtime   time.Time
	cacheSize    int64
	cacheEntries []historyEntry
}

type historyEntry struct {
	TimestampMS int64
	Project     string
	SessionID   string
}

// New returns a Reader rooted at the vendor's default config directory
// (~/.claude).
func New(home string) *Reader {
	return &Reader{
		historyPath:  filepath.Join(home, ".claude", "history.jsonl"),
		projectsPath: filepath.Join(home, ".claude", "projects"),
	}
}

// encodeProjectPath mirrors the vendor CLI's directory-naming scheme:
// an absolute path with '/' replaced by '-'.
func encodeProjectPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return strings.ReplaceAll(abs, string(filepath.Separator), "-")
}

func (r *Reader) sessionFilePath(startDir, sessionID string) string {
	return filepath.Join(r.projectsPath, encodeProjectPath(startDir), sessionID+".jsonl")
}

// entries returns the parsed history.jsonl, re-parsing only when the
// file's mtime or size has changed since the last call.
func (r *Reader) entries() ([]historyEntry, error) {
	info, err := os.Stat(r.historyPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat history file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if info.ModTime().Equal(r.cacheMtime) && info.Size() == r.cacheSize {
		return r.cacheEntries, nil
	}

	f, err := os.Open(r.historyPath)
	if err != nil {
		return nil, fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()

	var entries []historyEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw struct {
			Timestamp int64  `json:"timestamp"`
			Project   string `json:"project"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		entries = append(entries, historyEntry{
			TimestampMS: raw.Timestamp,
			Project:     raw.Project,
			SessionID:   raw.SessionID,
		})
	}

	r.cacheEntries = entries
	r.cacheMtime = info.ModTime()
	r.cacheSize = info.Size()
	return entries, nil
}

// CurrentSessionID returns the most recently seen vendor session id for
// startDir, scanning history.jsonl from the end backward, or "" if none
// is found.
func (r *Reader) CurrentSessionID(ctx context.Context, startDir string) (string, error) {
	entries, err := r.entries()
	if err != nil {
		return "", err
	}
	wantDir, err := filepath.Abs(startDir)
	if err != nil {
		wantDir = startDir
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.SessionID == "" || e.Project == "" {
			continue
		}
		entryDir, err := filepath.Abs(e.Project)
		if err != nil {
			entryDir = e.Project
		}
		if entryDir == wantDir {
			return e.SessionID, nil
		}
	}
	return "", nil
}

// Stats accumulates token usage and interaction counts for one vendor
// session by scanning its JSONL transcript once.
func (r *Reader) Stats(ctx context.Context, startDir, claudeSessionID string) (core.TranscriptStats, error) {
	var stats core.TranscriptStats
	if claudeSessionID == "" {
		return stats, nil
	}

	path := r.sessionFilePath(startDir, claudeSessionID)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("opening session transcript: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry struct {
			Type    string `json:"type"`
			Message struct {
				Usage struct {
					InputTokens         int64 `json:"input_tokens"`
					OutputTokens        int64 `json:"output_tokens"`
					CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
					CacheReadTokens     int64 `json:"cache_read_input_tokens"`
				} `json:"usage"`
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}

		switch entry.Type {
		case "assistant":
			u := entry.Message.Usage
			stats.InputTokens += u.InputTokens
			stats.OutputTokens += u.OutputTokens
			stats.CacheCreationTokens += u.CacheCreationTokens
			stats.CacheReadTokens += u.CacheReadTokens
			if ctxSize := u.InputTokens + u.CacheReadTokens; ctxSize > 0 {
				stats.CurrentContextTokens = ctxSize
			}
		case "user":
			if isToolResultContent(entry.Message.Content) {
				continue
			}
			stats.InteractionCount++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scanning session transcript: %w", err)
	}
	return stats, nil
}

// isToolResultContent reports whether a user-message's content block is a
// tool result rather than an actual user prompt — tool results are
// delivered as a "user" message by the vendor CLI's wire format but
// should not count as an interaction (spec.md §4.I interaction_count).
func isToolResultContent(content json.RawMessage) bool {
	if len(content) == 0 {
		return false
	}
	var blocks []struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(content, &blocks); err != nil {
		return false // plain string content: a real prompt
	}
	return len(blocks) > 0 && blocks[0].Type == "tool_result"
}
