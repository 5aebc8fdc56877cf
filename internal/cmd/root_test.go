package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/mkb23/overcode/internal/store"
)

func TestResolveByNameNotFound(t *testing.T) {
	dir := t.TempDir()
	e := &env{Store: store.New(filepath.Join(dir, "sessions.json"))}

	if _, err := e.resolveByName("ghost"); err == nil {
		t.Fatal("expected error for unknown agent name")
	}
}

func TestResolveByNameFindsMatch(t *testing.T) {
	dir := t.TempDir()
	s := store.New(filepath.Join(dir, "sessions.json"))
	e := &env{Store: s}

	created, err := s.Create(store.Session{Name: "lead", TmuxSession: "overcode", Status: store.LifecycleRunning})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := e.resolveByName("lead")
	if err != nil {
		t.Fatalf("resolveByName: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("got id %q, want %q", got.ID, created.ID)
	}
}

func TestExitCodeForPlainError(t *testing.T) {
	if got := exitCodeFor(errors.New("boom")); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}

func TestExitCodeForExitError(t *testing.T) {
	err := &exitError{code: 130, msg: "interrupted"}
	if got := exitCodeFor(err); got != 130 {
		t.Errorf("got %d, want 130", got)
	}
}

func TestExitErrorEmptyMessageIsSilent(t *testing.T) {
	err := &exitError{code: 0}
	if err.Error() != "" {
		t.Errorf("expected empty message for clean stop, got %q", err.Error())
	}
}

func TestSessionStateDirAndStorePath(t *testing.T) {
	home := "/home/user/.overcode"
	if got, want := sessionStateDir(home, "overcode"), filepath.Join(home, "sessions", "overcode"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := sessionsStorePath(home), filepath.Join(home, "sessions", "sessions.json"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
