// Package cmd wires the overcode cobra command tree together: daemon
// lifecycle, launch/follow, the Control Surface's actions, the Web API
// server, and sister-aggregation diagnostics. Mirrors the teacher's own
// cmd/<binary>/main.go + internal/cmd/*.go split (a thin main.go, a
// package of command vars with RunE handlers resolving shared state
// before acting).
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mkb23/overcode/internal/clock"
	"github.com/mkb23/overcode/internal/config"
	"github.com/mkb23/overcode/internal/control"
	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/launch"
	"github.com/mkb23/overcode/internal/store"
	"github.com/mkb23/overcode/internal/tmux"
)

// Command groups, mirroring the teacher's GroupServices/GroupAgents/
// GroupConfig split (gastown's internal/cmd/daemon.go, boot.go, config.go).
const (
	GroupAgents  = "agents"
	GroupServices = "services"
	GroupControl  = "control"
	GroupConfig   = "config"
)

var rootCmd = &cobra.Command{
	Use:   "overcode",
	Short: "Supervise a fleet of interactive coding agents running in tmux",
	Long: `overcode supervises a fleet of interactive coding agents, each running
in its own tmux window, detecting their status, nudging idle ones with
heartbeats, enforcing budgets, and aggregating fleets across machines.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupAgents, Title: "Agent Commands:"},
		&cobra.Group{ID: GroupServices, Title: "Service Commands:"},
		&cobra.Group{ID: GroupControl, Title: "Control Commands:"},
		&cobra.Group{ID: GroupConfig, Title: "Config Commands:"},
	)
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintf(os.Stderr, "overcode: %s\n", msg)
	}
	return exitCodeFor(err)
}

// cmdStdout is the writer follow streams pane output to.
func cmdStdout() *os.File { return os.Stdout }

// requireSubcommand is RunE for group commands that only exist to hold
// subcommands (matches gastown's daemonCmd.RunE: requireSubcommand).
func requireSubcommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

// overcodeHome resolves the base state directory: OVERCODE_STATE_DIR
// (spec.md §6.3, for test isolation) if set, else ~/.overcode.
func overcodeHome() (string, error) {
	if dir := os.Getenv("OVERCODE_STATE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".overcode"), nil
}

// sessionStateDir is ~/.overcode/sessions/<tmuxSession> (spec.md §6.1).
func sessionStateDir(homeDir, tmuxSession string) string {
	return filepath.Join(homeDir, "sessions", tmuxSession)
}

// sessionsStorePath is ~/.overcode/sessions/sessions.json, shared across
// every tmux session's daemon (spec.md §6.1).
func sessionsStorePath(homeDir string) string {
	return filepath.Join(homeDir, "sessions", "sessions.json")
}

// env bundles the shared runtime built from config + OS state that every
// subcommand's RunE needs: config, the Session Store, tmux control, and
// the real clock/filesystem.
type env struct {
	Home   string
	Config config.Config
	Store  *store.Store
	Panes  core.PaneController
	Clock  core.Clock
	FS     core.FS
}

// newEnv resolves overcodeHome, loads config.yaml, and constructs the
// Session Store + tmux controller every command needs.
func newEnv() (*env, error) {
	home, err := overcodeHome()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(filepath.Join(home, "config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	sys := clock.New()
	return &env{
		Home:   home,
		Config: cfg,
		Store:  store.New(sessionsStorePath(home)),
		Panes:  tmux.NewFromEnv(),
		Clock:  sys,
		FS:     sys,
	}, nil
}

// surface builds a control.Surface over this env's shared state.
func (e *env) surface() *control.Surface {
	return &control.Surface{
		Store:    e.Store,
		Panes:    e.Panes,
		Launcher: launch.New(e.Panes, e.Store, e.Clock),
		Clock:    e.Clock,
	}
}

// resolveByName finds a session by its display name across every tmux
// session this Store tracks — the CLI's control commands take a name,
// not a Store-internal id.
func (e *env) resolveByName(name string) (store.Session, error) {
	sessions, err := e.Store.List()
	if err != nil {
		return store.Session{}, fmt.Errorf("listing sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.Name == name {
			return sess, nil
		}
	}
	return store.Session{}, fmt.Errorf("no such agent %q", name)
}

// exitCodeFor maps a RunE error to a process exit code. Most command
// failures just need a non-zero code (1); follow's RunE handlers
// return an *exitError carrying spec.md §6.4's specific codes (0, 1,
// or 130), since cobra's RunE only supports a single error return.
func exitCodeFor(err error) int {
	if ec, ok := err.(interface{ ExitCode() int }); ok {
		return ec.ExitCode()
	}
	return 1
}
