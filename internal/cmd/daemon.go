package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkb23/overcode/internal/daemonlock"
	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/monitor"
	"github.com/mkb23/overcode/internal/patterns"
	"github.com/mkb23/overcode/internal/stats"
	"github.com/mkb23/overcode/internal/transcript"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: GroupServices,
	Short:   "Manage the monitor daemon for a tmux session",
	RunE:    requireSubcommand,
	Long: `Manage the per-tmux-session monitor daemon.

The monitor daemon polls every agent registered under one tmux session,
detects its status, sends heartbeats, enforces budgets, and publishes
monitor_state.json for the Web API and sister aggregation to read.

One daemon instance supervises exactly one tmux session; run it again
for each session you want monitored.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start <tmux-session>",
	Short: "Start the monitor daemon in the background",
	Args:  cobra.ExactArgs(1),
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop <tmux-session>",
	Short: "Stop the running monitor daemon",
	Args:  cobra.ExactArgs(1),
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status <tmux-session>",
	Short: "Show monitor daemon status",
	Args:  cobra.ExactArgs(1),
	RunE:  runDaemonStatus,
}

var daemonRunCmd = &cobra.Command{
	Use:    "run <tmux-session>",
	Short:  "Run the monitor daemon in the foreground (internal)",
	Args:   cobra.ExactArgs(1),
	Hidden: true,
	RunE:   runDaemonRun,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd, daemonRunCmd)
	rootCmd.AddCommand(daemonCmd)
}

func pidFilePath(stateDir string) string { return filepath.Join(stateDir, "monitor_daemon.pid") }
func logFilePath(stateDir string) string { return filepath.Join(stateDir, "monitor_daemon.log") }

func runDaemonStart(cmd *cobra.Command, args []string) error {
	tmuxSession := args[0]
	e, err := newEnv()
	if err != nil {
		return err
	}
	stateDir := sessionStateDir(e.Home, tmuxSession)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	if pid, err := daemonlock.ReadPID(pidFilePath(stateDir)); err == nil && daemonlock.IsProcessAlive(pid) {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable: %w", err)
	}

	proc := exec.Command(exe, "daemon", "run", tmuxSession)
	proc.Stdin = nil
	proc.Stdout = nil
	proc.Stderr = nil
	if err := proc.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	time.Sleep(200 * time.Millisecond)

	pid, err := daemonlock.ReadPID(pidFilePath(stateDir))
	if err != nil || !daemonlock.IsProcessAlive(pid) {
		return fmt.Errorf("daemon failed to start (check %s)", logFilePath(stateDir))
	}
	if pid != proc.Process.Pid {
		fmt.Printf("daemon already running (PID %d)\n", pid)
		return nil
	}
	fmt.Printf("daemon started (PID %d)\n", pid)
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	tmuxSession := args[0]
	e, err := newEnv()
	if err != nil {
		return err
	}
	stateDir := sessionStateDir(e.Home, tmuxSession)

	pid, err := daemonlock.ReadPID(pidFilePath(stateDir))
	if err != nil || !daemonlock.IsProcessAlive(pid) {
		return fmt.Errorf("daemon is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling daemon: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !daemonlock.IsProcessAlive(pid) {
			fmt.Printf("daemon stopped (was PID %d)\n", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not exit within 10s (PID %d)", pid)
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	tmuxSession := args[0]
	e, err := newEnv()
	if err != nil {
		return err
	}
	stateDir := sessionStateDir(e.Home, tmuxSession)

	pid, err := daemonlock.ReadPID(pidFilePath(stateDir))
	if err != nil || !daemonlock.IsProcessAlive(pid) {
		fmt.Println("daemon is not running")
		fmt.Printf("start with: overcode daemon start %s\n", tmuxSession)
		return nil
	}
	fmt.Printf("daemon is running (PID %d)\n", pid)

	if binModTime, err := binaryModTime(); err == nil {
		if startedAt, err := processStartTime(pidFilePath(stateDir)); err == nil && binModTime.After(startedAt) {
			fmt.Println("  binary is newer than the running process — consider 'overcode daemon stop && overcode daemon start'")
		}
	}
	return nil
}

// binaryModTime returns the modification time of the currently running
// executable, so daemon status can flag a stale-binary situation
// (SPEC_FULL.md supplemented feature 4, grounded on the teacher's
// cmd/daemon.go:runDaemonStatus).
func binaryModTime() (time.Time, error) {
	exe, err := os.Executable()
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(exe)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func processStartTime(pidFile string) (time.Time, error) {
	info, err := os.Stat(pidFile)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func runDaemonRun(cmd *cobra.Command, args []string) error {
	tmuxSession := args[0]
	e, err := newEnv()
	if err != nil {
		return err
	}
	stateDir := sessionStateDir(e.Home, tmuxSession)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	lock, err := daemonlock.Acquire(pidFilePath(stateDir))
	if err != nil {
		var held *daemonlock.ErrHeldByOther
		if errors.As(err, &held) {
			return fmt.Errorf("daemon already running (PID %d)", held.PID)
		}
		return err
	}
	defer lock.Release()

	logFile, err := os.OpenFile(logFilePath(stateDir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	logger := log.New(logFile, "[monitor] ", log.LstdFlags)

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	table, err := patterns.Load(filepath.Join(e.Home, "patterns.toml"))
	if err != nil {
		return fmt.Errorf("loading pattern table: %w", err)
	}
	polling := detect.NewPollingDetector(e.Panes, table)
	hooks := detect.NewHookDetector(e.FS, stateDir, e.Clock.Now)
	dispatcher := detect.NewDispatcher(polling, hooks)

	daemon := monitor.NewDaemon(monitor.Config{
		Panes:       e.Panes,
		FS:          e.FS,
		Clock:       e.Clock,
		Transcripts: transcript.New(home),
		Store:       e.Store,
		Dispatcher:  dispatcher,
		TmuxSession: tmuxSession,
		StateDir:    stateDir,
		Pricing: stats.Prices{
			Input:      e.Config.Pricing.InputPerToken,
			Output:     e.Config.Pricing.OutputPerToken,
			CacheWrite: e.Config.Pricing.CacheWritePerToken,
			CacheRead:  e.Config.Pricing.CacheReadPerToken,
		},
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	logger.Printf("daemon starting for tmux session %q (PID %d)", tmuxSession, os.Getpid())
	return daemon.Run(ctx)
}
