package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkb23/overcode/internal/follow"
	"github.com/mkb23/overcode/internal/launch"
	"github.com/mkb23/overcode/internal/monitor"
	"github.com/mkb23/overcode/internal/store"
)

var (
	launchTmuxSession string
	launchWorkDir     string
	launchParent      string
	launchPrompt      string
	launchPermissive  string
	launchFollowAfter bool
)

var launchCmd = &cobra.Command{
	Use:     "launch <name>",
	GroupID: GroupAgents,
	Short:   "Launch a new agent window",
	Args:    cobra.ExactArgs(1),
	RunE:    runLaunch,
}

func init() {
	launchCmd.Flags().StringVar(&launchTmuxSession, "tmux-session", "overcode", "tmux session to launch into")
	launchCmd.Flags().StringVar(&launchWorkDir, "dir", ".", "working directory for the new agent")
	launchCmd.Flags().StringVar(&launchParent, "parent", "", "explicit parent session name")
	launchCmd.Flags().StringVar(&launchPrompt, "prompt", "", "initial prompt to send once the agent is ready")
	launchCmd.Flags().StringVar(&launchPermissive, "permissiveness", string(store.PermissivenessNormal), "normal|permissive|bypass")
	launchCmd.Flags().BoolVar(&launchFollowAfter, "follow", false, "stream the new agent's output until it stops")
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	if err := launch.ValidateName(args[0]); err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	sess, err := e.surface().LaunchNew(ctx, launch.Options{
		Name:                 args[0],
		TmuxSession:          launchTmuxSession,
		WorkDir:              launchWorkDir,
		ParentName:           launchParent,
		Command:              []string{"claude"},
		PermissivenessMode:   store.PermissivenessMode(launchPermissive),
		StandingInstructions: e.Config.Defaults.HeartbeatInstruction,
		InitialPrompt:        launchPrompt,
	})
	if err != nil {
		return fmt.Errorf("launching %q: %w", args[0], err)
	}
	fmt.Printf("launched %q (id %s, window %d)\n", sess.Name, sess.ID, sess.TmuxWindow)

	if !launchFollowAfter {
		return nil
	}
	return runFollowSession(ctx, e, sess)
}

// runFollowSession is shared by `overcode launch --follow` and
// `overcode follow`: stream a session's pane until it stops, terminates,
// or the caller cancels, exiting with spec.md §6.4's exit codes.
func runFollowSession(ctx context.Context, e *env, sess store.Session) error {
	stateDir := sessionStateDir(e.Home, sess.TmuxSession)
	checker := follow.NewHookStopChecker(e.FS, stateDir, sess.Name, e.Panes, sess.TmuxSession, sess.TmuxWindow)
	outcome := follow.Follow(ctx, e.Panes, checker, sess.TmuxSession, sess.TmuxWindow, cmdStdout())

	// spec.md §4.N: on a Stop event, a child with a filed report is marked
	// done immediately rather than waiting for the Monitor Loop's next
	// tick. Either way Follow still exits 0 for OutcomeStopped.
	if outcome == follow.OutcomeStopped && sess.ParentSessionID != nil {
		_, _, _ = monitor.IngestReport(e.FS, e.Store, stateDir, sess, time.Now())
	}

	return &exitError{code: outcome.ExitCode()}
}

// exitError carries a process exit code through cobra's single error
// return, read back by exitCodeFor in Execute.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return ""
}

func (e *exitError) ExitCode() int { return e.code }
