package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var killCascade bool

var sendTextCmd = &cobra.Command{
	Use:     "send <name> <text>",
	GroupID: GroupControl,
	Short:   "Send literal text (with Enter) to an agent, waking it first",
	Args:    cobra.ExactArgs(2),
	RunE:    runSendText,
}

var sendKeyCmd = &cobra.Command{
	Use:     "send-key <name> <key>",
	GroupID: GroupControl,
	Short:   "Send a single named key (Enter, Escape, an arrow, a digit) to an agent",
	Args:    cobra.ExactArgs(2),
	RunE:    runSendKey,
}

var killCmd = &cobra.Command{
	Use:     "kill <name>",
	GroupID: GroupControl,
	Short:   "Terminate an agent's window",
	Args:    cobra.ExactArgs(1),
	RunE:    runKill,
}

var restartCmd = &cobra.Command{
	Use:     "restart <name>",
	GroupID: GroupControl,
	Short:   "Restart an agent in a fresh window",
	Args:    cobra.ExactArgs(1),
	RunE:    runRestart,
}

var sleepCmd = &cobra.Command{
	Use:     "sleep <name>",
	GroupID: GroupControl,
	Short:   "Mark an agent asleep (exempt from heartbeats)",
	Args:    cobra.ExactArgs(1),
	RunE:    runSetSleep(true),
}

var wakeCmd = &cobra.Command{
	Use:     "wake <name>",
	GroupID: GroupControl,
	Short:   "Wake a sleeping agent",
	Args:    cobra.ExactArgs(1),
	RunE:    runSetSleep(false),
}

var budgetCmd = &cobra.Command{
	Use:     "budget <name> <usd>",
	GroupID: GroupControl,
	Short:   "Set an agent's cost budget in USD",
	Args:    cobra.ExactArgs(2),
	RunE:    runBudget,
}

var valueCmd = &cobra.Command{
	Use:     "value <name> <n>",
	GroupID: GroupControl,
	Short:   "Set an agent's priority value",
	Args:    cobra.ExactArgs(2),
	RunE:    runValue,
}

var annotateCmd = &cobra.Command{
	Use:     "annotate <name> <text>",
	GroupID: GroupControl,
	Short:   "Attach a free-text human annotation to an agent",
	Args:    cobra.ExactArgs(2),
	RunE:    runAnnotate,
}

var standingOrdersCmd = &cobra.Command{
	Use:     "standing-orders <name> <instructions>",
	GroupID: GroupControl,
	Short:   "Set an agent's standing orders",
	Args:    cobra.ExactArgs(2),
	RunE:    runStandingOrders,
}

var clearStandingOrdersCmd = &cobra.Command{
	Use:     "clear-standing-orders <name>",
	GroupID: GroupControl,
	Short:   "Clear an agent's standing orders",
	Args:    cobra.ExactArgs(1),
	RunE:    runClearStandingOrders,
}

var cleanupCmd = &cobra.Command{
	Use:     "cleanup",
	GroupID: GroupControl,
	Short:   "Archive every done or terminated session now",
	Args:    cobra.NoArgs,
	RunE:    runCleanup,
}

var heartbeatCmd = &cobra.Command{
	Use:     "heartbeat",
	GroupID: GroupControl,
	Short:   "Configure, pause, or resume an agent's heartbeat",
	RunE:    requireSubcommand,
}

var heartbeatConfigureCmd = &cobra.Command{
	Use:   "configure <name> <frequency> <instruction>",
	Short: "Set heartbeat frequency (Ns|Nm|Nh|N) and nudge instruction",
	Args:  cobra.ExactArgs(3),
	RunE:  runHeartbeatConfigure,
}

var heartbeatPauseCmd = &cobra.Command{
	Use:   "pause <name>",
	Short: "Pause an agent's heartbeat",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeartbeatPause,
}

var heartbeatResumeCmd = &cobra.Command{
	Use:   "resume <name>",
	Short: "Resume an agent's heartbeat",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeartbeatResume,
}

var toggleTimeContextCmd = &cobra.Command{
	Use:     "toggle-time-context <name>",
	GroupID: GroupControl,
	Short:   "Toggle an agent's time_context_enabled flag",
	Args:    cobra.ExactArgs(1),
	RunE:    runToggleTimeContext,
}

var toggleHookDetectionCmd = &cobra.Command{
	Use:     "toggle-hook-detection <name>",
	GroupID: GroupControl,
	Short:   "Toggle between hook-based and polling-based status detection",
	Args:    cobra.ExactArgs(1),
	RunE:    runToggleHookDetection,
}

var transportCmd = &cobra.Command{
	Use:     "transport <tmux-session> <name...>",
	GroupID: GroupControl,
	Short:   "Move one or more agents into another tmux session",
	Args:    cobra.MinimumNArgs(2),
	RunE:    runTransport,
}

func init() {
	killCmd.Flags().BoolVar(&killCascade, "cascade", false, "tear down descendants deepest-first instead of orphaning them")
	heartbeatCmd.AddCommand(heartbeatConfigureCmd, heartbeatPauseCmd, heartbeatResumeCmd)
	rootCmd.AddCommand(sendTextCmd, sendKeyCmd, killCmd, restartCmd, sleepCmd, wakeCmd, budgetCmd, valueCmd, annotateCmd,
		standingOrdersCmd, clearStandingOrdersCmd, cleanupCmd, heartbeatCmd,
		toggleTimeContextCmd, toggleHookDetectionCmd, transportCmd)
}

func runToggleTimeContext(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().ToggleTimeContext(sess.ID); err != nil {
		return err
	}
	fmt.Printf("toggled %q's time-context heartbeats\n", sess.Name)
	return nil
}

func runToggleHookDetection(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().ToggleHookDetection(sess.ID); err != nil {
		return err
	}
	fmt.Printf("toggled %q's hook detection\n", sess.Name)
	return nil
}

func runTransport(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	targetTmuxSession := args[0]
	ids := make([]string, 0, len(args)-1)
	for _, name := range args[1:] {
		sess, err := e.resolveByName(name)
		if err != nil {
			return err
		}
		ids = append(ids, sess.ID)
	}
	if err := e.surface().BulkTransport(ids, targetTmuxSession); err != nil {
		return err
	}
	fmt.Printf("transported %d agent(s) to %q\n", len(ids), targetTmuxSession)
	return nil
}

func runSendText(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().SendText(cmd.Context(), sess.ID, args[1]); err != nil {
		return err
	}
	fmt.Printf("sent text to %q\n", sess.Name)
	return nil
}

func runSendKey(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().SendKey(cmd.Context(), sess.ID, args[1]); err != nil {
		return err
	}
	fmt.Printf("sent key %q to %q\n", args[1], sess.Name)
	return nil
}

func runKill(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().Kill(cmd.Context(), sess.ID, killCascade); err != nil {
		return err
	}
	fmt.Printf("killed %q\n", sess.Name)
	return nil
}

func runRestart(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().Restart(cmd.Context(), sess.ID); err != nil {
		return err
	}
	fmt.Printf("restarted %q\n", sess.Name)
	return nil
}

func runSetSleep(asleep bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		sess, err := e.resolveByName(args[0])
		if err != nil {
			return err
		}
		if err := e.surface().SetSleep(sess.ID, asleep); err != nil {
			return err
		}
		if asleep {
			fmt.Printf("%q is now asleep\n", sess.Name)
		} else {
			fmt.Printf("%q is now awake\n", sess.Name)
		}
		return nil
	}
}

func runBudget(cmd *cobra.Command, args []string) error {
	usd, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid budget %q: %w", args[1], err)
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().SetBudget(sess.ID, usd); err != nil {
		return err
	}
	fmt.Printf("set %q's budget to $%.2f\n", sess.Name, usd)
	return nil
}

func runValue(cmd *cobra.Command, args []string) error {
	value, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().SetValue(sess.ID, value); err != nil {
		return err
	}
	fmt.Printf("set %q's value to %d\n", sess.Name, value)
	return nil
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().SetAnnotation(sess.ID, args[1]); err != nil {
		return err
	}
	fmt.Printf("annotated %q\n", sess.Name)
	return nil
}

func runStandingOrders(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().SetStandingOrders(sess.ID, args[1], nil); err != nil {
		return err
	}
	fmt.Printf("set %q's standing orders\n", sess.Name)
	return nil
}

func runClearStandingOrders(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().ClearStandingOrders(sess.ID); err != nil {
		return err
	}
	fmt.Printf("cleared %q's standing orders\n", sess.Name)
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	n, err := e.surface().Cleanup()
	if err != nil {
		return err
	}
	fmt.Printf("archived %d session(s)\n", n)
	return nil
}

func runHeartbeatConfigure(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().ConfigureHeartbeat(sess.ID, args[1], args[2]); err != nil {
		return err
	}
	fmt.Printf("configured %q's heartbeat (every %s)\n", sess.Name, args[1])
	return nil
}

func runHeartbeatPause(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().PauseHeartbeat(sess.ID); err != nil {
		return err
	}
	fmt.Printf("paused %q's heartbeat\n", sess.Name)
	return nil
}

func runHeartbeatResume(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return err
	}
	if err := e.surface().ResumeHeartbeat(sess.ID); err != nil {
		return err
	}
	fmt.Printf("resumed %q's heartbeat\n", sess.Name)
	return nil
}
