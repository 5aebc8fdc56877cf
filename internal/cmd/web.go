package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mkb23/overcode/internal/web"
)

var webTmuxSession string

var webCmd = &cobra.Command{
	Use:     "web",
	GroupID: GroupServices,
	Short:   "Serve the read-only Web API (and gated control endpoints)",
	Args:    cobra.NoArgs,
	RunE:    runWeb,
}

func init() {
	webCmd.Flags().StringVar(&webTmuxSession, "tmux-session", "overcode", "tmux session whose monitor_state.json and history to serve")
	rootCmd.AddCommand(webCmd)
}

func runWeb(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	stateDir := sessionStateDir(e.Home, webTmuxSession)

	srv := &web.Server{
		Config:           e.Config.Web,
		Store:            e.Store,
		Surface:          e.surface(),
		FS:               e.FS,
		Clock:            e.Clock,
		MonitorStatePath: filepath.Join(stateDir, "monitor_state.json"),
		HistoryPath:      filepath.Join(stateDir, "agent_history.csv"),
		// RestartMonitorSignal/StartSupervisorSignal/StopSupervisorSignal
		// are left nil: there is no external process supervisor wired up
		// here (spec.md §1 places supervisor-daemon orchestration out of
		// scope), so these three control actions honestly report 400
		// rather than pretending to act.
	}

	fmt.Printf("serving web API on %s (tmux session %q)\n", e.Config.Web.Listen, webTmuxSession)
	return srv.Serve(cmd.Context())
}
