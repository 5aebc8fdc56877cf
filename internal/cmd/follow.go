package cmd

import (
	"github.com/spf13/cobra"
)

var followCmd = &cobra.Command{
	Use:     "follow <name>",
	GroupID: GroupAgents,
	Short:   "Stream an agent's pane until it stops",
	Args:    cobra.ExactArgs(1),
	RunE:    runFollow,
}

func init() {
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	sess, err := e.resolveByName(args[0])
	if err != nil {
		return &exitError{code: 1, msg: err.Error()}
	}
	return runFollowSession(cmd.Context(), e, sess)
}
