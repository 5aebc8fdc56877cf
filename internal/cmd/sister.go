package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkb23/overcode/internal/sister"
)

var sisterCmd = &cobra.Command{
	Use:     "sister",
	GroupID: GroupAgents,
	Short:   "Inspect configured sister (remote) Overcode instances",
	RunE:    requireSubcommand,
}

var sisterStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Poll every configured sister and report reachability",
	Args:  cobra.NoArgs,
	RunE:  runSisterStatus,
}

func init() {
	sisterCmd.AddCommand(sisterStatusCmd)
	rootCmd.AddCommand(sisterCmd)
}

func runSisterStatus(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	if len(e.Config.Sisters) == 0 {
		fmt.Println("no sisters configured")
		return nil
	}

	fetcher := sister.NewFetcher()
	for _, s := range e.Config.Sisters {
		result := fetcher.Fetch(cmd.Context(), sister.Config{Name: s.Name, URL: s.URL, APIKey: s.APIKey})
		if result.Reachable {
			fmt.Printf("%s (%s): reachable, %d agent(s)\n", result.Name, s.URL, len(result.Sessions))
		} else {
			fmt.Printf("%s (%s): unreachable — %s\n", result.Name, s.URL, result.LastError)
		}
	}
	return nil
}
