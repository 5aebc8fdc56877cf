package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listArchived bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: GroupAgents,
	Short:   "List agents in the Session Store",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "list archived sessions instead")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	var rows [][5]string
	if listArchived {
		archived, err := e.Store.ListArchived()
		if err != nil {
			return fmt.Errorf("listing archived sessions: %w", err)
		}
		for _, s := range archived {
			rows = append(rows, [5]string{s.Name, string(s.Status), s.TmuxSession, fmt.Sprintf("%d", s.TmuxWindow), fmt.Sprintf("%v", s.IsAsleep)})
		}
	} else {
		active, err := e.Store.List()
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		for _, s := range active {
			rows = append(rows, [5]string{s.Name, string(s.Status), s.TmuxSession, fmt.Sprintf("%d", s.TmuxWindow), fmt.Sprintf("%v", s.IsAsleep)})
		}
	}

	if len(rows) == 0 {
		fmt.Println("no agents")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tTMUX SESSION\tWINDOW\tASLEEP")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r[0], r[1], r[2], r[3], r[4])
	}
	return w.Flush()
}
