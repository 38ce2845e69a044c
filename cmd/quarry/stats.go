package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show proposal store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.GetStatistics(cmd.Context())
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("%s\n", cyan("Proposal Store"))
		fmt.Printf("  Total proposals: %d\n", stats.TotalProposals)
		fmt.Printf("  Pending:         %s\n", yellow(fmt.Sprintf("%d", stats.Pending)))
		fmt.Printf("  Accepted:        %s\n", green(fmt.Sprintf("%d", stats.Accepted)))
		fmt.Printf("  Rejected:        %s\n", red(fmt.Sprintf("%d", stats.Rejected)))
		fmt.Printf("  Run events:      %d\n", stats.RunEvents)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
