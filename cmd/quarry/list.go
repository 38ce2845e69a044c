package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codequarry/quarry/internal/types"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List proposals by status",
	Long: `List proposals in the store, oldest first.

By default only pending proposals are shown. Use --status to inspect
accepted or rejected ones.

Example:
  quarry list
  quarry list --status rejected`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status := types.ProposalStatus(listStatus)
		if !status.IsValid() {
			return fmt.Errorf("invalid status: %q (valid: pending, accepted, rejected)", listStatus)
		}

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		proposals, err := store.ListByStatus(cmd.Context(), status)
		if err != nil {
			return err
		}

		if len(proposals) == 0 {
			fmt.Printf("No %s proposals.\n", status)
			return nil
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("%d %s proposal(s):\n\n", len(proposals), status)
		for _, p := range proposals {
			fmt.Printf("  %s  %s\n", cyan(p.Fingerprint.Short()), p.Summary)
			detail := fmt.Sprintf("%s · rule %s · first seen %s", p.SourcePath, p.Rule, p.FirstSeenAt.Format("2006-01-02"))
			if p.DecidedAt != nil {
				detail += fmt.Sprintf(" · decided %s", p.DecidedAt.Format("2006-01-02"))
			}
			fmt.Printf("      %s\n", gray(detail))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "pending", "Filter by status: pending, accepted, or rejected")
	rootCmd.AddCommand(listCmd)
}
