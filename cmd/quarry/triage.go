package main

import (
	"github.com/spf13/cobra"

	"github.com/codequarry/quarry/internal/triage"
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Interactively review pending proposals",
	Long: `Step through pending proposals one at a time and accept, reject, or
skip each. Decisions are written durably as you make them, so a
session can be abandoned at any point without losing work.

Within the session:
  accept (a)   Accept the current proposal
  reject (r)   Suppress it from all future runs
  skip (s)     Leave it pending and move on`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		session, err := triage.New(&triage.Config{Store: store})
		if err != nil {
			return err
		}
		return session.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(triageCmd)
}
