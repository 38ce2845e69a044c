package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codequarry/quarry/internal/events"
)

var (
	eventsRunID string
	eventsType  string
	eventsFP    string
	eventsLimit int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the audit trail of runs and decisions",
	Long: `Show recorded run events, newest first.

Every run, stage, proposal creation, suppression, and decision leaves
an event, so the store explains why a finding did or did not appear
in a report.

Example:
  quarry events --limit 20
  quarry events --type finding_suppressed
  quarry events --fingerprint ab12cd`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		filter := events.EventFilter{
			RunID: eventsRunID,
			Type:  events.EventType(eventsType),
			Limit: eventsLimit,
		}
		if eventsFP != "" {
			fp, err := resolveFingerprint(cmd.Context(), store, eventsFP)
			if err != nil {
				return err
			}
			filter.Fingerprint = fp
		}

		list, err := store.GetEvents(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		for _, ev := range list {
			ts := ev.Timestamp.Format("2006-01-02 15:04:05")
			line := fmt.Sprintf("%s  %-20s %s", ts, ev.Type, ev.Message)
			switch ev.Severity {
			case events.SeverityWarning:
				fmt.Println(yellow(line))
			case events.SeverityError:
				fmt.Println(red(line))
			default:
				fmt.Println(line)
			}
			if ev.Fingerprint != "" {
				fmt.Printf("    %s\n", gray("fingerprint "+ev.Fingerprint.Short()))
			}
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsRunID, "run", "", "Filter by run ID")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "Filter by event type")
	eventsCmd.Flags().StringVar(&eventsFP, "fingerprint", "", "Filter by proposal fingerprint")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum events to show")
	rootCmd.AddCommand(eventsCmd)
}
