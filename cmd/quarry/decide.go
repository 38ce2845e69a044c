package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codequarry/quarry/internal/events"
	"github.com/codequarry/quarry/internal/storage"
	"github.com/codequarry/quarry/internal/types"
)

var acceptCmd = &cobra.Command{
	Use:   "accept <fingerprint>...",
	Short: "Accept proposals (mark them as issues you intend to fix)",
	Long: `Mark proposals as accepted. An accepted proposal is suppressed from
future reports, but if its finding keeps appearing after you accepted
it, runs flag it as stale: the fix was probably never applied.

Fingerprints may be abbreviated to any unique prefix (quarry list
prints the short form).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(cmd, args, types.StatusAccepted)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <fingerprint>...",
	Short: "Reject proposals (suppress them from all future runs)",
	Long: `Mark proposals as rejected. A rejected proposal is permanently
suppressed: future runs that produce the same finding stay silent
about it. Use --show-rejected on quarry run to audit what is being
suppressed, or quarry accept to change your mind.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decide(cmd, args, types.StatusRejected)
	},
}

func decide(cmd *cobra.Command, args []string, status types.ProposalStatus) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	green := color.New(color.FgGreen).SprintFunc()

	for _, arg := range args {
		fp, err := resolveFingerprint(ctx, store, arg)
		if err != nil {
			return err
		}

		proposal, err := store.Decide(ctx, fp, status, time.Now())
		if err != nil {
			return err
		}

		event := events.NewProposalEvent(events.EventTypeProposalDecided, "", fp,
			events.SeverityInfo, fmt.Sprintf("proposal %s %s via cli", fp.Short(), status))
		if err := store.RecordEvent(ctx, event); err != nil {
			return fmt.Errorf("recording decision event: %w", err)
		}

		fmt.Printf("%s %s %s: %s\n", green("✓"), status, fp.Short(), proposal.Summary)
	}
	return nil
}

// resolveFingerprint expands an abbreviated fingerprint to the full
// stored one. Exact matches win; otherwise the prefix must identify
// exactly one proposal.
func resolveFingerprint(ctx context.Context, store storage.Store, arg string) (types.Fingerprint, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == "" {
		return "", fmt.Errorf("empty fingerprint")
	}

	if proposal, err := store.Get(ctx, types.Fingerprint(arg)); err != nil {
		return "", err
	} else if proposal != nil {
		return proposal.Fingerprint, nil
	}

	var matches []types.Fingerprint
	for _, status := range []types.ProposalStatus{types.StatusPending, types.StatusAccepted, types.StatusRejected} {
		proposals, err := store.ListByStatus(ctx, status)
		if err != nil {
			return "", err
		}
		for _, p := range proposals {
			if strings.HasPrefix(string(p.Fingerprint), arg) {
				matches = append(matches, p.Fingerprint)
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no proposal matches fingerprint %q: %w", arg, types.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("fingerprint %q is ambiguous (%d matches), use more characters", arg, len(matches))
	}
}

func init() {
	rootCmd.AddCommand(acceptCmd)
	rootCmd.AddCommand(rejectCmd)
}
