package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var purgeForce bool

var purgeCmd = &cobra.Command{
	Use:   "purge <fingerprint>",
	Short: "Permanently delete a proposal record",
	Long: `Hard-delete a proposal from the store. The next run that produces the
same finding will surface it again as brand new.

This is the manual reset path for a decision made in error. Prefer
quarry accept/reject to flip a decision; purge erases the history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		fp, err := resolveFingerprint(ctx, store, args[0])
		if err != nil {
			return err
		}

		proposal, err := store.Get(ctx, fp)
		if err != nil {
			return err
		}
		if proposal == nil {
			return fmt.Errorf("no proposal matches fingerprint %q", args[0])
		}

		if !purgeForce {
			fmt.Printf("Delete proposal %s (%s)?\n", fp.Short(), proposal.Summary)
			fmt.Print("This cannot be undone. Type 'yes' to confirm: ")
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.TrimSpace(answer) != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := store.Purge(ctx, fp); err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Purged %s\n", green("✓"), fp.Short())
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVarP(&purgeForce, "force", "f", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(purgeCmd)
}
