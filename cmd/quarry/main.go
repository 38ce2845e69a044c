package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/codequarry/quarry/internal/storage"
)

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "AI code quality pipeline with a durable proposal store",
	Long: `Quarry runs AI-backed quality analysis over a repository and remembers
every decision you make about its findings.

Each finding is fingerprinted; once you reject a proposal it stays
rejected and is silently suppressed on every future run, so repeated
runs only ever surface genuinely new issues.

Typical workflow:
  quarry init       # create the proposal store in this repository
  quarry run        # analyze and write reports/qa_report.md
  quarry triage     # interactively accept/reject surfaced proposals
  quarry run        # later runs surface only what's new`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Proposal store path (default: discovered .quarry/*.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// resolveDBPath applies the --db flag or falls back to discovery
func resolveDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	return storage.DiscoverDatabase()
}

// newLogger builds the process logger honoring --verbose
func newLogger() hclog.Logger {
	level := hclog.Warn
	if verbose {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:  "quarry",
		Level: level,
	})
}

// openStore resolves the database path and opens the proposal store.
// The caller owns the returned store and must Close it.
func openStore(cmd *cobra.Command) (storage.Store, error) {
	path, err := resolveDBPath()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(cmd.Context(), &storage.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to open proposal store: %w", err)
	}
	return store, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
