package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codequarry/quarry/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Initialize a proposal store in the current directory",
	Long: `Initialize a quarry proposal store by creating a .quarry/ directory
with a SQLite database.

If no name is provided, the database is named quarry.db.

Example:
  cd ~/myproject
  quarry init           # Creates .quarry/quarry.db
  quarry init myapp     # Creates .quarry/myapp.db`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}

		path, err := storage.InitProject(cwd, name)
		if err != nil {
			return err
		}

		// Open once so the schema exists before the first run
		store, err := storage.NewStore(cmd.Context(), &storage.Config{Path: path})
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer store.Close()

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Initialized proposal store at %s\n", green("✓"), path)
		fmt.Println("\nNext steps:")
		fmt.Println("  quarry run       # analyze this repository")
		fmt.Println("  quarry triage    # review what it finds")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
