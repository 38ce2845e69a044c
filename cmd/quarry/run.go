package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codequarry/quarry/internal/ai"
	"github.com/codequarry/quarry/internal/config"
	"github.com/codequarry/quarry/internal/pipeline"
	"github.com/codequarry/quarry/internal/report"
	"github.com/codequarry/quarry/internal/scanner"
	"github.com/codequarry/quarry/internal/storage"
	"github.com/codequarry/quarry/internal/types"
)

var (
	runShowRejected bool
	runFormat       string
	runOutput       string
	runStages       []string
)

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Run the analysis pipeline over a repository",
	Long: `Run the ordered analysis stages over a repository and write a report.

Stages run in declared order (default: qa, refactor, summary). Each
stage's findings pass through the dedup filter before being surfaced:
anything you previously rejected is suppressed, anything already
pending is surfaced without creating a duplicate, and accepted
proposals that still show up are flagged as stale.

If no path is given, the current directory is analyzed.

Example:
  quarry run                        # analyze the current directory
  quarry run ~/other/repo
  quarry run --show-rejected        # audit suppressed findings too
  quarry run --format sarif -o out.sarif`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}

		cfg, err := config.Load(root)
		if err != nil {
			return err
		}
		if runFormat != "" {
			cfg.Format = runFormat
		}
		if runOutput != "" {
			cfg.ReportPath = runOutput
		}
		if len(runStages) > 0 {
			cfg.Stages = runStages
		}
		if runShowRejected {
			cfg.ShowRejected = true
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger := newLogger()

		// --db wins over config, which wins over discovery
		storePath := cfg.DBPath
		if dbPath != "" {
			storePath = dbPath
		}
		store, err := storage.NewStore(cmd.Context(), &storage.Config{Path: storePath})
		if err != nil {
			return fmt.Errorf("failed to open proposal store: %w", err)
		}
		defer store.Close()

		sc, err := scanner.New(root, cfg.IgnoreFile)
		if err != nil {
			return err
		}
		files, repo, err := sc.Scan()
		if err != nil {
			return fmt.Errorf("scanning repository: %w", err)
		}
		if len(files) == 0 {
			return fmt.Errorf("no source files found under %s", root)
		}

		client, err := ai.NewClient(&ai.ClientConfig{
			RequestsPerMinute:  cfg.RequestsPerMinute,
			MaxConcurrentCalls: cfg.MaxWorkers,
		})
		if err != nil {
			return err
		}

		stages, err := buildStages(cfg, client)
		if err != nil {
			return err
		}

		coordinator, err := pipeline.New(stages, store, pipeline.Options{
			ShowRejected: cfg.ShowRejected,
			Logger:       logger,
		})
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("%s Analyzing %d files in %s\n", cyan("▶"), len(files), repo.Root)

		result, runErr := coordinator.Run(cmd.Context(), files, repo)

		// Partial results are written even when a stage failed
		if result != nil && len(result.Stages) > 0 {
			if err := report.Write(result, report.Format(cfg.Format), cfg.ReportPath); err != nil {
				return err
			}
			printRunSummary(result, cfg.ReportPath)
		}
		if runErr != nil {
			return runErr
		}
		return nil
	},
}

// buildStages assembles the configured stage order
func buildStages(cfg *config.Config, client *ai.Client) ([]pipeline.Stage, error) {
	stages := make([]pipeline.Stage, 0, len(cfg.Stages))
	for _, name := range cfg.Stages {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "qa":
			stage, err := ai.NewQAStage(client, ai.QAConfig{
				Model:       cfg.Model,
				MaxWorkers:  cfg.MaxWorkers,
				MaxFindings: cfg.MaxFindings,
			})
			if err != nil {
				return nil, err
			}
			stages = append(stages, stage)
		case "refactor":
			stage, err := ai.NewRefactorStage(client, ai.RefactorConfig{
				Model:       cfg.Model,
				MaxFindings: cfg.MaxFindings,
			})
			if err != nil {
				return nil, err
			}
			stages = append(stages, stage)
		case "summary":
			stage, err := ai.NewSummaryStage(client, ai.SummaryConfig{
				Model: cfg.SummaryModel,
			})
			if err != nil {
				return nil, err
			}
			stages = append(stages, stage)
		default:
			return nil, fmt.Errorf("unknown stage: %q (valid: qa, refactor, summary)", name)
		}
	}
	return stages, nil
}

func printRunSummary(result *types.Report, reportPath string) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Println()
	for _, stage := range result.Stages {
		fmt.Printf("  %s %-10s %d surfaced, %d suppressed (%s)\n",
			green("✓"), stage.StageName, len(stage.Surfaced), stage.Suppressed,
			stage.Duration.Round(time.Millisecond))
	}
	if result.Failure != nil {
		fmt.Printf("  %s %-10s %s\n", red("✗"), result.Failure.StageName, result.Failure.Cause)
	}

	fmt.Println()
	fmt.Printf("%d new findings", len(result.NewFindings))
	if len(result.StaleAccepted) > 0 {
		fmt.Printf(", %s", yellow(fmt.Sprintf("%d stale accepted", len(result.StaleAccepted))))
	}
	fmt.Printf("\nReport written to %s\n", reportPath)
	if len(result.NewFindings) > 0 {
		fmt.Println("Run 'quarry triage' to review them.")
	}
}

func init() {
	runCmd.Flags().BoolVar(&runShowRejected, "show-rejected", false, "Surface findings whose proposals were rejected (audit mode)")
	runCmd.Flags().StringVar(&runFormat, "format", "", "Report format: markdown or sarif (default from config)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Report output path (default from config)")
	runCmd.Flags().StringSliceVar(&runStages, "stages", nil, "Comma-separated stage order (default from config)")
	rootCmd.AddCommand(runCmd)
}
