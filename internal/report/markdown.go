// Package report renders pipeline run reports to the formats the CLI
// can emit: a markdown report for humans and SARIF for code-scanning
// integrations.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/codequarry/quarry/internal/types"
)

// Format names a report output format
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatSARIF    Format = "sarif"
)

// IsValid checks if the format is supported
func (f Format) IsValid() bool {
	return f == FormatMarkdown || f == FormatSARIF
}

// Write renders the report in the given format and writes it to path,
// creating parent directories as needed.
func Write(report *types.Report, format Format, path string) error {
	var content []byte
	var err error

	switch format {
	case FormatMarkdown:
		content = []byte(RenderMarkdown(report))
	case FormatSARIF:
		content, err = RenderSARIF(report)
		if err != nil {
			return fmt.Errorf("rendering SARIF: %w", err)
		}
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// RenderMarkdown produces the human-readable run report. New findings
// are grouped by file and ordered by severity within each file.
func RenderMarkdown(report *types.Report) string {
	var sb strings.Builder

	sb.WriteString("# Code Quality Report\n\n")
	fmt.Fprintf(&sb, "- **Run:** `%s`\n", report.RunID)
	fmt.Fprintf(&sb, "- **Started:** %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- **Duration:** %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	if report.Module != "" {
		fmt.Fprintf(&sb, "- **Module:** `%s`\n", report.Module)
	}
	sb.WriteString("\n")

	if report.Failure != nil {
		fmt.Fprintf(&sb, "> **Run failed** in stage `%s`: %s\n>\n> Results below are partial.\n\n",
			report.Failure.StageName, report.Failure.Cause)
	}

	if report.SummaryText != "" {
		sb.WriteString("## Summary\n\n")
		sb.WriteString(report.SummaryText)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Stages\n\n")
	sb.WriteString("| Stage | Surfaced | Suppressed | Duration |\n")
	sb.WriteString("|-------|----------|------------|----------|\n")
	for _, stage := range report.Stages {
		fmt.Fprintf(&sb, "| %s | %d | %d | %s |\n",
			stage.StageName, len(stage.Surfaced), stage.Suppressed, stage.Duration.Round(time.Millisecond))
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "## New Findings (%d)\n\n", len(report.NewFindings))
	if len(report.NewFindings) == 0 {
		sb.WriteString("No new findings. Everything surfaced this run was already known.\n\n")
	} else {
		writeFindingsByFile(&sb, report.NewFindings)
	}

	if len(report.StaleAccepted) > 0 {
		fmt.Fprintf(&sb, "## Stale Accepted (%d)\n\n", len(report.StaleAccepted))
		sb.WriteString("These findings were accepted earlier but are still being reported,\n")
		sb.WriteString("which suggests the accepted fix was never applied.\n\n")
		for _, w := range report.StaleAccepted {
			f := w.Finding
			fmt.Fprintf(&sb, "- `%s` [%s] %s", f.SourcePath, f.Rule, f.Message)
			if w.DecidedAt != nil {
				fmt.Fprintf(&sb, " (accepted %s)", w.DecidedAt.Format("2006-01-02"))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n\n")
	sb.WriteString("Review findings with `quarry list`, then `quarry accept <fingerprint>` or `quarry reject <fingerprint>`.\n")
	return sb.String()
}

func writeFindingsByFile(sb *strings.Builder, findings []types.SurfacedFinding) {
	byFile := make(map[string][]types.SurfacedFinding)
	for _, sf := range findings {
		byFile[sf.Finding.SourcePath] = append(byFile[sf.Finding.SourcePath], sf)
	}

	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		group := byFile[path]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Finding.Severity.Rank() > group[j].Finding.Severity.Rank()
		})

		fmt.Fprintf(sb, "### %s\n\n", path)
		for _, sf := range group {
			f := sf.Finding
			loc := ""
			if f.Line != nil {
				loc = fmt.Sprintf(" (line %d)", *f.Line)
			}
			fmt.Fprintf(sb, "- **%s** `%s`%s: %s", f.Severity, f.Rule, loc, f.Message)
			if sf.Proposal != nil {
				fmt.Fprintf(sb, "\n  - fingerprint: `%s`", sf.Proposal.Fingerprint.Short())
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
}
