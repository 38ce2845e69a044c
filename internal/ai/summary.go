package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/codequarry/quarry/internal/pipeline"
	"github.com/codequarry/quarry/internal/types"
)

// SummaryConfig controls the report-summary stage
type SummaryConfig struct {
	// Model is the Anthropic model used for summarization. A smaller,
	// cheaper model is fine here.
	Model string
}

// SummaryStage condenses everything surfaced upstream into a short
// prose summary for the top of the report. It produces no findings of
// its own.
type SummaryStage struct {
	completer Completer
	cfg       SummaryConfig
}

// NewSummaryStage creates the report-summary stage
func NewSummaryStage(completer Completer, cfg SummaryConfig) (*SummaryStage, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &SummaryStage{completer: completer, cfg: cfg}, nil
}

// Name identifies the stage in reports and events
func (s *SummaryStage) Name() string { return "summary" }

// Run summarizes the upstream findings. With nothing surfaced it
// returns a fixed line instead of spending a model call.
func (s *SummaryStage) Run(ctx context.Context, input pipeline.StageInput) (*pipeline.StageOutput, error) {
	if len(input.Upstream) == 0 {
		return &pipeline.StageOutput{Summary: "No new issues were surfaced in this run."}, nil
	}

	prompt := buildSummaryPrompt(input.Upstream)
	response, err := s.completer.Complete(ctx, s.cfg.Model, prompt, 1024)
	if err != nil {
		return nil, fmt.Errorf("requesting summary: %w", err)
	}

	return &pipeline.StageOutput{Summary: strings.TrimSpace(response)}, nil
}

func buildSummaryPrompt(upstream []types.SurfacedFinding) string {
	var sb strings.Builder
	sb.WriteString("Summarize this code review in 2-4 sentences for the top of a\n")
	sb.WriteString("report. Lead with the most severe themes. Plain prose only, no\n")
	sb.WriteString("markdown, no preamble.\n\nFindings:\n")
	for _, sf := range upstream {
		f := sf.Finding
		fmt.Fprintf(&sb, "- %s [%s/%s] %s\n", f.SourcePath, f.Severity, f.Rule, f.Message)
	}
	return sb.String()
}
