package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/codequarry/quarry/internal/pipeline"
	"github.com/codequarry/quarry/internal/types"
)

// RefactorConfig controls the refactor-proposal stage
type RefactorConfig struct {
	// Model is the Anthropic model used to propose refactorings
	Model string

	// MaxFindings caps proposals requested from the model
	MaxFindings int
}

// RefactorStage looks at the quality issues the previous stage
// surfaced and proposes structural refactorings that would address
// clusters of them. It sees only findings the user hasn't rejected,
// so it never re-litigates dismissed ideas.
type RefactorStage struct {
	completer Completer
	cfg       RefactorConfig
}

// NewRefactorStage creates the refactor-proposal stage
func NewRefactorStage(completer Completer, cfg RefactorConfig) (*RefactorStage, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxFindings < 1 {
		cfg.MaxFindings = 10
	}
	return &RefactorStage{completer: completer, cfg: cfg}, nil
}

// Name identifies the stage in reports and events
func (s *RefactorStage) Name() string { return "refactor" }

// Run proposes refactorings grounded in the upstream findings. With no
// upstream findings there is nothing to refactor around, so the stage
// skips the model call entirely.
func (s *RefactorStage) Run(ctx context.Context, input pipeline.StageInput) (*pipeline.StageOutput, error) {
	if len(input.Upstream) == 0 {
		return &pipeline.StageOutput{}, nil
	}

	prompt := s.buildPrompt(input.Upstream)
	response, err := s.completer.Complete(ctx, s.cfg.Model, prompt, 4096)
	if err != nil {
		return nil, fmt.Errorf("requesting refactor proposals: %w", err)
	}

	raw, err := ParseJSON[[]rawFinding](response, "refactor proposals")
	if err != nil {
		return nil, err
	}

	findings := make([]types.Finding, 0, len(raw))
	for _, r := range raw {
		f := types.Finding{
			SourcePath: "repo",
			Rule:       r.Rule,
			Message:    r.Message,
			Severity:   types.Severity(r.Severity),
		}
		if r.Line > 0 {
			line := r.Line
			f.Line = &line
		}
		if !f.Severity.IsValid() {
			f.Severity = types.SeverityInfo
		}
		if err := f.Validate(); err != nil {
			continue
		}
		findings = append(findings, f)
	}
	return &pipeline.StageOutput{Findings: findings}, nil
}

func (s *RefactorStage) buildPrompt(upstream []types.SurfacedFinding) string {
	var sb strings.Builder
	sb.WriteString("You are a senior engineer planning refactorings.\n\n")
	sb.WriteString("A quality review of this repository surfaced the issues below.\n")
	sb.WriteString("Propose up to ")
	fmt.Fprintf(&sb, "%d", s.cfg.MaxFindings)
	sb.WriteString(" refactorings that would address clusters of these issues\n")
	sb.WriteString("structurally. Prefer proposals that eliminate whole classes of\n")
	sb.WriteString("issues over one-line fixes. If no refactoring is warranted,\n")
	sb.WriteString("return an empty array.\n\nIssues:\n")

	for _, sf := range upstream {
		f := sf.Finding
		if f.Line != nil {
			fmt.Fprintf(&sb, "- %s:%d [%s/%s] %s\n", f.SourcePath, *f.Line, f.Severity, f.Rule, f.Message)
		} else {
			fmt.Fprintf(&sb, "- %s [%s/%s] %s\n", f.SourcePath, f.Severity, f.Rule, f.Message)
		}
	}

	sb.WriteString(`
Respond with ONLY a JSON array, no other text:
[{"line": 0, "rule": "refactor-<short-kebab-case-name>", "message": "<one sentence describing the refactoring and the issues it addresses>", "severity": "info|warning|error|critical"}]`)
	return sb.String()
}
