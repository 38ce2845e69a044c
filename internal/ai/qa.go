package ai

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codequarry/quarry/internal/pipeline"
	"github.com/codequarry/quarry/internal/types"
)

// rawFinding is the shape we ask the model to emit for one issue.
// A zero line means the issue is file-level.
type rawFinding struct {
	Line     int    `json:"line"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// QAConfig controls the static-analysis stage
type QAConfig struct {
	// Model is the Anthropic model used for per-file analysis
	Model string

	// MaxWorkers caps files analyzed concurrently
	MaxWorkers int

	// MaxFindings caps issues requested per file
	MaxFindings int
}

// QAStage reviews every scanned file with the model and reports code
// quality issues as findings. Files are analyzed in parallel; results
// are merged in path order so runs are deterministic.
type QAStage struct {
	completer Completer
	cfg       QAConfig
}

// NewQAStage creates the quality-analysis stage
func NewQAStage(completer Completer, cfg QAConfig) (*QAStage, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 4
	}
	if cfg.MaxFindings < 1 {
		cfg.MaxFindings = 10
	}
	return &QAStage{completer: completer, cfg: cfg}, nil
}

// Name identifies the stage in reports and events
func (s *QAStage) Name() string { return "qa" }

// Run analyzes each input file and returns the merged findings
func (s *QAStage) Run(ctx context.Context, input pipeline.StageInput) (*pipeline.StageOutput, error) {
	var mu sync.Mutex
	byPath := make(map[string][]types.Finding)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxWorkers)

	for _, file := range input.Files {
		g.Go(func() error {
			findings, err := s.analyzeFile(gctx, file.Path, file.Content)
			if err != nil {
				return fmt.Errorf("analyzing %s: %w", file.Path, err)
			}
			mu.Lock()
			byPath[file.Path] = findings
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var findings []types.Finding
	for _, p := range paths {
		findings = append(findings, byPath[p]...)
	}
	return &pipeline.StageOutput{Findings: findings}, nil
}

func (s *QAStage) analyzeFile(ctx context.Context, path, content string) ([]types.Finding, error) {
	prompt := fmt.Sprintf(`You are a senior engineer doing a code quality review.

Review the file below and report up to %d concrete issues: bugs, error
handling gaps, race conditions, resource leaks, misleading names, and
dead code. Skip style nits a formatter would catch. If the file is
clean, return an empty array.

File: %s

%s

Respond with ONLY a JSON array, no other text:
[{"line": <line number or 0 for file-level>, "rule": "<short-kebab-case-category>", "message": "<one sentence describing the issue>", "severity": "info|warning|error|critical"}]`,
		s.cfg.MaxFindings, path, content)

	response, err := s.completer.Complete(ctx, s.cfg.Model, prompt, 4096)
	if err != nil {
		return nil, err
	}

	raw, err := ParseJSON[[]rawFinding](response, fmt.Sprintf("QA findings for %s", path))
	if err != nil {
		return nil, err
	}

	findings := make([]types.Finding, 0, len(raw))
	for _, r := range raw {
		f := types.Finding{
			SourcePath: path,
			Rule:       r.Rule,
			Message:    r.Message,
			Severity:   types.Severity(r.Severity),
		}
		if r.Line > 0 {
			line := r.Line
			f.Line = &line
		}
		if !f.Severity.IsValid() {
			f.Severity = types.SeverityWarning
		}
		if err := f.Validate(); err != nil {
			// Malformed entries from the model are dropped, not fatal
			continue
		}
		findings = append(findings, f)
	}
	return findings, nil
}
