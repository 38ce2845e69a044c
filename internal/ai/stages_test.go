package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequarry/quarry/internal/pipeline"
	"github.com/codequarry/quarry/internal/scanner"
	"github.com/codequarry/quarry/internal/types"
)

// fakeCompleter returns a scripted response chosen by substring match
// against the prompt, and records every call.
type fakeCompleter struct {
	mu        sync.Mutex
	responses map[string]string // prompt substring -> response
	fallback  string
	err       error
	calls     []string
}

func (f *fakeCompleter) Complete(ctx context.Context, model, prompt string, maxTokens int64) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	for sub, resp := range f.responses {
		if strings.Contains(prompt, sub) {
			return resp, nil
		}
	}
	return f.fallback, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func intPtr(n int) *int { return &n }

func TestQAStageMergesFindingsInPathOrder(t *testing.T) {
	completer := &fakeCompleter{
		responses: map[string]string{
			"File: b.go": `[{"line": 5, "rule": "unchecked-error", "message": "err from Close is dropped", "severity": "warning"}]`,
			"File: a.go": `[{"line": 0, "rule": "dead-code", "message": "helper is never called", "severity": "info"}]`,
		},
	}
	stage, err := NewQAStage(completer, QAConfig{Model: "test-model", MaxWorkers: 2})
	require.NoError(t, err)
	assert.Equal(t, "qa", stage.Name())

	out, err := stage.Run(context.Background(), pipeline.StageInput{
		Files: []scanner.SourceFile{
			{Path: "b.go", Content: "package b"},
			{Path: "a.go", Content: "package a"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Findings, 2)

	// Merged output follows path order regardless of completion order
	assert.Equal(t, "a.go", out.Findings[0].SourcePath)
	assert.Nil(t, out.Findings[0].Line)
	assert.Equal(t, "b.go", out.Findings[1].SourcePath)
	require.NotNil(t, out.Findings[1].Line)
	assert.Equal(t, 5, *out.Findings[1].Line)
}

func TestQAStageDropsMalformedEntries(t *testing.T) {
	completer := &fakeCompleter{
		fallback: `[{"line": 1, "rule": "", "message": "missing rule", "severity": "warning"},
		            {"line": 2, "rule": "ok-rule", "message": "valid entry", "severity": "nonsense"}]`,
	}
	stage, err := NewQAStage(completer, QAConfig{Model: "test-model"})
	require.NoError(t, err)

	out, err := stage.Run(context.Background(), pipeline.StageInput{
		Files: []scanner.SourceFile{{Path: "a.go", Content: "package a"}},
	})
	require.NoError(t, err)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "ok-rule", out.Findings[0].Rule)
	// Unknown severities degrade to warning instead of dropping the entry
	assert.Equal(t, types.SeverityWarning, out.Findings[0].Severity)
}

func TestQAStagePropagatesFileError(t *testing.T) {
	completer := &fakeCompleter{err: fmt.Errorf("api unavailable")}
	stage, err := NewQAStage(completer, QAConfig{Model: "test-model"})
	require.NoError(t, err)

	_, err = stage.Run(context.Background(), pipeline.StageInput{
		Files: []scanner.SourceFile{{Path: "a.go", Content: "package a"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.go")
	assert.Contains(t, err.Error(), "api unavailable")
}

func TestRefactorStageSkipsModelWithoutUpstream(t *testing.T) {
	completer := &fakeCompleter{fallback: "[]"}
	stage, err := NewRefactorStage(completer, RefactorConfig{Model: "test-model"})
	require.NoError(t, err)

	out, err := stage.Run(context.Background(), pipeline.StageInput{})
	require.NoError(t, err)
	assert.Empty(t, out.Findings)
	assert.Equal(t, 0, completer.callCount())
}

func TestRefactorStagePromptListsUpstreamFindings(t *testing.T) {
	completer := &fakeCompleter{
		fallback: `[{"line": 0, "rule": "refactor-extract-db-layer", "message": "consolidate duplicated query code", "severity": "info"}]`,
	}
	stage, err := NewRefactorStage(completer, RefactorConfig{Model: "test-model"})
	require.NoError(t, err)

	out, err := stage.Run(context.Background(), pipeline.StageInput{
		Upstream: []types.SurfacedFinding{
			{Finding: types.Finding{SourcePath: "db.go", Line: intPtr(42), Rule: "sql-dup", Message: "duplicated query assembly", Severity: types.SeverityWarning}},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "refactor-extract-db-layer", out.Findings[0].Rule)

	require.Equal(t, 1, completer.callCount())
	assert.Contains(t, completer.calls[0], "db.go:42")
	assert.Contains(t, completer.calls[0], "duplicated query assembly")
}

func TestSummaryStageSkipsModelWithoutUpstream(t *testing.T) {
	completer := &fakeCompleter{fallback: "should not be called"}
	stage, err := NewSummaryStage(completer, SummaryConfig{Model: "test-model"})
	require.NoError(t, err)

	out, err := stage.Run(context.Background(), pipeline.StageInput{})
	require.NoError(t, err)
	assert.Equal(t, "No new issues were surfaced in this run.", out.Summary)
	assert.Equal(t, 0, completer.callCount())
}

func TestSummaryStageReturnsTrimmedProse(t *testing.T) {
	completer := &fakeCompleter{fallback: "  The review surfaced two error-handling gaps.\n"}
	stage, err := NewSummaryStage(completer, SummaryConfig{Model: "test-model"})
	require.NoError(t, err)

	out, err := stage.Run(context.Background(), pipeline.StageInput{
		Upstream: []types.SurfacedFinding{
			{Finding: types.Finding{SourcePath: "a.go", Rule: "r", Message: "m", Severity: types.SeverityError}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "The review surfaced two error-handling gaps.", out.Summary)
	assert.Empty(t, out.Findings)
}
