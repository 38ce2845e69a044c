package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequarry/quarry/internal/events"
	"github.com/codequarry/quarry/internal/fingerprint"
	"github.com/codequarry/quarry/internal/scanner"
	"github.com/codequarry/quarry/internal/storage"
	"github.com/codequarry/quarry/internal/types"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewStore(context.Background(), &storage.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// fakeStage is a scripted stage for coordinator tests
type fakeStage struct {
	name     string
	findings []types.Finding
	summary  string
	err      error

	// captured input for assertions
	gotInput *StageInput

	// optional hook run before returning
	onRun func(ctx context.Context)
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Run(ctx context.Context, input StageInput) (*StageOutput, error) {
	in := input
	s.gotInput = &in
	if s.onRun != nil {
		s.onRun(ctx)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &StageOutput{Findings: s.findings, Summary: s.summary}, nil
}

func finding(path, rule, message string) types.Finding {
	return types.Finding{
		SourcePath: path,
		Rule:       rule,
		Message:    message,
		Severity:   types.SeverityWarning,
	}
}

func quietOpts() Options {
	return Options{Logger: hclog.NewNullLogger()}
}

func TestRunFeedsSurfacedOutputDownstream(t *testing.T) {
	store := newTestStore(t)

	qa := &fakeStage{
		name: "qa",
		findings: []types.Finding{
			finding("a.php", "missing-isset", "array key 'foo'"),
			finding("b.php", "unused-variable", "variable $bar never used"),
		},
	}
	refactor := &fakeStage{name: "refactor"}

	c, err := New([]Stage{qa, refactor}, store, quietOpts())
	require.NoError(t, err)

	report, err := c.Run(context.Background(), nil, &scanner.RepoInfo{Root: "/repo"})
	require.NoError(t, err)

	assert.Equal(t, StateDone, c.State())
	assert.Len(t, report.NewFindings, 2)
	assert.Nil(t, report.Failure)
	require.Len(t, report.Stages, 2)

	// Second stage consumed the first stage's surfaced output
	require.NotNil(t, refactor.gotInput)
	require.Len(t, refactor.gotInput.Upstream, 2)
	assert.Equal(t, "missing-isset", refactor.gotInput.Upstream[0].Finding.Rule)
}

func TestRunDownstreamDoesNotSeeRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rejected := finding("a.php", "missing-isset", "array key 'foo'")
	kept := finding("b.php", "unused-variable", "variable $bar never used")

	// Seed and reject one of the findings ahead of the run
	_, err := store.UpsertSeen(ctx, fingerprint.Fingerprint(rejected), rejected,
		fingerprint.NormalizeMessage(rejected.Message), time.Now())
	require.NoError(t, err)
	_, err = store.Decide(ctx, fingerprint.Fingerprint(rejected), types.StatusRejected, time.Now())
	require.NoError(t, err)

	qa := &fakeStage{name: "qa", findings: []types.Finding{rejected, kept}}
	refactor := &fakeStage{name: "refactor"}

	c, err := New([]Stage{qa, refactor}, store, quietOpts())
	require.NoError(t, err)

	report, err := c.Run(ctx, nil, nil)
	require.NoError(t, err)

	require.Len(t, report.NewFindings, 1)
	assert.Equal(t, "unused-variable", report.NewFindings[0].Finding.Rule)

	// The refactor stage only reasons about what the user hasn't rejected
	require.Len(t, refactor.gotInput.Upstream, 1)
	assert.Equal(t, "unused-variable", refactor.gotInput.Upstream[0].Finding.Rule)
}

func TestRunStageFailurePreservesPartialResults(t *testing.T) {
	store := newTestStore(t)

	qa := &fakeStage{
		name:     "qa",
		findings: []types.Finding{finding("a.php", "missing-isset", "array key 'foo'")},
	}
	boom := errors.New("model endpoint unreachable")
	refactor := &fakeStage{name: "refactor", err: boom}
	summary := &fakeStage{name: "summary"}

	c, err := New([]Stage{qa, refactor, summary}, store, quietOpts())
	require.NoError(t, err)

	report, err := c.Run(context.Background(), nil, nil)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 1, stageErr.StageIndex)
	assert.Equal(t, "refactor", stageErr.StageName)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, StateFailed, c.State())
	require.NotNil(t, report.Failure)
	assert.Equal(t, 1, report.Failure.StageIndex)

	// Completed-stage output survives the abort
	require.Len(t, report.Stages, 1)
	assert.Equal(t, "qa", report.Stages[0].StageName)
	assert.Len(t, report.NewFindings, 1)

	// The stage after the failure never ran
	assert.Nil(t, summary.gotInput)
}

func TestRunCancelledBetweenStages(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	qa := &fakeStage{
		name:     "qa",
		findings: []types.Finding{finding("a.php", "missing-isset", "array key 'foo'")},
	}
	// A stage that triggers cancellation while producing nothing, so the
	// cancellation takes effect at the between-stages checkpoint
	canceller := &fakeStage{name: "canceller", onRun: func(context.Context) { cancel() }}
	refactor := &fakeStage{name: "refactor"}

	c, err := New([]Stage{qa, canceller, refactor}, store, quietOpts())
	require.NoError(t, err)

	report, err := c.Run(ctx, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, refactor.gotInput, "stage after cancellation must not run")

	// Sightings committed before cancellation stand: no rollback
	require.Len(t, report.Stages, 2)
	p, getErr := store.Get(context.Background(),
		fingerprint.Fingerprint(finding("a.php", "missing-isset", "array key 'foo'")))
	require.NoError(t, getErr)
	require.NotNil(t, p)
}

func TestRunAggregatesSummaries(t *testing.T) {
	store := newTestStore(t)

	qa := &fakeStage{name: "qa", summary: "2 issues found"}
	sum := &fakeStage{name: "summary", summary: "Overall quality is fair."}

	c, err := New([]Stage{qa, sum}, store, quietOpts())
	require.NoError(t, err)

	report, err := c.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "2 issues found\n\nOverall quality is fair.", report.SummaryText)
}

func TestRunRecordsAuditEvents(t *testing.T) {
	store := newTestStore(t)

	qa := &fakeStage{name: "qa", findings: []types.Finding{finding("a.php", "r", "m")}}
	c, err := New([]Stage{qa}, store, quietOpts())
	require.NoError(t, err)

	report, err := c.Run(context.Background(), nil, nil)
	require.NoError(t, err)

	got, err := store.GetEvents(context.Background(), events.EventFilter{RunID: report.RunID})
	require.NoError(t, err)

	byType := map[events.EventType]int{}
	for _, e := range got {
		byType[e.Type]++
	}
	assert.Equal(t, 1, byType[events.EventTypeRunStarted])
	assert.Equal(t, 1, byType[events.EventTypeStageStarted])
	assert.Equal(t, 1, byType[events.EventTypeStageCompleted])
	assert.Equal(t, 1, byType[events.EventTypeRunCompleted])
	assert.Equal(t, 1, byType[events.EventTypeProposalCreated])
}

func TestNewValidatesArguments(t *testing.T) {
	store := newTestStore(t)

	_, err := New(nil, store, quietOpts())
	assert.ErrorContains(t, err, "at least one stage")

	_, err = New([]Stage{&fakeStage{name: "qa"}}, nil, quietOpts())
	assert.ErrorContains(t, err, "store is required")
}

func TestStageErrorMessage(t *testing.T) {
	err := &StageError{StageIndex: 2, StageName: "summary", Err: fmt.Errorf("boom")}
	assert.Equal(t, "stage 2 (summary) failed: boom", err.Error())
}
