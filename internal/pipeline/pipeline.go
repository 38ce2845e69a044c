// Package pipeline runs the ordered analysis stages and stitches their
// output through the dedup filter into a run report. The coordinator
// owns the run lifecycle; each stage only turns input into findings.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/codequarry/quarry/internal/dedup"
	"github.com/codequarry/quarry/internal/events"
	"github.com/codequarry/quarry/internal/scanner"
	"github.com/codequarry/quarry/internal/storage"
	"github.com/codequarry/quarry/internal/types"
)

// StageInput is what a stage consumes. The first stage sees only the
// scanned files; later stages additionally see the filtered, surfaced
// output of the stage before them. Downstream stages therefore reason
// only about issues the user hasn't already rejected.
type StageInput struct {
	Files    []scanner.SourceFile
	Repo     *scanner.RepoInfo
	Upstream []types.SurfacedFinding // surfaced output of the previous stage
}

// StageOutput is what a stage produces: findings to be deduplicated,
// and optionally a summary contribution for the report.
type StageOutput struct {
	Findings []types.Finding
	Summary  string
}

// Stage is one analysis or reporting step in the ordered pipeline
type Stage interface {
	// Name identifies the stage in reports and events
	Name() string

	// Run performs the stage's analysis. A returned error becomes a
	// StageError and aborts the remaining pipeline.
	Run(ctx context.Context, input StageInput) (*StageOutput, error)
}

// StageError wraps a stage failure with its position in the pipeline
type StageError struct {
	StageIndex int
	StageName  string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.StageIndex, e.StageName, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// State represents where the coordinator is in its run lifecycle
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Options configures a coordinator
type Options struct {
	// ShowRejected is passed through to the dedup filter
	ShowRejected bool

	// Logger receives structured run diagnostics
	Logger hclog.Logger
}

// Coordinator runs stages in declared order against one repository
type Coordinator struct {
	stages []Stage
	store  storage.Store
	opts   Options
	logger hclog.Logger
	state  State
}

// New creates a coordinator over the given stages and store
func New(stages []Stage, store storage.Store, opts Options) (*Coordinator, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = hclog.Default().Named("pipeline")
	}

	return &Coordinator{
		stages: stages,
		store:  store,
		opts:   opts,
		logger: logger,
		state:  StateIdle,
	}, nil
}

// State returns the coordinator's current lifecycle state
func (c *Coordinator) State() State { return c.state }

// Run executes the pipeline. Stages run strictly in declared order;
// each stage's raw findings pass through the dedup filter before being
// surfaced, and the surfaced set feeds the next stage.
//
// Failure semantics: a stage failure aborts the remaining pipeline but
// the report keeps every completed stage's results. Store mutations are
// committed per-finding as they are observed, so an abort never
// corrupts the proposal store. The run may also be cancelled between
// stages via ctx; mutations already committed stand (losing a
// rejection is worse than re-showing an issue once).
func (c *Coordinator) Run(ctx context.Context, files []scanner.SourceFile, repo *scanner.RepoInfo) (*types.Report, error) {
	runID := uuid.New().String()
	report := &types.Report{
		RunID:     runID,
		StartedAt: time.Now(),
	}
	if repo != nil {
		report.RepoRoot = repo.Root
		report.Module = repo.Module
	}

	filter := dedup.New(c.store, dedup.Options{
		ShowRejected: c.opts.ShowRejected,
		RunID:        runID,
		Logger:       c.logger.Named("dedup"),
	})

	c.logEvent(ctx, events.New(events.EventTypeRunStarted, runID, events.SeverityInfo,
		fmt.Sprintf("pipeline started with %d stages over %d files", len(c.stages), len(files))))

	var upstream []types.SurfacedFinding
	var summaries []string

	for i, stage := range c.stages {
		// Cancellation is only honored between stages; a stage that
		// already committed sightings keeps them.
		if err := ctx.Err(); err != nil {
			return c.fail(ctx, report, i, stage.Name(), err)
		}

		c.state = StateRunning
		c.logger.Info("running stage", "index", i, "stage", stage.Name())
		c.logEvent(ctx, events.New(events.EventTypeStageStarted, runID, events.SeverityInfo,
			fmt.Sprintf("stage %d (%s) started", i, stage.Name())))

		stageStart := time.Now()
		output, err := stage.Run(ctx, StageInput{
			Files:    files,
			Repo:     repo,
			Upstream: upstream,
		})
		if err != nil {
			return c.fail(ctx, report, i, stage.Name(), err)
		}

		filtered, err := filter.Filter(ctx, output.Findings)
		if err != nil {
			// Store errors are fatal to the run: an unconfirmed durable
			// write must abort rather than proceed.
			return c.fail(ctx, report, i, stage.Name(), err)
		}

		result := types.StageResult{
			StageName:  stage.Name(),
			Surfaced:   filtered.Surfaced,
			Suppressed: filtered.SuppressedRejected + len(filtered.StaleAccepted),
			Summary:    output.Summary,
			Duration:   time.Since(stageStart),
		}
		report.Stages = append(report.Stages, result)
		report.NewFindings = append(report.NewFindings, filtered.Surfaced...)
		report.StaleAccepted = append(report.StaleAccepted, filtered.StaleAccepted...)
		if output.Summary != "" {
			summaries = append(summaries, output.Summary)
		}

		c.logEvent(ctx, events.New(events.EventTypeStageCompleted, runID, events.SeverityInfo,
			fmt.Sprintf("stage %d (%s) completed", i, stage.Name())).
			WithData(map[string]interface{}{
				"surfaced":      len(filtered.Surfaced),
				"suppressed":    filtered.SuppressedRejected,
				"stale":         len(filtered.StaleAccepted),
				"new_proposals": filtered.NewProposals,
			}))

		upstream = filtered.Surfaced
	}

	c.state = StateAggregating
	for i, s := range summaries {
		if i > 0 {
			report.SummaryText += "\n\n"
		}
		report.SummaryText += s
	}
	report.FinishedAt = time.Now()

	c.logEvent(ctx, events.New(events.EventTypeRunCompleted, runID, events.SeverityInfo,
		fmt.Sprintf("pipeline completed: %d new findings, %d stale-accepted warnings",
			len(report.NewFindings), len(report.StaleAccepted))))

	c.state = StateDone
	return report, nil
}

// fail finalizes the report with a typed failure. Partial results from
// completed stages are preserved, never silently discarded.
func (c *Coordinator) fail(ctx context.Context, report *types.Report, stageIndex int, stageName string, cause error) (*types.Report, error) {
	c.state = StateFailed

	stageErr := &StageError{StageIndex: stageIndex, StageName: stageName, Err: cause}
	report.Failure = &types.RunFailure{
		StageIndex: stageIndex,
		StageName:  stageName,
		Cause:      cause.Error(),
	}
	report.FinishedAt = time.Now()

	c.logger.Error("pipeline aborted", "stage", stageName, "index", stageIndex, "error", cause)
	c.logEvent(ctx, events.New(events.EventTypeRunFailed, report.RunID, events.SeverityError,
		stageErr.Error()))

	return report, stageErr
}

// logEvent records an audit event; the trail is best-effort and never
// aborts the run on its own. Uses a background context so failure
// events still land after cancellation.
func (c *Coordinator) logEvent(ctx context.Context, event *events.RunEvent) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := c.store.RecordEvent(ctx, event); err != nil {
		c.logger.Warn("failed to record audit event", "type", event.Type, "error", err)
	}
}
