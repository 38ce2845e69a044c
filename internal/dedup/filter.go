// Package dedup decides which findings from a fresh analysis batch are
// surfaced to the user and which are suppressed because a human already
// ruled on them in a previous run.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/codequarry/quarry/internal/events"
	"github.com/codequarry/quarry/internal/fingerprint"
	"github.com/codequarry/quarry/internal/storage"
	"github.com/codequarry/quarry/internal/types"
)

// Options configures filtering behavior
type Options struct {
	// ShowRejected resurfaces findings whose proposals were rejected.
	// This is the "resurrect a suppressed issue" workflow.
	ShowRejected bool

	// RunID tags audit-trail events recorded during filtering
	RunID string

	// Logger receives structured diagnostics. Defaults to hclog.Default().
	Logger hclog.Logger
}

// Result holds the outcome of filtering one batch of findings
type Result struct {
	// Surfaced are the findings the user should see this run, paired
	// with their proposals
	Surfaced []types.SurfacedFinding

	// StaleAccepted are accepted proposals whose fingerprints are still
	// being produced, suggesting the accepted fix was never applied
	StaleAccepted []types.StaleAcceptedWarning

	// NewProposals counts fingerprints seen for the first time
	NewProposals int

	// SuppressedRejected counts findings excluded because their
	// proposal was rejected
	SuppressedRejected int
}

// Filter consumes fresh findings and the proposal store and yields only
// the subset that must be re-surfaced this run.
type Filter struct {
	store  storage.Store
	opts   Options
	logger hclog.Logger
	now    func() time.Time
}

// New creates a dedup filter over the given store
func New(store storage.Store, opts Options) *Filter {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.Default().Named("dedup")
	}
	return &Filter{
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Filter processes one batch of findings. Every finding is committed to
// the store (per-finding, as observed) before the surfacing decision is
// made, so an abort mid-batch never loses sightings that already
// happened. Policy:
//
//   - pending (new or previously pending): surfaced
//   - rejected: suppressed, unless ShowRejected is set
//   - accepted: suppressed, but the re-sighting is recorded and
//     reported as a stale-accepted warning
//
// Store errors abort filtering immediately; a durable write that cannot
// be confirmed must not be papered over.
func (f *Filter) Filter(ctx context.Context, findings []types.Finding) (*Result, error) {
	result := &Result{}

	for i := range findings {
		finding := findings[i]
		if err := finding.Validate(); err != nil {
			return nil, fmt.Errorf("invalid finding (path=%s, rule=%s): %w", finding.SourcePath, finding.Rule, err)
		}

		fp := fingerprint.Fingerprint(finding)
		summary := fingerprint.NormalizeMessage(finding.Message)
		observedAt := f.now()

		proposal, err := f.store.UpsertSeen(ctx, fp, finding, summary, observedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to record sighting of %s: %w", fp.Short(), err)
		}

		// The stored summary is the normalized message at first
		// sighting. With the message hash folded into the fingerprint,
		// a mismatch here means two structurally distinct findings
		// collided. Diagnostic only, never fatal.
		if proposal.Summary != summary {
			f.logger.Warn("fingerprint collision suspected",
				"fingerprint", fp.Short(),
				"stored_summary", proposal.Summary,
				"observed_summary", summary)
			f.logEvent(ctx, events.NewProposalEvent(events.EventTypeCollisionSuspected,
				f.opts.RunID, fp, events.SeverityWarning,
				"two distinct findings mapped to the same fingerprint"))
		}

		created := proposal.Status == types.StatusPending &&
			proposal.FirstSeenAt.Equal(proposal.LastSeenAt)
		if created {
			result.NewProposals++
			f.logEvent(ctx, events.NewProposalEvent(events.EventTypeProposalCreated,
				f.opts.RunID, fp, events.SeverityInfo,
				fmt.Sprintf("new proposal: %s (%s)", finding.Rule, finding.SourcePath)))
		}

		switch proposal.Status {
		case types.StatusPending:
			result.Surfaced = append(result.Surfaced, types.SurfacedFinding{
				Finding:  finding,
				Proposal: proposal,
			})

		case types.StatusRejected:
			if f.opts.ShowRejected {
				result.Surfaced = append(result.Surfaced, types.SurfacedFinding{
					Finding:  finding,
					Proposal: proposal,
				})
				continue
			}
			result.SuppressedRejected++
			f.logger.Debug("suppressed rejected finding",
				"fingerprint", fp.Short(), "rule", finding.Rule, "path", finding.SourcePath)
			f.logEvent(ctx, events.NewProposalEvent(events.EventTypeFindingSuppressed,
				f.opts.RunID, fp, events.SeverityInfo,
				fmt.Sprintf("suppressed rejected finding: %s", finding.Rule)))

		case types.StatusAccepted:
			// Already resolved on paper, yet analysis still produces it.
			// Not silently dropped: surfaced as a distinct warning so a
			// fix that was never applied gets noticed.
			result.StaleAccepted = append(result.StaleAccepted, types.StaleAcceptedWarning{
				Finding:   finding,
				Proposal:  proposal,
				DecidedAt: proposal.DecidedAt,
			})
			f.logger.Warn("accepted proposal still reappearing",
				"fingerprint", fp.Short(), "rule", finding.Rule, "path", finding.SourcePath)
			f.logEvent(ctx, events.NewProposalEvent(events.EventTypeStaleAccepted,
				f.opts.RunID, fp, events.SeverityWarning,
				fmt.Sprintf("accepted proposal still produced by analysis: %s", finding.Rule)))
		}
	}

	return result, nil
}

// logEvent records an audit event; failures are warned about but never
// abort filtering, the audit trail is best-effort.
func (f *Filter) logEvent(ctx context.Context, event *events.RunEvent) {
	if err := f.store.RecordEvent(ctx, event); err != nil {
		f.logger.Warn("failed to record audit event", "type", event.Type, "error", err)
	}
}
