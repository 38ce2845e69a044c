package types

import (
	"fmt"
	"strings"
	"time"
)

// Finding represents a single issue detected by an analysis stage in a
// given run. Findings are produced fresh each run and never persisted
// directly; the durable record is the Proposal keyed by the finding's
// fingerprint.
type Finding struct {
	SourcePath string   `json:"source_path"`
	Line       *int     `json:"line,omitempty"` // nil when the issue is file-level
	Rule       string   `json:"rule"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
}

// Validate checks if the finding has valid field values
func (f *Finding) Validate() error {
	if strings.TrimSpace(f.SourcePath) == "" {
		return fmt.Errorf("source_path is required")
	}
	if strings.TrimSpace(f.Rule) == "" {
		return fmt.Errorf("rule is required")
	}
	if strings.TrimSpace(f.Message) == "" {
		return fmt.Errorf("message is required")
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", f.Severity)
	}
	if f.Line != nil && *f.Line < 1 {
		return fmt.Errorf("line must be positive (got %d)", *f.Line)
	}
	return nil
}

// Severity indicates how serious a finding is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Rank returns a numeric rank for sorting (higher = more severe)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Fingerprint is the stable derived identity for a finding, used for
// cross-run recognition. It is a hex-encoded hash; see the fingerprint
// package for how it is derived.
type Fingerprint string

// String returns the fingerprint as a plain string
func (fp Fingerprint) String() string { return string(fp) }

// Short returns an abbreviated fingerprint for display (first 12 hex chars)
func (fp Fingerprint) Short() string {
	if len(fp) <= 12 {
		return string(fp)
	}
	return string(fp[:12])
}

// ProposalStatus represents the triage state of a proposal
type ProposalStatus string

const (
	StatusPending  ProposalStatus = "pending"
	StatusAccepted ProposalStatus = "accepted"
	StatusRejected ProposalStatus = "rejected"
)

// IsValid checks if the status value is valid
func (s ProposalStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// IsDecided reports whether a human has already ruled on the proposal
func (s ProposalStatus) IsDecided() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Proposal is the persisted decision record for a fingerprint. Created
// on first observation, last_seen_at bumped on every re-observation,
// mutated to accepted/rejected only by an explicit human decision.
// Never deleted automatically; Purge is the manual reset path.
type Proposal struct {
	Fingerprint Fingerprint    `json:"fingerprint"`
	Status      ProposalStatus `json:"status"`
	SourcePath  string         `json:"source_path"`
	Rule        string         `json:"rule"`
	Summary     string         `json:"summary"` // normalized message at first sighting
	FirstSeenAt time.Time      `json:"first_seen_at"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
}

// Validate checks if the proposal has valid field values
func (p *Proposal) Validate() error {
	if p.Fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	if p.FirstSeenAt.IsZero() {
		return fmt.Errorf("first_seen_at is required")
	}
	if p.LastSeenAt.Before(p.FirstSeenAt) {
		return fmt.Errorf("last_seen_at cannot precede first_seen_at")
	}
	if p.Status.IsDecided() && p.DecidedAt == nil {
		return fmt.Errorf("decided_at is required for %s proposals", p.Status)
	}
	return nil
}

// SurfacedFinding pairs a finding with the proposal it mapped to after
// dedup processing.
type SurfacedFinding struct {
	Finding  Finding   `json:"finding"`
	Proposal *Proposal `json:"proposal"`
}

// StaleAcceptedWarning flags an accepted proposal whose fingerprint is
// still being produced by analysis, suggesting the accepted fix was
// never actually applied.
type StaleAcceptedWarning struct {
	Finding   Finding    `json:"finding"`
	Proposal  *Proposal  `json:"proposal"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// StageResult holds the surfaced output of one completed stage.
type StageResult struct {
	StageName  string            `json:"stage_name"`
	Surfaced   []SurfacedFinding `json:"surfaced"`
	Suppressed int               `json:"suppressed"` // rejected/accepted findings filtered out
	Summary    string            `json:"summary,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// Report is the user-facing outcome of a pipeline run. Partial results
// from completed stages are preserved even when a later stage fails.
type Report struct {
	RunID         string                 `json:"run_id"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at"`
	RepoRoot      string                 `json:"repo_root"`
	Module        string                 `json:"module,omitempty"` // Go module path if the target has one
	Stages        []StageResult          `json:"stages"`
	NewFindings   []SurfacedFinding      `json:"new_findings"`
	StaleAccepted []StaleAcceptedWarning `json:"stale_accepted"`
	SummaryText   string                 `json:"summary_text,omitempty"`
	Failure       *RunFailure            `json:"failure,omitempty"`
}

// RunFailure carries the typed failure surfaced when a stage aborts the
// pipeline. Completed-stage results remain in the report.
type RunFailure struct {
	StageIndex int    `json:"stage_index"`
	StageName  string `json:"stage_name"`
	Cause      string `json:"cause"`
}

// Statistics summarizes proposal counts by status
type Statistics struct {
	TotalProposals int `json:"total_proposals"`
	Pending        int `json:"pending"`
	Accepted       int `json:"accepted"`
	Rejected       int `json:"rejected"`
	RunEvents      int `json:"run_events"`
}
