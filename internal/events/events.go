// Package events defines the typed audit-trail events recorded while a
// pipeline run executes. Events are persisted to the store so that
// decisions and suppressions can be audited after the fact.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/codequarry/quarry/internal/types"
)

// EventType represents the type of event that occurred during a run.
type EventType string

const (
	// EventTypeRunStarted indicates a pipeline run began
	EventTypeRunStarted EventType = "run_started"
	// EventTypeRunCompleted indicates a pipeline run finished cleanly
	EventTypeRunCompleted EventType = "run_completed"
	// EventTypeRunFailed indicates a stage aborted the pipeline
	EventTypeRunFailed EventType = "run_failed"
	// EventTypeStageStarted indicates an analysis stage began
	EventTypeStageStarted EventType = "stage_started"
	// EventTypeStageCompleted indicates an analysis stage finished
	EventTypeStageCompleted EventType = "stage_completed"
	// EventTypeProposalCreated indicates a fingerprint was seen for the first time
	EventTypeProposalCreated EventType = "proposal_created"
	// EventTypeProposalDecided indicates a human accepted or rejected a proposal
	EventTypeProposalDecided EventType = "proposal_decided"
	// EventTypeFindingSuppressed indicates a rejected or accepted proposal was filtered out
	EventTypeFindingSuppressed EventType = "finding_suppressed"
	// EventTypeStaleAccepted indicates an accepted proposal's fingerprint reappeared
	EventTypeStaleAccepted EventType = "stale_accepted"
	// EventTypeCollisionSuspected indicates two structurally distinct findings
	// mapped to the same fingerprint with divergent content
	EventTypeCollisionSuspected EventType = "collision_suspected"
)

// IsValid checks if the event type is one of the known values
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeRunStarted, EventTypeRunCompleted, EventTypeRunFailed,
		EventTypeStageStarted, EventTypeStageCompleted,
		EventTypeProposalCreated, EventTypeProposalDecided,
		EventTypeFindingSuppressed, EventTypeStaleAccepted,
		EventTypeCollisionSuspected:
		return true
	}
	return false
}

// EventSeverity indicates how important an event is
type EventSeverity string

const (
	SeverityInfo    EventSeverity = "info"
	SeverityWarning EventSeverity = "warning"
	SeverityError   EventSeverity = "error"
)

// RunEvent is one audit-trail entry. Fingerprint is empty for
// run-scoped events (run_started, stage_completed, ...).
type RunEvent struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Timestamp   time.Time              `json:"timestamp"`
	RunID       string                 `json:"run_id"`
	Fingerprint types.Fingerprint      `json:"fingerprint,omitempty"`
	Severity    EventSeverity          `json:"severity"`
	Message     string                 `json:"message"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// EventFilter selects events when querying the store
type EventFilter struct {
	RunID       string
	Type        EventType
	Fingerprint types.Fingerprint
	AfterTime   time.Time
	BeforeTime  time.Time
	Limit       int
}

// New creates a run event with a fresh uuid and the current time.
func New(eventType EventType, runID string, severity EventSeverity, message string) *RunEvent {
	return &RunEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		Severity:  severity,
		Message:   message,
	}
}

// NewProposalEvent creates a run event tied to a specific fingerprint.
func NewProposalEvent(eventType EventType, runID string, fp types.Fingerprint, severity EventSeverity, message string) *RunEvent {
	e := New(eventType, runID, severity, message)
	e.Fingerprint = fp
	return e
}

// WithData attaches structured payload data to the event and returns it
// for chaining in constructors.
func (e *RunEvent) WithData(data map[string]interface{}) *RunEvent {
	e.Data = data
	return e
}
