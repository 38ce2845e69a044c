package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFindingValidate(t *testing.T) {
	line := 42
	tests := []struct {
		name    string
		finding Finding
		wantErr string
	}{
		{
			name: "valid finding",
			finding: Finding{
				SourcePath: "inc/helpers.php",
				Line:       &line,
				Rule:       "missing-isset",
				Message:    "array key 'foo' accessed without isset check",
				Severity:   SeverityWarning,
			},
		},
		{
			name: "valid file-level finding without line",
			finding: Finding{
				SourcePath: "inc/helpers.php",
				Rule:       "file-too-long",
				Message:    "file exceeds 2000 lines",
				Severity:   SeverityInfo,
			},
		},
		{
			name:    "missing source path",
			finding: Finding{Rule: "r", Message: "m", Severity: SeverityInfo},
			wantErr: "source_path is required",
		},
		{
			name:    "missing rule",
			finding: Finding{SourcePath: "a.go", Message: "m", Severity: SeverityInfo},
			wantErr: "rule is required",
		},
		{
			name:    "missing message",
			finding: Finding{SourcePath: "a.go", Rule: "r", Severity: SeverityInfo},
			wantErr: "message is required",
		},
		{
			name:    "bad severity",
			finding: Finding{SourcePath: "a.go", Rule: "r", Message: "m", Severity: "catastrophic"},
			wantErr: "invalid severity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.finding.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestFindingValidateRejectsNonPositiveLine(t *testing.T) {
	zero := 0
	f := Finding{SourcePath: "a.go", Line: &zero, Rule: "r", Message: "m", Severity: SeverityError}
	assert.ErrorContains(t, f.Validate(), "line must be positive")
}

func TestSeverityRankOrdering(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityError.Rank())
	assert.Greater(t, SeverityError.Rank(), SeverityWarning.Rank())
	assert.Greater(t, SeverityWarning.Rank(), SeverityInfo.Rank())
	assert.Equal(t, 0, Severity("bogus").Rank())
}

func TestProposalStatusIsDecided(t *testing.T) {
	assert.False(t, StatusPending.IsDecided())
	assert.True(t, StatusAccepted.IsDecided())
	assert.True(t, StatusRejected.IsDecided())
}

func TestProposalValidate(t *testing.T) {
	now := time.Now()

	p := Proposal{
		Fingerprint: "abc123",
		Status:      StatusPending,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	assert.NoError(t, p.Validate())

	// Decided status requires decided_at
	p.Status = StatusRejected
	assert.ErrorContains(t, p.Validate(), "decided_at is required")

	decided := now.Add(time.Minute)
	p.DecidedAt = &decided
	assert.NoError(t, p.Validate())

	// last_seen_at before first_seen_at is inconsistent
	p.LastSeenAt = now.Add(-time.Hour)
	assert.ErrorContains(t, p.Validate(), "last_seen_at cannot precede")
}

func TestFingerprintShort(t *testing.T) {
	fp := Fingerprint("0123456789abcdef0123456789abcdef")
	assert.Equal(t, "0123456789ab", fp.Short())
	assert.Equal(t, "short", Fingerprint("short").Short())
}
