package dedup

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codequarry/quarry/internal/events"
	"github.com/codequarry/quarry/internal/fingerprint"
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

func quietLogger() hclog.Logger {
	return hclog.NewNullLogger()
}

func testFinding(path, rule, message string) types.Finding {
	return types.Finding{
		SourcePath: path,
		Rule:       rule,
		Message:    message,
		Severity:   types.SeverityWarning,
	}
}

// eventFailingStore fails every RecordEvent call; the filter's audit
// trail is best-effort so filtering itself must still succeed.
type eventFailingStore struct {
	storage.Store
}

func (s *eventFailingStore) RecordEvent(ctx context.Context, event *events.RunEvent) error {
	return errors.New("events table unavailable")
}

func TestFilterAuditFailureIsLoggedNotFatal(t *testing.T) {
	var logBuf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &logBuf, Level: hclog.Warn})

	store := &eventFailingStore{Store: newTestStore(t)}
	f := New(store, Options{RunID: "run-1", Logger: logger})

	result, err := f.Filter(context.Background(), []types.Finding{
		testFinding("inc/helpers.php", "missing-isset", "array key 'foo'"),
	})
	require.NoError(t, err)
	assert.Len(t, result.Surfaced, 1)
	assert.Contains(t, logBuf.String(), "failed to record audit event")
}

func TestFilterSurfacesNewFindings(t *testing.T) {
	store := newTestStore(t)
	f := New(store, Options{RunID: "run-1", Logger: quietLogger()})

	findings := []types.Finding{
		testFinding("inc/helpers.php", "missing-isset", "array key 'foo'"),
		testFinding("inc/db.php", "sql-injection", "unescaped input"),
	}

	result, err := f.Filter(context.Background(), findings)
	require.NoError(t, err)

	assert.Len(t, result.Surfaced, 2)
	assert.Equal(t, 2, result.NewProposals)
	assert.Empty(t, result.StaleAccepted)
	for _, sf := range result.Surfaced {
		assert.Equal(t, types.StatusPending, sf.Proposal.Status)
	}
}

func TestFilterIdempotentRerun(t *testing.T) {
	store := newTestStore(t)
	f := New(store, Options{RunID: "run-1", Logger: quietLogger()})
	ctx := context.Background()

	findings := []types.Finding{
		testFinding("inc/helpers.php", "missing-isset", "array key 'foo'"),
	}

	first, err := f.Filter(ctx, findings)
	require.NoError(t, err)
	second, err := f.Filter(ctx, findings)
	require.NoError(t, err)

	// Same surfaced set both times with no intervening decisions
	require.Len(t, first.Surfaced, 1)
	require.Len(t, second.Surfaced, 1)
	assert.Equal(t, first.Surfaced[0].Proposal.Fingerprint, second.Surfaced[0].Proposal.Fingerprint)
	assert.Equal(t, 1, first.NewProposals)
	assert.Equal(t, 0, second.NewProposals, "second sighting is not a new proposal")
}

func TestFilterSuppressesRejected(t *testing.T) {
	store := newTestStore(t)
	f := New(store, Options{RunID: "run-1", Logger: quietLogger()})
	ctx := context.Background()

	finding := testFinding("inc/helpers.php", "missing-isset", "array key 'foo'")
	fp := fingerprint.Fingerprint(finding)

	_, err := f.Filter(ctx, []types.Finding{finding})
	require.NoError(t, err)
	_, err = store.Decide(ctx, fp, types.StatusRejected, time.Now())
	require.NoError(t, err)

	result, err := f.Filter(ctx, []types.Finding{finding})
	require.NoError(t, err)

	assert.Empty(t, result.Surfaced)
	assert.Empty(t, result.StaleAccepted)
	assert.Equal(t, 1, result.SuppressedRejected)
}

func TestFilterShowRejectedOverride(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	finding := testFinding("inc/helpers.php", "missing-isset", "array key 'foo'")
	fp := fingerprint.Fingerprint(finding)

	_, err := New(store, Options{Logger: quietLogger()}).Filter(ctx, []types.Finding{finding})
	require.NoError(t, err)
	_, err = store.Decide(ctx, fp, types.StatusRejected, time.Now())
	require.NoError(t, err)

	// Resurrect workflow: rejected findings come back with the flag set
	result, err := New(store, Options{ShowRejected: true, Logger: quietLogger()}).
		Filter(ctx, []types.Finding{finding})
	require.NoError(t, err)

	require.Len(t, result.Surfaced, 1)
	assert.Equal(t, types.StatusRejected, result.Surfaced[0].Proposal.Status)
	assert.Equal(t, 0, result.SuppressedRejected)
}

func TestFilterStaleAcceptedWarning(t *testing.T) {
	store := newTestStore(t)
	f := New(store, Options{RunID: "run-2", Logger: quietLogger()})
	ctx := context.Background()

	finding := testFinding("inc/helpers.php", "missing-isset", "array key 'foo'")
	fp := fingerprint.Fingerprint(finding)

	_, err := f.Filter(ctx, []types.Finding{finding})
	require.NoError(t, err)
	decidedAt := time.Now()
	_, err = store.Decide(ctx, fp, types.StatusAccepted, decidedAt)
	require.NoError(t, err)

	result, err := f.Filter(ctx, []types.Finding{finding})
	require.NoError(t, err)

	// Not surfaced, but not silently dropped either
	assert.Empty(t, result.Surfaced)
	require.Len(t, result.StaleAccepted, 1)
	assert.Equal(t, fp, result.StaleAccepted[0].Proposal.Fingerprint)
	require.NotNil(t, result.StaleAccepted[0].DecidedAt)

	// The re-sighting still bumped last_seen_at for staleness auditing
	p, err := store.Get(ctx, fp)
	require.NoError(t, err)
	assert.True(t, p.LastSeenAt.After(p.FirstSeenAt))
}

func TestFilterRejectedThenIdenticalRunSurfacesNothing(t *testing.T) {
	// End-to-end scenario from the tracker's core contract: reject a
	// finding, re-run with an identical finding, and expect zero
	// surfaced findings and zero stale-accepted warnings.
	store := newTestStore(t)
	f := New(store, Options{Logger: quietLogger()})
	ctx := context.Background()

	findingA := testFinding("inc/helpers.php", "missing-isset", "array key 'foo'")

	first, err := f.Filter(ctx, []types.Finding{findingA})
	require.NoError(t, err)
	require.Len(t, first.Surfaced, 1)

	_, err = store.Decide(ctx, fingerprint.Fingerprint(findingA), types.StatusRejected, time.Now())
	require.NoError(t, err)

	second, err := f.Filter(ctx, []types.Finding{findingA})
	require.NoError(t, err)
	assert.Empty(t, second.Surfaced)
	assert.Empty(t, second.StaleAccepted)
}

func TestFilterRejectsInvalidFinding(t *testing.T) {
	store := newTestStore(t)
	f := New(store, Options{Logger: quietLogger()})

	_, err := f.Filter(context.Background(), []types.Finding{{SourcePath: "a.php"}})
	assert.ErrorContains(t, err, "invalid finding")
}

func TestFilterRecordsCollisionSuspectedEvent(t *testing.T) {
	store := newTestStore(t)
	f := New(store, Options{RunID: "run-1", Logger: quietLogger()})
	ctx := context.Background()

	finding := testFinding("inc/helpers.php", "missing-isset", "array key 'foo'")
	fp := fingerprint.Fingerprint(finding)

	// Seed the proposal with a divergent stored summary to simulate a
	// hash collision between structurally distinct findings
	_, err := store.UpsertSeen(ctx, fp, finding, "completely different normalized content", time.Now())
	require.NoError(t, err)

	result, err := f.Filter(ctx, []types.Finding{finding})
	require.NoError(t, err)

	// Diagnostic only: the finding still flows through the normal policy
	assert.Len(t, result.Surfaced, 1)

	recorded, err := store.GetEvents(ctx, events.EventFilter{Type: events.EventTypeCollisionSuspected})
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, fp, recorded[0].Fingerprint)
}
