// Package sqlite implements the proposal store on SQLite.
//
// Durability: the database is opened with synchronous=FULL so every
// mutating statement is flushed before the call returns. Losing a
// rejection would resurrect a suppressed finding, which is the one
// failure mode this store exists to prevent.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codequarry/quarry/internal/types"
)

// SQLiteStore implements the storage.Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL for concurrent readers, synchronous=FULL so mutations are
	// durable before the call returns, busy_timeout so concurrent
	// writers queue instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// UpsertSeen records an observation of a fingerprint. A single atomic
// INSERT ... ON CONFLICT statement either creates the proposal as
// pending or bumps last_seen_at; the conflict clause never touches
// status, so a stale upsert can never downgrade a decided proposal,
// and MAX keeps last_seen_at monotonic when racing observers arrive
// out of timestamp order. Per-fingerprint serialization comes from
// statement-level atomicity; upserts on distinct fingerprints never
// deadlock each other.
func (s *SQLiteStore) UpsertSeen(ctx context.Context, fp types.Fingerprint, finding types.Finding, summary string, observedAt time.Time) (*types.Proposal, error) {
	if fp == "" {
		return nil, fmt.Errorf("fingerprint is required")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO proposals (fingerprint, status, source_path, rule, summary, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET last_seen_at = MAX(last_seen_at, excluded.last_seen_at)
		RETURNING fingerprint, status, source_path, rule, summary, first_seen_at, last_seen_at, decided_at
	`, string(fp), types.StatusPending, finding.SourcePath, finding.Rule, summary, observedAt, observedAt)

	proposal, err := scanProposal(row)
	if err != nil {
		return nil, types.NewStoreIOError("upsert_seen", err)
	}
	return proposal, nil
}

// Decide sets the status of a known proposal. Returns types.ErrNotFound
// (wrapped) when the fingerprint has never been observed. Re-deciding
// with the same status is a no-op; a different status overwrites, since
// a human may change their mind.
func (s *SQLiteStore) Decide(ctx context.Context, fp types.Fingerprint, status types.ProposalStatus, decidedAt time.Time) (*types.Proposal, error) {
	if !status.IsDecided() {
		return nil, fmt.Errorf("invalid decision status: %s (must be accepted or rejected)", status)
	}

	// Dedicated connection so the raw BEGIN IMMEDIATE/COMMIT run on the
	// same connection; database/sql would otherwise pool-hop between
	// statements. Raw Exec instead of BeginTx because the sqlite3
	// driver's BeginTx is always DEFERRED, and a deferred read-then-
	// write under WAL can fail with SQLITE_BUSY_SNAPSHOT on upgrade
	// without honoring the busy timeout.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, types.NewStoreIOError("decide", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, types.NewStoreIOError("decide", err)
	}

	// Background context for ROLLBACK so cleanup happens even if ctx
	// was cancelled mid-transaction
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	current, err := scanProposal(conn.QueryRowContext(ctx, `
		SELECT fingerprint, status, source_path, rule, summary, first_seen_at, last_seen_at, decided_at
		FROM proposals WHERE fingerprint = ?
	`, string(fp)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cannot decide %s: %w", fp.Short(), types.ErrNotFound)
	}
	if err != nil {
		return nil, types.NewStoreIOError("decide", err)
	}

	// Idempotent: same status again leaves the original decided_at
	if current.Status == status {
		return current, nil
	}

	if _, err := conn.ExecContext(ctx, `
		UPDATE proposals SET status = ?, decided_at = ? WHERE fingerprint = ?
	`, status, decidedAt, string(fp)); err != nil {
		return nil, types.NewStoreIOError("decide", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, types.NewStoreIOError("decide", err)
	}
	committed = true

	current.Status = status
	current.DecidedAt = &decidedAt
	return current, nil
}

// Get retrieves a proposal by fingerprint, or nil if absent
func (s *SQLiteStore) Get(ctx context.Context, fp types.Fingerprint) (*types.Proposal, error) {
	proposal, err := scanProposal(s.db.QueryRowContext(ctx, `
		SELECT fingerprint, status, source_path, rule, summary, first_seen_at, last_seen_at, decided_at
		FROM proposals WHERE fingerprint = ?
	`, string(fp)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewStoreIOError("get", err)
	}
	return proposal, nil
}

// ListByStatus returns all proposals with the given status, ordered by
// first_seen_at ascending
func (s *SQLiteStore) ListByStatus(ctx context.Context, status types.ProposalStatus) ([]*types.Proposal, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid status: %s", status)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, status, source_path, rule, summary, first_seen_at, last_seen_at, decided_at
		FROM proposals
		WHERE status = ?
		ORDER BY first_seen_at ASC
	`, status)
	if err != nil {
		return nil, types.NewStoreIOError("list_by_status", err)
	}
	defer rows.Close()

	var proposals []*types.Proposal
	for rows.Next() {
		proposal, err := scanProposal(rows)
		if err != nil {
			return nil, types.NewStoreIOError("list_by_status", err)
		}
		proposals = append(proposals, proposal)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStoreIOError("list_by_status", err)
	}

	return proposals, nil
}

// Purge hard-deletes a proposal record (manual reset path only)
func (s *SQLiteStore) Purge(ctx context.Context, fp types.Fingerprint) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM proposals WHERE fingerprint = ?`, string(fp))
	if err != nil {
		return types.NewStoreIOError("purge", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.NewStoreIOError("purge", err)
	}
	if affected == 0 {
		return fmt.Errorf("cannot purge %s: %w", fp.Short(), types.ErrNotFound)
	}
	return nil
}

// GetStatistics returns proposal counts by status plus the event count
func (s *SQLiteStore) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM proposals GROUP BY status`)
	if err != nil {
		return nil, types.NewStoreIOError("statistics", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, types.NewStoreIOError("statistics", err)
		}
		stats.TotalProposals += count
		switch types.ProposalStatus(status) {
		case types.StatusPending:
			stats.Pending = count
		case types.StatusAccepted:
			stats.Accepted = count
		case types.StatusRejected:
			stats.Rejected = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStoreIOError("statistics", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_events`).Scan(&stats.RunEvents); err != nil {
		return nil, types.NewStoreIOError("statistics", err)
	}

	return stats, nil
}

// GetConfig gets a configuration value from the config table
func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig sets a configuration value in the config table
func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for scanProposal
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProposal(row scanner) (*types.Proposal, error) {
	var p types.Proposal
	var fp, status string
	var decidedAt sql.NullTime

	err := row.Scan(&fp, &status, &p.SourcePath, &p.Rule, &p.Summary,
		&p.FirstSeenAt, &p.LastSeenAt, &decidedAt)
	if err != nil {
		return nil, err
	}

	p.Fingerprint = types.Fingerprint(fp)
	p.Status = types.ProposalStatus(status)
	if decidedAt.Valid {
		p.DecidedAt = &decidedAt.Time
	}
	return &p, nil
}
