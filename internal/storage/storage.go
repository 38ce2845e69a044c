// Package storage defines the durable proposal store: the single source
// of truth for which findings a human has accepted or rejected across
// repeated runs.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codequarry/quarry/internal/events"
	"github.com/codequarry/quarry/internal/types"
)

// Store defines the interface for proposal storage backends.
//
// All mutating operations are durable before returning: a crash
// immediately after Decide must not lose that decision, since the
// entire point of the store is to prevent a rejected suggestion from
// reappearing. Concurrent UpsertSeen/Decide calls are serialized per
// fingerprint; writes to distinct fingerprints do not block each other.
type Store interface {
	// UpsertSeen records an observation of a fingerprint. If absent, a
	// proposal is created with status pending and firstSeenAt=observedAt;
	// if present, only lastSeenAt is bumped. An existing accepted or
	// rejected status is never overwritten by an upsert.
	UpsertSeen(ctx context.Context, fp types.Fingerprint, finding types.Finding, summary string, observedAt time.Time) (*types.Proposal, error)

	// Decide sets the status of a known proposal to accepted or rejected.
	// Returns ErrNotFound (wrapped) if the fingerprint has never been
	// seen. Idempotent: re-deciding with the same status is a no-op;
	// deciding with a different status overwrites, since a human may
	// change their mind.
	Decide(ctx context.Context, fp types.Fingerprint, status types.ProposalStatus, decidedAt time.Time) (*types.Proposal, error)

	// Get returns the proposal for a fingerprint, or nil if absent.
	Get(ctx context.Context, fp types.Fingerprint) (*types.Proposal, error)

	// ListByStatus returns all proposals with the given status, ordered
	// by firstSeenAt ascending.
	ListByStatus(ctx context.Context, status types.ProposalStatus) ([]*types.Proposal, error)

	// Purge hard-deletes a proposal record. Manual reset path only;
	// nothing in the pipeline calls this automatically.
	Purge(ctx context.Context, fp types.Fingerprint) error

	// Run events - audit trail
	RecordEvent(ctx context.Context, event *events.RunEvent) error
	GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.RunEvent, error)

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Config - small key/value settings persisted alongside proposals
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".quarry/quarry.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: filepath.Join(".quarry", "quarry.db"),
	}
}

// DiscoverDatabase looks for .quarry/*.db in the current directory.
// The QUARRY_DB_PATH environment variable takes precedence, which also
// gives tests an isolation hook.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("QUARRY_DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	quarryDir := filepath.Join(dir, ".quarry")
	if info, err := os.Stat(quarryDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(quarryDir)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					absPath, err := filepath.Abs(filepath.Join(quarryDir, entry.Name()))
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf(
		"no .quarry/*.db found in %s\n"+
			"  Run 'quarry init' to initialize a proposal store in this directory\n"+
			"  Or use --db to specify the database path explicitly",
		dir)
}

// InitProject creates the .quarry directory for a repository and
// returns the database path to use. The database itself is created on
// first connection.
func InitProject(projectDir, name string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	quarryDir := filepath.Join(projectDir, ".quarry")
	if err := os.MkdirAll(quarryDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create .quarry directory: %w", err)
	}

	dbName := name
	if dbName == "" {
		dbName = "quarry"
	}
	if !strings.HasSuffix(dbName, ".db") {
		dbName += ".db"
	}

	dbPath := filepath.Join(quarryDir, dbName)
	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}

	return dbPath, nil
}
