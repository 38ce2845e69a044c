package storage

import (
	"context"

	"github.com/codequarry/quarry/internal/storage/sqlite"
)

// NewStore creates a new SQLite-backed proposal store.
// The ctx parameter is currently unused but kept for API consistency
// with the rest of the store surface.
func NewStore(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}

	return sqlite.New(cfg.Path)
}
