package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

var (
	// ErrNotFound is returned when a run does not exist
	ErrNotFound = errors.New("not found")
)

// PluginPersistence provides storage operations for persistence plugins.
// This is the main interface that all run archive backends must implement.
type PluginPersistence interface {
	// RunStorage returns the run archive implementation
	RunStorage() RunStorage

	// Health checks if the persistence backend is healthy
	Health(ctx context.Context) error

	// Close releases resources held by the persistence backend
	Close() error
}

// RunStorage archives finished workflow runs keyed by purchaser identifier.
type RunStorage interface {
	// Save stores rec, replacing any run with the same identifier
	Save(ctx context.Context, rec domain.RunRecord) error

	// Get retrieves a run by identifier
	Get(ctx context.Context, identifier string) (*domain.RunRecord, error)

	// Recent returns up to limit runs, newest first; limit <= 0 returns the whole window
	Recent(ctx context.Context, limit int) ([]domain.RunRecord, error)

	// Prune deletes runs that finished before the cutoff
	Prune(ctx context.Context, before time.Time) (int, error)
}
