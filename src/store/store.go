// Package store defines the interface for persistent run storage.
package store

import (
	"context"
	"errors"

	"gantry-runner/src/contracts"
)

// ErrNotFound is returned when a run ID has no record.
var ErrNotFound = errors.New("run not found")

// Store defines the interface for persisting pipeline runs.
type Store interface {
	// CreateRun records a newly accepted run in status pending.
	CreateRun(ctx context.Context, runID string, event contracts.TriggerEvent) error

	// MarkRunning moves a run to status running.
	MarkRunning(ctx context.Context, runID string) error

	// SaveResult stores the final result and moves the run to its
	// terminal status (passed or failed).
	SaveResult(ctx context.Context, result *contracts.RunResult) error

	// GetRun retrieves the full result for a finished run. Returns
	// ErrNotFound for unknown IDs and for runs that have not finished.
	GetRun(ctx context.Context, runID string) (*contracts.RunResult, error)

	// ListRuns returns up to limit runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]contracts.RunStatus, error)

	// Close closes the store connection.
	Close() error
}
