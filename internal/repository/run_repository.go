package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/keyword-hunter/internal/domain"
)

// RunRepository persists keyword research runs and their lifecycle.
type RunRepository interface {
	// Create inserts a new run. Returns domain.ErrAlreadyExists if the ID is taken.
	Create(ctx context.Context, run *domain.Run) error

	// Get retrieves a run by ID.
	// Returns domain.ErrNotFound if no matching run exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// List returns runs matching filter, newest first, and the total count.
	List(ctx context.Context, filter domain.RunFilter) ([]*domain.Run, int64, error)

	// MarkRunning moves a pending run to running and records its seed count.
	MarkRunning(ctx context.Context, id uuid.UUID, seedCount int) error

	// UpdateProgress records the expansion job handle and its progress.
	// Only running runs are updated.
	UpdateProgress(ctx context.Context, id uuid.UUID, jobUID domain.JobHandle, progress int) error

	// MarkCompleted moves a running run to completed.
	MarkCompleted(ctx context.Context, id uuid.UUID, resultCount int) error

	// MarkFailed moves a pending or running run to failed.
	MarkFailed(ctx context.Context, id uuid.UUID, kind domain.FailureKind, message string) error
}

// KeywordStore persists the candidates a run produced.
type KeywordStore interface {
	// SaveKeywords replaces the stored candidates of a run, keeping their order.
	SaveKeywords(ctx context.Context, runID uuid.UUID, cands []domain.Candidate) error

	// ListKeywords returns a page of a run's candidates in stored order and
	// the total number stored.
	ListKeywords(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.Candidate, int64, error)
}
