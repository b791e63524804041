package cases

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the durable case store. It exclusively owns persisted case
// records; transitions go through CompareAndSetStatus so that concurrent
// reviewers cannot both win.
type Repository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)

	// ListBySubmitter returns a clinic's own submissions, newest first.
	ListBySubmitter(ctx context.Context, clinicUID string) ([]*Case, error)
	// ListByStage returns the review queue for a stage, oldest first (FIFO).
	ListByStage(ctx context.Context, stage Status) ([]*Case, error)
	ListByPatient(ctx context.Context, patientUID string) ([]*Case, error)

	// CompareAndSetStatus atomically moves a case from expected to next,
	// recording findings and the reviewer. Returns ErrConflict when the stored
	// status no longer equals expected, ErrNotFound when the case is missing.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status, findings, reviewerUID string) (*Case, error)

	// SetModelReport attaches the external analysis report. Write-once, and
	// only while the case is still pending; ErrConflict otherwise.
	SetModelReport(ctx context.Context, id uuid.UUID, report string) error
}
