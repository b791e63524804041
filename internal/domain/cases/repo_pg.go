package cases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const caseCols = `id, patient_uid, patient_name, patient_email, submitted_by, asset_ref,
	model_report, status, findings, reviewed_by, reviewed_at, created_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	var status string
	var createdAt time.Time
	var reviewedAt *time.Time
	err := row.Scan(&c.ID, &c.PatientUID, &c.PatientName, &c.PatientEmail, &c.SubmittedBy,
		&c.AssetRef, &c.ModelReport, &status, &c.Findings, &c.ReviewedBy, &reviewedAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Status = Status(status)
	c.CreatedAt = NewInstant(createdAt)
	if reviewedAt != nil {
		inst := NewInstant(*reviewedAt)
		c.ReviewedAt = &inst
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Case) error {
	c.ID = uuid.New()
	c.Status = StatusPendingJuniorReview
	row := r.pool.QueryRow(ctx, `
		INSERT INTO cases (id, patient_uid, patient_name, patient_email, submitted_by, asset_ref, model_report, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		c.ID, c.PatientUID, c.PatientName, c.PatientEmail, c.SubmittedBy, c.AssetRef,
		c.ModelReport, string(c.Status))
	var createdAt time.Time
	if err := row.Scan(&createdAt); err != nil {
		return err
	}
	c.CreatedAt = NewInstant(createdAt)
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.pool.QueryRow(ctx, `SELECT `+caseCols+` FROM cases WHERE id = $1`, id))
}

func (r *repoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Case, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repoPG) ListBySubmitter(ctx context.Context, clinicUID string) ([]*Case, error) {
	return r.list(ctx, `SELECT `+caseCols+` FROM cases WHERE submitted_by = $1 ORDER BY created_at DESC`, clinicUID)
}

func (r *repoPG) ListByStage(ctx context.Context, stage Status) ([]*Case, error) {
	return r.list(ctx, `SELECT `+caseCols+` FROM cases WHERE status = $1 ORDER BY created_at ASC`, string(stage))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientUID string) ([]*Case, error) {
	return r.list(ctx, `SELECT `+caseCols+` FROM cases WHERE patient_uid = $1 ORDER BY created_at DESC`, patientUID)
}

func (r *repoPG) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status, findings, reviewerUID string) (*Case, error) {
	// Single conditional UPDATE; the WHERE clause is the compare.
	row := r.pool.QueryRow(ctx, `
		UPDATE cases
		SET status = $3, findings = $4, reviewed_by = $5, reviewed_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+caseCols,
		id, string(expected), string(next), findings, reviewerUID)

	c, err := scanCase(row)
	if errors.Is(err, ErrNotFound) {
		// No row matched: either the case is gone or the status moved.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	return c, err
}

func (r *repoPG) SetModelReport(ctx context.Context, id uuid.UUID, report string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cases
		SET model_report = $2
		WHERE id = $1 AND model_report IS NULL
		  AND status IN ($3, $4)`,
		id, report, string(StatusPendingJuniorReview), string(StatusPendingSeniorReview))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrConflict
	}
	return nil
}
