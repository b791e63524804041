package cases

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Patient is the identity-lookup view of a registered patient.
type Patient struct {
	UID   string
	Name  string
	Email string
}

// PatientDirectory resolves a patient reference (uid or email) to a
// registered patient identity.
type PatientDirectory interface {
	FindPatient(ctx context.Context, ref string) (*Patient, error)
}

// ReportProducer is the external analysis collaborator. It turns an asset
// reference into a report string; the workflow treats both as opaque.
type ReportProducer interface {
	Produce(ctx context.Context, assetRef string) (string, error)
}

type Service struct {
	repo      Repository
	directory PatientDirectory
	producer  ReportProducer // optional
}

func NewService(repo Repository, directory PatientDirectory, producer ReportProducer) *Service {
	return &Service{repo: repo, directory: directory, producer: producer}
}

// IntakeInput carries a clinic's case submission.
type IntakeInput struct {
	ClinicUID  string
	PatientRef string
	AssetRef   string
}

// Intake creates a case at the start of the review pipeline. The patient
// reference must resolve to a registered patient; the stored identity fields
// come from the directory, not from the caller.
func (s *Service) Intake(ctx context.Context, in IntakeInput) (*Case, error) {
	if in.ClinicUID == "" {
		return nil, fmt.Errorf("%w: clinic identity is required", ErrValidation)
	}
	if strings.TrimSpace(in.PatientRef) == "" {
		return nil, fmt.Errorf("%w: patient reference is required", ErrValidation)
	}
	if strings.TrimSpace(in.AssetRef) == "" {
		return nil, fmt.Errorf("%w: asset reference is required", ErrValidation)
	}

	patient, err := s.directory.FindPatient(ctx, in.PatientRef)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown patient %q", ErrValidation, in.PatientRef)
	}

	c := &Case{
		PatientUID:   patient.UID,
		PatientName:  patient.Name,
		PatientEmail: patient.Email,
		SubmittedBy:  in.ClinicUID,
		AssetRef:     in.AssetRef,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	// Best effort: the analysis collaborator may be slow or absent. A report
	// can only ever be attached while the case is still pending.
	if s.producer != nil {
		if report, err := s.producer.Produce(ctx, c.AssetRef); err == nil && report != "" {
			if err := s.repo.SetModelReport(ctx, c.ID, report); err == nil {
				c.ModelReport = &report
			}
		}
	}

	return c, nil
}

// SubmitReview applies a doctor's terminal decision to a case. The case must
// currently sit in the stage matching the actor's role; the transition is a
// compare-and-set, so of two racing reviewers exactly one wins and the other
// sees ErrConflict.
func (s *Service) SubmitReview(ctx context.Context, caseID uuid.UUID, actorUID, actorRole string, decision Decision, findings string) (*Case, error) {
	expected, ok := StageForRole(actorRole)
	if !ok {
		return nil, fmt.Errorf("%w: role %q cannot review cases", ErrForbidden, actorRole)
	}
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: decision must be %q or %q", ErrValidation, DecisionConfirmed, DecisionRejected)
	}
	if strings.TrimSpace(findings) == "" {
		return nil, fmt.Errorf("%w: findings are required", ErrValidation)
	}

	// Always re-read current status; acting on a stale snapshot would turn a
	// stage mismatch into a confusing conflict.
	current, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if current.Status != expected {
		if current.Status.Terminal() {
			return nil, fmt.Errorf("%w: case is already closed", ErrForbidden)
		}
		return nil, fmt.Errorf("%w: case is in stage %q", ErrForbidden, current.Status)
	}

	return s.repo.CompareAndSetStatus(ctx, caseID, expected, decision.Closes(), findings, actorUID)
}

// AttachModelReport records the external analysis result for a pending case.
// Write-once; closed cases never change.
func (s *Service) AttachModelReport(ctx context.Context, caseID uuid.UUID, report string) error {
	if strings.TrimSpace(report) == "" {
		return fmt.Errorf("%w: report is required", ErrValidation)
	}
	return s.repo.SetModelReport(ctx, caseID, report)
}

// GetCase returns a single case by id.
func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.repo.GetByID(ctx, id)
}

// ListForClinic returns a clinic's own submissions.
func (s *Service) ListForClinic(ctx context.Context, clinicUID string) ([]*Case, error) {
	return s.repo.ListBySubmitter(ctx, clinicUID)
}

// Queue returns the FIFO review queue for a doctor role.
func (s *Service) Queue(ctx context.Context, role string) ([]*Case, error) {
	stage, ok := StageForRole(role)
	if !ok {
		return nil, fmt.Errorf("%w: role %q has no review queue", ErrForbidden, role)
	}
	return s.repo.ListByStage(ctx, stage)
}

// HistoryForPatient returns a patient's own cases with derived status labels.
func (s *Service) HistoryForPatient(ctx context.Context, patientUID string) ([]*PatientCaseView, error) {
	list, err := s.repo.ListByPatient(ctx, patientUID)
	if err != nil {
		return nil, err
	}
	views := make([]*PatientCaseView, 0, len(list))
	for _, c := range list {
		views = append(views, &PatientCaseView{
			ID:          c.ID,
			Status:      c.Status,
			StatusLabel: c.Status.Label(),
			Findings:    c.Findings,
			CreatedAt:   c.CreatedAt,
		})
	}
	return views, nil
}
