// Package cases implements the angiography case review workflow: intake of
// submitted studies, role-gated review transitions, and role-scoped read
// views. All shared state lives in the case store; the service holds nothing
// between calls.
package cases

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/steno/steno/internal/platform/auth"
)

// Status is the single mutable workflow field of a case.
type Status string

const (
	StatusPendingJuniorReview     Status = "pending_junior_review"
	StatusPendingSeniorReview     Status = "pending_senior_review"
	StatusClosedStenosisConfirmed Status = "closed_stenosis_confirmed"
	StatusClosedNoStenosis        Status = "closed_no_stenosis"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingJuniorReview, StatusPendingSeniorReview,
		StatusClosedStenosisConfirmed, StatusClosedNoStenosis:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusClosedStenosisConfirmed || s == StatusClosedNoStenosis
}

// Label returns the human-readable status text shown to patients. Clients
// depend on these exact strings.
func (s Status) Label() string {
	switch s {
	case StatusPendingJuniorReview, StatusPendingSeniorReview:
		return "Under Review"
	case StatusClosedStenosisConfirmed:
		return "Completed: Stenosis Confirmed. You will be contacted for an appointment."
	case StatusClosedNoStenosis:
		return "Completed: No Stenosis Found."
	default:
		return "Unknown"
	}
}

// StageForRole returns the status a reviewing role is allowed to act on.
func StageForRole(role string) (Status, bool) {
	switch role {
	case auth.RoleJuniorDoctor:
		return StatusPendingJuniorReview, true
	case auth.RoleSeniorDoctor:
		return StatusPendingSeniorReview, true
	}
	return "", false
}

// Decision is a reviewing doctor's verdict.
type Decision string

const (
	DecisionConfirmed Decision = "confirmed"
	DecisionRejected  Decision = "rejected"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionConfirmed || d == DecisionRejected
}

// Closes returns the terminal status a decision produces. Every review is
// terminal: junior and senior doctors close cases in their own stage directly.
func (d Decision) Closes() Status {
	if d == DecisionConfirmed {
		return StatusClosedStenosisConfirmed
	}
	return StatusClosedNoStenosis
}

// Instant is the wire form of a persisted timestamp: an epoch-seconds
// structure. Callers treat it as opaque and only compare for ordering.
type Instant struct {
	t time.Time
}

func NewInstant(t time.Time) Instant {
	return Instant{t: t}
}

func (i Instant) Time() time.Time { return i.t }

func (i Instant) Before(other Instant) bool { return i.t.Before(other.t) }

func (i Instant) IsZero() bool { return i.t.IsZero() }

type instantJSON struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

func (i Instant) MarshalJSON() ([]byte, error) {
	return json.Marshal(instantJSON{
		Seconds: i.t.Unix(),
		Nanos:   int32(i.t.Nanosecond()),
	})
}

func (i *Instant) UnmarshalJSON(data []byte) error {
	var v instantJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	i.t = time.Unix(v.Seconds, int64(v.Nanos)).UTC()
	return nil
}

// Case is one imaging study submitted for stenosis review. Everything except
// the workflow fields is immutable after creation; cases are never deleted.
type Case struct {
	ID           uuid.UUID `json:"id"`
	PatientUID   string    `json:"patientId"`
	PatientName  string    `json:"patientName"`
	PatientEmail string    `json:"patientEmail"`
	SubmittedBy  string    `json:"submittedBy"`
	AssetRef     string    `json:"assetReference"`
	ModelReport  *string   `json:"modelReport,omitempty"`
	Status       Status    `json:"status"`
	Findings     *string   `json:"findings,omitempty"`
	ReviewedBy   *string   `json:"reviewedBy,omitempty"`
	ReviewedAt   *Instant  `json:"reviewedAt,omitempty"`
	CreatedAt    Instant   `json:"createdAt"`
}

// PatientCaseView is the patient-facing projection of a case, carrying the
// derived status label.
type PatientCaseView struct {
	ID          uuid.UUID `json:"id"`
	Status      Status    `json:"status"`
	StatusLabel string    `json:"statusLabel"`
	Findings    *string   `json:"findings,omitempty"`
	CreatedAt   Instant   `json:"createdAt"`
}
