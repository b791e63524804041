package cases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/steno/steno/internal/platform/auth"
)

// -- Mock Repository --
//
// Map-backed store guarded by a mutex so the compare-and-set contract holds
// under concurrent SubmitReview calls.

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Case
	seq   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Case)}
}

func (m *mockRepo) Create(_ context.Context, c *Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	c.Status = StatusPendingJuniorReview
	m.seq++
	c.CreatedAt = NewInstant(time.Unix(1_700_000_000, 0).Add(time.Duration(m.seq) * time.Second))
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) ListBySubmitter(_ context.Context, clinicUID string) ([]*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Case
	for _, c := range m.items {
		if c.SubmittedBy == clinicUID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sortByCreatedAtDesc(out)
	return out, nil
}

func (m *mockRepo) ListByStage(_ context.Context, stage Status) ([]*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Case
	for _, c := range m.items {
		if c.Status == stage {
			cp := *c
			out = append(out, &cp)
		}
	}
	sortByCreatedAtAsc(out)
	return out, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientUID string) ([]*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Case
	for _, c := range m.items {
		if c.PatientUID == patientUID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sortByCreatedAtDesc(out)
	return out, nil
}

func (m *mockRepo) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next Status, findings, reviewerUID string) (*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != expected {
		return nil, ErrConflict
	}
	now := NewInstant(time.Now())
	c.Status = next
	c.Findings = &findings
	c.ReviewedBy = &reviewerUID
	c.ReviewedAt = &now
	cp := *c
	return &cp, nil
}

func (m *mockRepo) SetModelReport(_ context.Context, id uuid.UUID, report string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	if c.ModelReport != nil || c.Status.Terminal() {
		return ErrConflict
	}
	c.ModelReport = &report
	return nil
}

// seed places a case directly into the store, bypassing the workflow.
func (m *mockRepo) seed(c *Case) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.seq++
	c.CreatedAt = NewInstant(time.Unix(1_700_000_000, 0).Add(time.Duration(m.seq) * time.Second))
	m.items[c.ID] = c
}

func sortByCreatedAtAsc(cs []*Case) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].CreatedAt.Before(cs[j].CreatedAt) })
}

func sortByCreatedAtDesc(cs []*Case) {
	sort.Slice(cs, func(i, j int) bool { return cs[j].CreatedAt.Before(cs[i].CreatedAt) })
}

// -- Mock collaborators --

type mockDirectory struct {
	patients map[string]*Patient
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{patients: map[string]*Patient{
		"p1":               {UID: "p1", Name: "Jane Doe", Email: "jane@example.com"},
		"jane@example.com": {UID: "p1", Name: "Jane Doe", Email: "jane@example.com"},
	}}
}

func (m *mockDirectory) FindPatient(_ context.Context, ref string) (*Patient, error) {
	p, ok := m.patients[ref]
	if !ok {
		return nil, fmt.Errorf("no patient for %q", ref)
	}
	return p, nil
}

type mockProducer struct {
	report string
	err    error
}

func (m *mockProducer) Produce(_ context.Context, _ string) (string, error) {
	return m.report, m.err
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, newMockDirectory(), nil), repo
}

// -- Intake --

func TestIntake_CreatesPendingCase(t *testing.T) {
	svc, _ := newTestService()
	c, err := svc.Intake(context.Background(), IntakeInput{
		ClinicUID:  "clinic-1",
		PatientRef: "p1",
		AssetRef:   "ref_angio.dcm",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status != StatusPendingJuniorReview {
		t.Errorf("expected status %s, got %s", StatusPendingJuniorReview, c.Status)
	}
	if c.Findings != nil {
		t.Error("a new case must have no findings")
	}
	if c.PatientName != "Jane Doe" || c.PatientEmail != "jane@example.com" {
		t.Errorf("patient identity not resolved from directory: %+v", c)
	}
	if c.SubmittedBy != "clinic-1" || c.AssetRef != "ref_angio.dcm" {
		t.Errorf("submission fields not preserved: %+v", c)
	}
}

func TestIntake_RoundTrip(t *testing.T) {
	svc, _ := newTestService()
	created, err := svc.Intake(context.Background(), IntakeInput{
		ClinicUID: "clinic-1", PatientRef: "jane@example.com", AssetRef: "ref1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.GetCase(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PatientName != created.PatientName || got.PatientEmail != created.PatientEmail || got.AssetRef != created.AssetRef {
		t.Errorf("round-trip mismatch: %+v vs %+v", got, created)
	}
}

func TestIntake_CreatedAtMonotonic(t *testing.T) {
	svc, _ := newTestService()
	var prev *Case
	for i := 0; i < 5; i++ {
		c, err := svc.Intake(context.Background(), IntakeInput{
			ClinicUID: "clinic-1", PatientRef: "p1", AssetRef: fmt.Sprintf("ref%d", i),
		})
		if err != nil {
			t.Fatalf("intake %d: %v", i, err)
		}
		if prev != nil && c.CreatedAt.Before(prev.CreatedAt) {
			t.Errorf("createdAt went backwards between successive intakes")
		}
		prev = c
	}
}

func TestIntake_Validation(t *testing.T) {
	svc, _ := newTestService()
	cases := []IntakeInput{
		{PatientRef: "p1", AssetRef: "ref"},
		{ClinicUID: "clinic-1", AssetRef: "ref"},
		{ClinicUID: "clinic-1", PatientRef: "p1"},
		{ClinicUID: "clinic-1", PatientRef: "nobody", AssetRef: "ref"},
	}
	for i, in := range cases {
		_, err := svc.Intake(context.Background(), in)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestIntake_AttachesModelReport(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, newMockDirectory(), &mockProducer{report: "suspected stenosis in LAD"})

	c, err := svc.Intake(context.Background(), IntakeInput{
		ClinicUID: "clinic-1", PatientRef: "p1", AssetRef: "ref1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ModelReport == nil || *c.ModelReport != "suspected stenosis in LAD" {
		t.Errorf("model report not attached: %+v", c.ModelReport)
	}
}

func TestIntake_ProducerFailureIsNotFatal(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, newMockDirectory(), &mockProducer{err: errors.New("analysis backend down")})

	c, err := svc.Intake(context.Background(), IntakeInput{
		ClinicUID: "clinic-1", PatientRef: "p1", AssetRef: "ref1",
	})
	if err != nil {
		t.Fatalf("intake must succeed without a report: %v", err)
	}
	if c.ModelReport != nil {
		t.Error("no report should be attached when the producer fails")
	}
}

// -- SubmitReview --

func intakeCase(t *testing.T, svc *Service) *Case {
	t.Helper()
	c, err := svc.Intake(context.Background(), IntakeInput{
		ClinicUID: "clinic-1", PatientRef: "p1", AssetRef: "ref1",
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	return c
}

func TestSubmitReview_JuniorRejectsCloses(t *testing.T) {
	svc, _ := newTestService()
	c := intakeCase(t, svc)

	updated, err := svc.SubmitReview(context.Background(), c.ID, "doc-1", auth.RoleJuniorDoctor,
		DecisionRejected, "No visible stenosis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusClosedNoStenosis {
		t.Errorf("expected %s, got %s", StatusClosedNoStenosis, updated.Status)
	}
	if updated.Findings == nil || *updated.Findings != "No visible stenosis" {
		t.Errorf("findings not recorded: %v", updated.Findings)
	}
	if updated.ReviewedBy == nil || *updated.ReviewedBy != "doc-1" {
		t.Errorf("reviewer not recorded: %v", updated.ReviewedBy)
	}
	if updated.ReviewedAt == nil {
		t.Error("reviewedAt not recorded")
	}
}

func TestSubmitReview_JuniorConfirmsCloses(t *testing.T) {
	svc, _ := newTestService()
	c := intakeCase(t, svc)

	updated, err := svc.SubmitReview(context.Background(), c.ID, "doc-1", auth.RoleJuniorDoctor,
		DecisionConfirmed, "Severe stenosis, proximal LAD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusClosedStenosisConfirmed {
		t.Errorf("expected %s, got %s", StatusClosedStenosisConfirmed, updated.Status)
	}
}

func TestSubmitReview_SeniorOnJuniorStage_Forbidden(t *testing.T) {
	svc, repo := newTestService()
	c := intakeCase(t, svc)

	_, err := svc.SubmitReview(context.Background(), c.ID, "doc-2", auth.RoleSeniorDoctor,
		DecisionConfirmed, "looks severe")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.Status != StatusPendingJuniorReview {
		t.Errorf("status must be unchanged after rejected transition, got %s", stored.Status)
	}
}

func TestSubmitReview_JuniorOnSeniorStage_Forbidden(t *testing.T) {
	svc, repo := newTestService()
	c := &Case{PatientUID: "p1", PatientName: "Jane Doe", PatientEmail: "jane@example.com",
		SubmittedBy: "clinic-1", AssetRef: "ref1", Status: StatusPendingSeniorReview}
	repo.seed(c)

	_, err := svc.SubmitReview(context.Background(), c.ID, "doc-1", auth.RoleJuniorDoctor,
		DecisionRejected, "nothing to see")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSubmitReview_SeniorOnSeniorStage(t *testing.T) {
	svc, repo := newTestService()
	c := &Case{PatientUID: "p1", PatientName: "Jane Doe", PatientEmail: "jane@example.com",
		SubmittedBy: "clinic-1", AssetRef: "ref1", Status: StatusPendingSeniorReview}
	repo.seed(c)

	updated, err := svc.SubmitReview(context.Background(), c.ID, "doc-2", auth.RoleSeniorDoctor,
		DecisionConfirmed, "confirmed on review")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusClosedStenosisConfirmed {
		t.Errorf("expected %s, got %s", StatusClosedStenosisConfirmed, updated.Status)
	}
}

func TestSubmitReview_NonDoctorRoles_Forbidden(t *testing.T) {
	svc, _ := newTestService()
	c := intakeCase(t, svc)

	for _, role := range []string{auth.RoleClinic, auth.RolePatient, "admin", ""} {
		_, err := svc.SubmitReview(context.Background(), c.ID, "u1", role,
			DecisionConfirmed, "findings")
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("role %q: expected ErrForbidden, got %v", role, err)
		}
	}
}

func TestSubmitReview_Validation(t *testing.T) {
	svc, _ := newTestService()
	c := intakeCase(t, svc)

	if _, err := svc.SubmitReview(context.Background(), c.ID, "doc-1", auth.RoleJuniorDoctor,
		Decision("maybe"), "findings"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for bad decision, got %v", err)
	}
	if _, err := svc.SubmitReview(context.Background(), c.ID, "doc-1", auth.RoleJuniorDoctor,
		DecisionConfirmed, "   "); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for blank findings, got %v", err)
	}
}

func TestSubmitReview_UnknownCase(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.SubmitReview(context.Background(), uuid.New(), "doc-1", auth.RoleJuniorDoctor,
		DecisionConfirmed, "findings")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitReview_TerminalIsAbsorbing(t *testing.T) {
	svc, repo := newTestService()
	c := intakeCase(t, svc)

	if _, err := svc.SubmitReview(context.Background(), c.ID, "doc-1", auth.RoleJuniorDoctor,
		DecisionRejected, "No visible stenosis"); err != nil {
		t.Fatalf("first review: %v", err)
	}

	for _, role := range []string{auth.RoleJuniorDoctor, auth.RoleSeniorDoctor} {
		_, err := svc.SubmitReview(context.Background(), c.ID, "doc-9", role,
			DecisionConfirmed, "second opinion")
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("role %s: expected ErrForbidden on closed case, got %v", role, err)
		}
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.Status != StatusClosedNoStenosis {
		t.Errorf("terminal status changed: %s", stored.Status)
	}
	if stored.Findings == nil || *stored.Findings != "No visible stenosis" {
		t.Errorf("findings changed after close: %v", stored.Findings)
	}
}

func TestSubmitReview_RaceExactlyOneWins(t *testing.T) {
	svc, repo := newTestService()
	c := intakeCase(t, svc)

	type result struct {
		decision Decision
		err      error
	}
	results := make(chan result, 2)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i, d := range []Decision{DecisionConfirmed, DecisionRejected} {
		wg.Add(1)
		go func(uid string, d Decision) {
			defer wg.Done()
			<-start
			_, err := svc.SubmitReview(context.Background(), c.ID, uid, auth.RoleJuniorDoctor, d, "racing review")
			results <- result{decision: d, err: err}
		}(fmt.Sprintf("doc-%d", i), d)
	}
	close(start)
	wg.Wait()
	close(results)

	var winners []Decision
	var losses int
	for r := range results {
		if r.err == nil {
			winners = append(winners, r.decision)
			continue
		}
		// The loser sees Conflict when it lost the compare-and-set, or
		// Forbidden when its re-read already observed the closed case.
		if errors.Is(r.err, ErrConflict) || errors.Is(r.err, ErrForbidden) {
			losses++
			continue
		}
		t.Errorf("unexpected loser error: %v", r.err)
	}
	if len(winners) != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner and one loser, got %d winners, %d losers", len(winners), losses)
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.Status != winners[0].Closes() {
		t.Errorf("final status %s does not match winner's decision %s", stored.Status, winners[0])
	}
}

// -- Model report --

func TestAttachModelReport_WriteOnce(t *testing.T) {
	svc, _ := newTestService()
	c := intakeCase(t, svc)

	if err := svc.AttachModelReport(context.Background(), c.ID, "report v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.AttachModelReport(context.Background(), c.ID, "report v2"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on second attach, got %v", err)
	}

	got, _ := svc.GetCase(context.Background(), c.ID)
	if got.ModelReport == nil || *got.ModelReport != "report v1" {
		t.Errorf("model report altered: %v", got.ModelReport)
	}
}

func TestAttachModelReport_RejectedAfterClose(t *testing.T) {
	svc, _ := newTestService()
	c := intakeCase(t, svc)

	if _, err := svc.SubmitReview(context.Background(), c.ID, "doc-1", auth.RoleJuniorDoctor,
		DecisionRejected, "clear"); err != nil {
		t.Fatalf("review: %v", err)
	}
	if err := svc.AttachModelReport(context.Background(), c.ID, "late report"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict after close, got %v", err)
	}
}

// -- Queries --

func TestQueue_FIFOAndStageScoped(t *testing.T) {
	svc, repo := newTestService()
	first := intakeCase(t, svc)
	second := intakeCase(t, svc)
	senior := &Case{PatientUID: "p1", SubmittedBy: "clinic-1", AssetRef: "r", Status: StatusPendingSeniorReview}
	repo.seed(senior)

	queue, err := svc.Queue(context.Background(), auth.RoleJuniorDoctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("expected 2 queued cases, got %d", len(queue))
	}
	if queue[0].ID != first.ID || queue[1].ID != second.ID {
		t.Error("queue is not oldest-first")
	}

	seniorQueue, err := svc.Queue(context.Background(), auth.RoleSeniorDoctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seniorQueue) != 1 || seniorQueue[0].ID != senior.ID {
		t.Errorf("senior queue mismatch: %+v", seniorQueue)
	}
}

func TestQueue_NonDoctorForbidden(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Queue(context.Background(), auth.RoleClinic); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestListForClinic_OwnSubmissionsOnly(t *testing.T) {
	svc, repo := newTestService()
	mine := intakeCase(t, svc)
	other := &Case{PatientUID: "p1", SubmittedBy: "clinic-2", AssetRef: "r", Status: StatusPendingJuniorReview}
	repo.seed(other)

	list, err := svc.ListForClinic(context.Background(), "clinic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Errorf("clinic view leaked foreign cases: %+v", list)
	}
}

func TestHistoryForPatient_Labels(t *testing.T) {
	svc, _ := newTestService()
	c := intakeCase(t, svc)

	if _, err := svc.SubmitReview(context.Background(), c.ID, "doc-1", auth.RoleJuniorDoctor,
		DecisionRejected, "No visible stenosis"); err != nil {
		t.Fatalf("review: %v", err)
	}

	history, err := svc.HistoryForPatient(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	entry := history[0]
	if entry.Status != StatusClosedNoStenosis {
		t.Errorf("unexpected status: %s", entry.Status)
	}
	if entry.StatusLabel != "Completed: No Stenosis Found." {
		t.Errorf("unexpected label: %q", entry.StatusLabel)
	}
	if entry.Findings == nil || *entry.Findings != "No visible stenosis" {
		t.Errorf("findings missing from history: %v", entry.Findings)
	}
}
