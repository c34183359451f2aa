package lab

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// mockRepo is an in-memory Repository for tests.
type mockRepo struct {
	tests       map[uuid.UUID]*TestOrder
	imaging     map[uuid.UUID]*ImagingOrder
	diagnostics map[uuid.UUID]*DiagnosticOrder
	results     map[uuid.UUID][]*Result
	history     []*StatusChange
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		tests:       make(map[uuid.UUID]*TestOrder),
		imaging:     make(map[uuid.UUID]*ImagingOrder),
		diagnostics: make(map[uuid.UUID]*DiagnosticOrder),
		results:     make(map[uuid.UUID][]*Result),
	}
}

func (m *mockRepo) CreateTestOrder(_ context.Context, o *TestOrder) error {
	o.ID = uuid.New()
	o.Version = 1
	cp := *o
	m.tests[o.ID] = &cp
	return nil
}

func (m *mockRepo) GetTestOrder(_ context.Context, id uuid.UUID) (*TestOrder, error) {
	o, ok := m.tests[id]
	if !ok {
		return nil, lifecycle.NotFound(TestOrderType, id.String())
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) ListTestOrders(_ context.Context, status string, limit, offset int) ([]*TestOrder, int, error) {
	var out []*TestOrder
	for _, o := range m.tests {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListTestOrdersByEncounter(_ context.Context, encounterID uuid.UUID) ([]*TestOrder, error) {
	var out []*TestOrder
	for _, o := range m.tests {
		if o.EncounterID == encounterID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateTestOrderStatus(_ context.Context, o *TestOrder) error {
	stored, ok := m.tests[o.ID]
	if !ok {
		return lifecycle.NotFound(TestOrderType, o.ID.String())
	}
	if stored.Version != o.Version-1 {
		return lifecycle.VersionConflict(o.Version-1, stored.Version)
	}
	cp := *o
	m.tests[o.ID] = &cp
	return nil
}

func (m *mockRepo) AddResults(_ context.Context, orderID uuid.UUID, results []*Result) error {
	for _, res := range results {
		res.ID = uuid.New()
		res.OrderID = orderID
		cp := *res
		m.results[orderID] = append(m.results[orderID], &cp)
	}
	return nil
}

func (m *mockRepo) ListResults(_ context.Context, orderID uuid.UUID) ([]*Result, error) {
	return m.results[orderID], nil
}

func (m *mockRepo) CreateImagingOrder(_ context.Context, o *ImagingOrder) error {
	o.ID = uuid.New()
	o.Version = 1
	cp := *o
	m.imaging[o.ID] = &cp
	return nil
}

func (m *mockRepo) GetImagingOrder(_ context.Context, id uuid.UUID) (*ImagingOrder, error) {
	o, ok := m.imaging[id]
	if !ok {
		return nil, lifecycle.NotFound(ImagingOrderType, id.String())
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) ListImagingOrders(_ context.Context, status string, limit, offset int) ([]*ImagingOrder, int, error) {
	var out []*ImagingOrder
	for _, o := range m.imaging {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) UpdateImagingOrderStatus(_ context.Context, o *ImagingOrder) error {
	stored, ok := m.imaging[o.ID]
	if !ok {
		return lifecycle.NotFound(ImagingOrderType, o.ID.String())
	}
	if stored.Version != o.Version-1 {
		return lifecycle.VersionConflict(o.Version-1, stored.Version)
	}
	cp := *o
	m.imaging[o.ID] = &cp
	return nil
}

func (m *mockRepo) CreateDiagnosticOrder(_ context.Context, o *DiagnosticOrder) error {
	o.ID = uuid.New()
	o.Version = 1
	cp := *o
	m.diagnostics[o.ID] = &cp
	return nil
}

func (m *mockRepo) GetDiagnosticOrder(_ context.Context, id uuid.UUID) (*DiagnosticOrder, error) {
	o, ok := m.diagnostics[id]
	if !ok {
		return nil, lifecycle.NotFound(DiagnosticOrderType, id.String())
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) ListDiagnosticOrders(_ context.Context, status string, limit, offset int) ([]*DiagnosticOrder, int, error) {
	var out []*DiagnosticOrder
	for _, o := range m.diagnostics {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) UpdateDiagnosticOrderStatus(_ context.Context, o *DiagnosticOrder) error {
	stored, ok := m.diagnostics[o.ID]
	if !ok {
		return lifecycle.NotFound(DiagnosticOrderType, o.ID.String())
	}
	if stored.Version != o.Version-1 {
		return lifecycle.VersionConflict(o.Version-1, stored.Version)
	}
	cp := *o
	m.diagnostics[o.ID] = &cp
	return nil
}

func (m *mockRepo) AddStatusChange(_ context.Context, sc *StatusChange) error {
	sc.ID = uuid.New()
	m.history = append(m.history, sc)
	return nil
}

func (m *mockRepo) GetStatusHistory(_ context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	var out []*StatusChange
	for _, sc := range m.history {
		if sc.OrderID == orderID {
			out = append(out, sc)
		}
	}
	return out, nil
}

// passRunner runs the function without a real transaction.
type passRunner struct{}

func (passRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(repo Repository) *Service {
	reg := lifecycle.NewRegistry()
	RegisterLifecycle(reg)
	return NewService(repo, lifecycle.NewEngine(reg), passRunner{}, nil)
}

func technician() lifecycle.Actor {
	return lifecycle.Actor{ID: "tech-1", Role: "lab_technician"}
}

func labNurse() lifecycle.Actor {
	return lifecycle.Actor{ID: "nurse-1", Role: "nurse"}
}

func validTestOrder() OrderTestInput {
	return OrderTestInput{
		EncounterID: uuid.New(),
		PatientID:   uuid.New(),
		TestCode:    "CBC",
		TestName:    "complete blood count",
		Priority:    "routine",
		OrderedBy:   uuid.New(),
	}
}

func sampleResults() []ResultInput {
	return []ResultInput{
		{Parameter: "WBC", Value: "6.1", Unit: "10^9/L", ReferenceRange: "4.0-11.0"},
		{Parameter: "HGB", Value: "9.2", Unit: "g/dL", ReferenceRange: "13.5-17.5", Abnormal: true},
	}
}

func advance(t *testing.T, svc *Service, id uuid.UUID, actor lifecycle.Actor, targets ...string) *TestOrder {
	t.Helper()
	var o *TestOrder
	var err error
	for _, target := range targets {
		o, err = svc.TransitionTest(context.Background(), id, lifecycle.Request{
			Target: target,
			Actor:  actor,
		})
		if err != nil {
			t.Fatalf("transition to %s failed: %v", target, err)
		}
	}
	return o
}

func TestOrderTest(t *testing.T) {
	svc := newTestService(newMockRepo())

	o, err := svc.OrderTest(context.Background(), validTestOrder())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != StatusOrdered {
		t.Errorf("expected ORDERED, got %s", o.Status)
	}
}

func TestOrderTest_InvalidPriority(t *testing.T) {
	svc := newTestService(newMockRepo())

	in := validTestOrder()
	in.Priority = "whenever"
	if _, err := svc.OrderTest(context.Background(), in); err == nil {
		t.Error("expected validation error for unknown priority")
	}
}

func TestTestOrder_FullPipeline(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderTest(context.Background(), validTestOrder())

	got := advance(t, svc, o.ID, labNurse(), StatusCollected)
	if got.CollectedAt == nil {
		t.Error("expected collected_at stamped")
	}

	advance(t, svc, o.ID, technician(), StatusReceived, StatusInProgress)

	if _, err := svc.AttachResults(context.Background(), o.ID, sampleResults()); err != nil {
		t.Fatalf("attach results failed: %v", err)
	}

	got = advance(t, svc, o.ID, technician(), StatusCompleted, StatusVerified)
	if got.Status != StatusVerified || got.VerifiedAt == nil {
		t.Errorf("expected VERIFIED with timestamp, got %s", got.Status)
	}

	view, _ := svc.GetTestOrder(context.Background(), o.ID)
	if len(view.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(view.Results))
	}

	history, _ := svc.GetStatusHistory(context.Background(), o.ID)
	if len(history) != 5 {
		t.Errorf("expected 5 history rows, got %d", len(history))
	}
}

func TestTestOrder_CannotSkipStages(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderTest(context.Background(), validTestOrder())

	_, err := svc.TransitionTest(context.Background(), o.ID, lifecycle.Request{
		Target: StatusInProgress,
		Actor:  technician(),
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeInvalidTransition {
		t.Errorf("expected invalid_transition for ORDERED→IN_PROGRESS, got %v", err)
	}
}

func TestTestOrder_CompleteRequiresResults(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderTest(context.Background(), validTestOrder())
	advance(t, svc, o.ID, technician(), StatusCollected, StatusReceived, StatusInProgress)

	_, err := svc.TransitionTest(context.Background(), o.ID, lifecycle.Request{
		Target: StatusCompleted,
		Actor:  technician(),
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeOpenDependency {
		t.Errorf("expected open_dependency without results, got %v", err)
	}
}

func TestTestOrder_RejectRequiresReason(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderTest(context.Background(), validTestOrder())
	advance(t, svc, o.ID, labNurse(), StatusCollected)

	_, err := svc.TransitionTest(context.Background(), o.ID, lifecycle.Request{
		Target: StatusRejected,
		Actor:  technician(),
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeMissingField {
		t.Errorf("expected missing_field, got %v", err)
	}

	got, err := svc.TransitionTest(context.Background(), o.ID, lifecycle.Request{
		Target: StatusRejected,
		Actor:  technician(),
		Fields: map[string]string{"reason": "hemolyzed sample"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RejectionReason == nil || *got.RejectionReason != "hemolyzed sample" {
		t.Error("expected rejection reason recorded")
	}
}

func TestTestOrder_CannotRejectAfterCompletion(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderTest(context.Background(), validTestOrder())
	advance(t, svc, o.ID, technician(), StatusCollected, StatusReceived, StatusInProgress)
	svc.AttachResults(context.Background(), o.ID, sampleResults())
	advance(t, svc, o.ID, technician(), StatusCompleted)

	_, err := svc.TransitionTest(context.Background(), o.ID, lifecycle.Request{
		Target: StatusRejected,
		Actor:  technician(),
		Fields: map[string]string{"reason": "too late"},
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeInvalidTransition {
		t.Errorf("expected invalid_transition, got %v", err)
	}
}

func TestTestOrder_NurseCannotVerify(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderTest(context.Background(), validTestOrder())
	advance(t, svc, o.ID, technician(), StatusCollected, StatusReceived, StatusInProgress)
	svc.AttachResults(context.Background(), o.ID, sampleResults())
	advance(t, svc, o.ID, technician(), StatusCompleted)

	_, err := svc.TransitionTest(context.Background(), o.ID, lifecycle.Request{
		Target: StatusVerified,
		Actor:  labNurse(),
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeUnauthorized {
		t.Errorf("expected unauthorized for nurse verifying, got %v", err)
	}
}

func TestAttachResults_OnlyInProgress(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderTest(context.Background(), validTestOrder())

	_, err := svc.AttachResults(context.Background(), o.ID, sampleResults())
	if lifecycle.CodeOf(err) != lifecycle.CodeInvalidTransition {
		t.Errorf("expected invalid_transition attaching to ORDERED, got %v", err)
	}
}

func validImagingOrder() OrderImagingInput {
	return OrderImagingInput{
		EncounterID: uuid.New(),
		PatientID:   uuid.New(),
		Modality:    "xray",
		BodySite:    "chest",
		OrderedBy:   uuid.New(),
	}
}

func TestImaging_ReportAndVerify(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderImaging(context.Background(), validImagingOrder())
	doctor := lifecycle.Actor{ID: "doc-1", Role: "doctor"}

	for _, target := range []string{StatusInProgress, StatusCompleted} {
		if _, err := svc.TransitionImaging(context.Background(), o.ID, lifecycle.Request{
			Target: target, Actor: technician(),
		}); err != nil {
			t.Fatalf("transition to %s failed: %v", target, err)
		}
	}

	got, err := svc.TransitionImaging(context.Background(), o.ID, lifecycle.Request{
		Target: StatusReported,
		Actor:  doctor,
		Fields: map[string]string{"report": "no acute findings"},
	})
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if got.Report == nil || *got.Report != "no acute findings" {
		t.Error("expected report text stored")
	}

	got, err = svc.TransitionImaging(context.Background(), o.ID, lifecycle.Request{
		Target: StatusVerified, Actor: doctor,
	})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if got.Status != StatusVerified || got.VerifiedAt == nil {
		t.Errorf("expected VERIFIED with timestamp, got %s", got.Status)
	}
}

func TestImaging_ReportRequiresText(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderImaging(context.Background(), validImagingOrder())

	for _, target := range []string{StatusInProgress, StatusCompleted} {
		svc.TransitionImaging(context.Background(), o.ID, lifecycle.Request{
			Target: target, Actor: technician(),
		})
	}

	_, err := svc.TransitionImaging(context.Background(), o.ID, lifecycle.Request{
		Target: StatusReported,
		Actor:  lifecycle.Actor{ID: "doc-1", Role: "doctor"},
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeMissingField {
		t.Errorf("expected missing_field without report, got %v", err)
	}
}

func validDiagnosticOrder() OrderDiagnosticInput {
	return OrderDiagnosticInput{
		EncounterID: uuid.New(),
		PatientID:   uuid.New(),
		Procedure:   "ecg",
		OrderedBy:   uuid.New(),
	}
}

func TestDiagnostic_ReportAndVerify(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderDiagnostic(context.Background(), validDiagnosticOrder())
	doctor := lifecycle.Actor{ID: "doc-1", Role: "doctor"}

	for _, target := range []string{StatusInProgress, StatusCompleted} {
		if _, err := svc.TransitionDiagnostic(context.Background(), o.ID, lifecycle.Request{
			Target: target, Actor: technician(),
		}); err != nil {
			t.Fatalf("transition to %s failed: %v", target, err)
		}
	}

	got, err := svc.TransitionDiagnostic(context.Background(), o.ID, lifecycle.Request{
		Target: StatusReported,
		Actor:  doctor,
		Fields: map[string]string{"report": "sinus rhythm, no ST changes"},
	})
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if got.Report == nil || *got.Report != "sinus rhythm, no ST changes" {
		t.Error("expected report text stored")
	}

	got, err = svc.TransitionDiagnostic(context.Background(), o.ID, lifecycle.Request{
		Target: StatusVerified, Actor: doctor,
	})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if got.Status != StatusVerified || got.VerifiedAt == nil {
		t.Errorf("expected VERIFIED with timestamp, got %s", got.Status)
	}
}

func TestDiagnostic_ReportRequiresText(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderDiagnostic(context.Background(), validDiagnosticOrder())

	for _, target := range []string{StatusInProgress, StatusCompleted} {
		svc.TransitionDiagnostic(context.Background(), o.ID, lifecycle.Request{
			Target: target, Actor: technician(),
		})
	}

	_, err := svc.TransitionDiagnostic(context.Background(), o.ID, lifecycle.Request{
		Target: StatusReported,
		Actor:  lifecycle.Actor{ID: "doc-1", Role: "doctor"},
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeMissingField {
		t.Errorf("expected missing_field without report, got %v", err)
	}
}

func TestDiagnostic_CancelRequiresReason(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderDiagnostic(context.Background(), validDiagnosticOrder())

	_, err := svc.TransitionDiagnostic(context.Background(), o.ID, lifecycle.Request{
		Target: StatusCancelled,
		Actor:  technician(),
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeMissingField {
		t.Errorf("expected missing_field without reason, got %v", err)
	}

	got, err := svc.TransitionDiagnostic(context.Background(), o.ID, lifecycle.Request{
		Target: StatusCancelled,
		Actor:  technician(),
		Fields: map[string]string{"reason": "patient refused"},
	})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if got.CancellationReason == nil || *got.CancellationReason != "patient refused" {
		t.Error("expected cancellation reason recorded")
	}
}

func TestImaging_CancelOnlyBeforeCompletion(t *testing.T) {
	svc := newTestService(newMockRepo())
	o, _ := svc.OrderImaging(context.Background(), validImagingOrder())

	got, err := svc.TransitionImaging(context.Background(), o.ID, lifecycle.Request{
		Target: StatusCancelled,
		Actor:  technician(),
		Fields: map[string]string{"reason": "duplicate order"},
	})
	if err != nil {
		t.Fatalf("cancel from ORDERED failed: %v", err)
	}
	if got.CancellationReason == nil || *got.CancellationReason != "duplicate order" {
		t.Error("expected cancellation reason recorded")
	}

	o2, _ := svc.OrderImaging(context.Background(), validImagingOrder())
	for _, target := range []string{StatusInProgress, StatusCompleted} {
		svc.TransitionImaging(context.Background(), o2.ID, lifecycle.Request{
			Target: target, Actor: technician(),
		})
	}
	_, err = svc.TransitionImaging(context.Background(), o2.ID, lifecycle.Request{
		Target: StatusCancelled,
		Actor:  technician(),
		Fields: map[string]string{"reason": "too late"},
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeInvalidTransition {
		t.Errorf("expected invalid_transition cancelling COMPLETED, got %v", err)
	}
}
