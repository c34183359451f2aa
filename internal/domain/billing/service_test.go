package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// mockRepo is an in-memory Repository for tests.
type mockRepo struct {
	invoices map[uuid.UUID]*Invoice
	items    map[uuid.UUID][]*Item
	history  []*StatusChange
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		invoices: make(map[uuid.UUID]*Invoice),
		items:    make(map[uuid.UUID][]*Item),
	}
}

func (m *mockRepo) Create(_ context.Context, inv *Invoice, items []*Item) error {
	inv.ID = uuid.New()
	inv.Version = 1
	cp := *inv
	m.invoices[inv.ID] = &cp
	for _, it := range items {
		it.ID = uuid.New()
		it.InvoiceID = inv.ID
		icp := *it
		m.items[inv.ID] = append(m.items[inv.ID], &icp)
	}
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, lifecycle.NotFound(EntityType, id.String())
	}
	cp := *inv
	return &cp, nil
}

func (m *mockRepo) GetActiveByEncounter(_ context.Context, encounterID uuid.UUID) (*Invoice, error) {
	for _, inv := range m.invoices {
		if inv.EncounterID == encounterID && inv.Status != StatusCancelled {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, lifecycle.NotFound(EntityType, encounterID.String())
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	var out []*Invoice
	for _, inv := range m.invoices {
		if inv.PatientID == patientID {
			out = append(out, inv)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) List(_ context.Context, status string, limit, offset int) ([]*Invoice, int, error) {
	var out []*Invoice
	for _, inv := range m.invoices {
		if status == "" || inv.Status == status {
			out = append(out, inv)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListItems(_ context.Context, invoiceID uuid.UUID) ([]*Item, error) {
	return m.items[invoiceID], nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, inv *Invoice) error {
	stored, ok := m.invoices[inv.ID]
	if !ok {
		return lifecycle.NotFound(EntityType, inv.ID.String())
	}
	if stored.Version != inv.Version-1 {
		return lifecycle.VersionConflict(inv.Version-1, stored.Version)
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *mockRepo) AddStatusChange(_ context.Context, sc *StatusChange) error {
	sc.ID = uuid.New()
	m.history = append(m.history, sc)
	return nil
}

func (m *mockRepo) GetStatusHistory(_ context.Context, invoiceID uuid.UUID) ([]*StatusChange, error) {
	var out []*StatusChange
	for _, sc := range m.history {
		if sc.InvoiceID == invoiceID {
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

func cashier() lifecycle.Actor {
	return lifecycle.Actor{ID: "rec-1", Role: "receptionist"}
}

func validGenerate() GenerateInput {
	return GenerateInput{
		EncounterID:     uuid.New(),
		PatientID:       uuid.New(),
		CoveragePercent: 80,
		Items: []ItemInput{
			{Kind: ItemService, Label: "consultation", Quantity: 1, UnitPrice: 5000},
			{Kind: ItemMedicine, Label: "amoxicillin", Quantity: 2, UnitPrice: 1500},
		},
	}
}

func TestGenerate_ComputesCoverageSplit(t *testing.T) {
	svc := newTestService(newMockRepo())

	v, err := svc.Generate(context.Background(), validGenerate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != StatusPending {
		t.Errorf("expected PENDING, got %s", v.Status)
	}
	if v.TotalAmount != 8000 {
		t.Errorf("expected total 8000, got %d", v.TotalAmount)
	}
	if v.CoveredAmount != 6400 {
		t.Errorf("expected covered 6400, got %d", v.CoveredAmount)
	}
	if v.PatientShare != 1600 {
		t.Errorf("expected patient share 1600, got %d", v.PatientShare)
	}
	if len(v.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(v.Items))
	}
	if v.InvoiceNumber == "" {
		t.Error("expected an invoice number")
	}
}

func TestGenerate_RejectsEmptyItems(t *testing.T) {
	svc := newTestService(newMockRepo())

	in := validGenerate()
	in.Items = nil
	if _, err := svc.Generate(context.Background(), in); err == nil {
		t.Error("expected validation error for empty item list")
	}
}

func TestGenerate_DuplicateRejected(t *testing.T) {
	svc := newTestService(newMockRepo())
	in := validGenerate()

	if _, err := svc.Generate(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Generate(context.Background(), in)
	if lifecycle.CodeOf(err) != lifecycle.CodeDuplicateInvoice {
		t.Errorf("expected duplicate_invoice, got %v", err)
	}
}

// failingLookupRepo simulates an infrastructure failure on the duplicate check.
type failingLookupRepo struct {
	*mockRepo
	err error
}

func (r *failingLookupRepo) GetActiveByEncounter(_ context.Context, _ uuid.UUID) (*Invoice, error) {
	return nil, r.err
}

func TestGenerate_LookupFailurePropagates(t *testing.T) {
	lookupErr := errors.New("connection reset")
	svc := newTestService(&failingLookupRepo{mockRepo: newMockRepo(), err: lookupErr})

	_, err := svc.Generate(context.Background(), validGenerate())
	if !errors.Is(err, lookupErr) {
		t.Errorf("expected the lookup error back, got %v", err)
	}
}

func TestGenerate_AllowedAfterCancellation(t *testing.T) {
	svc := newTestService(newMockRepo())
	in := validGenerate()

	v, _ := svc.Generate(context.Background(), in)
	if _, err := svc.Transition(context.Background(), v.ID, lifecycle.Request{
		Target: StatusCancelled,
		Actor:  cashier(),
		Fields: map[string]string{"reason": "wrong encounter"},
	}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := svc.Generate(context.Background(), in); err != nil {
		t.Errorf("regeneration after cancellation should succeed, got %v", err)
	}
}

func TestRecordPayment_PartialThenPaid(t *testing.T) {
	svc := newTestService(newMockRepo())
	v, _ := svc.Generate(context.Background(), validGenerate())

	inv, err := svc.RecordPayment(context.Background(), v.ID, 1000, cashier(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Status != StatusPartial || inv.PaidAmount != 1000 {
		t.Errorf("expected PARTIAL with 1000 paid, got %s with %d", inv.Status, inv.PaidAmount)
	}

	inv, err = svc.RecordPayment(context.Background(), v.ID, 600, cashier(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Status != StatusPaid || inv.PaidAmount != 1600 {
		t.Errorf("expected PAID with 1600 paid, got %s with %d", inv.Status, inv.PaidAmount)
	}
	if inv.PaidAt == nil {
		t.Error("expected paid_at stamped")
	}

	history, _ := svc.GetStatusHistory(context.Background(), v.ID)
	if len(history) != 2 {
		t.Errorf("expected 2 history rows, got %d", len(history))
	}
}

func TestRecordPayment_SuccessivePartialPayments(t *testing.T) {
	svc := newTestService(newMockRepo())
	v, _ := svc.Generate(context.Background(), validGenerate())

	inv, err := svc.RecordPayment(context.Background(), v.ID, 500, cashier(), 0)
	if err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	if inv.Status != StatusPartial {
		t.Errorf("expected PARTIAL, got %s", inv.Status)
	}

	inv, err = svc.RecordPayment(context.Background(), v.ID, 500, cashier(), 0)
	if err != nil {
		t.Fatalf("second installment failed: %v", err)
	}
	if inv.Status != StatusPartial || inv.PaidAmount != 1000 {
		t.Errorf("expected PARTIAL with 1000 paid, got %s with %d", inv.Status, inv.PaidAmount)
	}

	inv, err = svc.RecordPayment(context.Background(), v.ID, 600, cashier(), 0)
	if err != nil {
		t.Fatalf("settling payment failed: %v", err)
	}
	if inv.Status != StatusPaid || inv.PaidAt == nil {
		t.Errorf("expected PAID with paid_at stamped, got %s", inv.Status)
	}

	history, _ := svc.GetStatusHistory(context.Background(), v.ID)
	if len(history) != 3 {
		t.Errorf("expected 3 history rows, got %d", len(history))
	}
}

func TestRecordPayment_ExactSettlesImmediately(t *testing.T) {
	svc := newTestService(newMockRepo())
	v, _ := svc.Generate(context.Background(), validGenerate())

	inv, err := svc.RecordPayment(context.Background(), v.ID, v.PatientShare, cashier(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Status != StatusPaid {
		t.Errorf("expected PAID, got %s", inv.Status)
	}
}

func TestRecordPayment_OverpaymentRejected(t *testing.T) {
	svc := newTestService(newMockRepo())
	v, _ := svc.Generate(context.Background(), validGenerate())

	_, err := svc.RecordPayment(context.Background(), v.ID, v.PatientShare+1, cashier(), 0)
	if lifecycle.CodeOf(err) != lifecycle.CodeInvalidTransition {
		t.Errorf("expected invalid_transition for overpayment, got %v", err)
	}
}

func TestRecordPayment_RoleEnforced(t *testing.T) {
	svc := newTestService(newMockRepo())
	v, _ := svc.Generate(context.Background(), validGenerate())

	_, err := svc.RecordPayment(context.Background(), v.ID, 100,
		lifecycle.Actor{ID: "doc-1", Role: "doctor"}, 0)
	if lifecycle.CodeOf(err) != lifecycle.CodeUnauthorized {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestTransition_CancelRequiresReason(t *testing.T) {
	svc := newTestService(newMockRepo())
	v, _ := svc.Generate(context.Background(), validGenerate())

	_, err := svc.Transition(context.Background(), v.ID, lifecycle.Request{
		Target: StatusCancelled,
		Actor:  cashier(),
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeMissingField {
		t.Errorf("expected missing_field, got %v", err)
	}
}

func TestTransition_PaidIsTerminal(t *testing.T) {
	svc := newTestService(newMockRepo())
	v, _ := svc.Generate(context.Background(), validGenerate())

	if _, err := svc.RecordPayment(context.Background(), v.ID, v.PatientShare, cashier(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.Transition(context.Background(), v.ID, lifecycle.Request{
		Target: StatusCancelled,
		Actor:  cashier(),
		Fields: map[string]string{"reason": "oops"},
	})
	if lifecycle.CodeOf(err) != lifecycle.CodeInvalidTransition {
		t.Errorf("expected invalid_transition from PAID, got %v", err)
	}
}
