package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
	"github.com/hospitalos/hms/internal/platform/db"
	"github.com/hospitalos/hms/internal/platform/events"
)

type Service struct {
	repo     Repository
	engine   *lifecycle.Engine
	runner   db.TxRunner
	bus      *events.Bus
	validate *validator.Validate
}

func NewService(repo Repository, engine *lifecycle.Engine, runner db.TxRunner, bus *events.Bus) *Service {
	return &Service{
		repo:     repo,
		engine:   engine,
		runner:   runner,
		bus:      bus,
		validate: validator.New(),
	}
}

// ItemInput is one billable line on a new invoice.
type ItemInput struct {
	Kind      string `json:"kind" validate:"required,oneof=medicine service material package"`
	Label     string `json:"label" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
	UnitPrice int64  `json:"unit_price" validate:"min=0"`
}

// GenerateInput is the payload for generating an encounter's invoice.
type GenerateInput struct {
	EncounterID     uuid.UUID   `json:"encounter_id" validate:"required"`
	PatientID       uuid.UUID   `json:"patient_id" validate:"required"`
	CoveragePercent int         `json:"coverage_percent" validate:"min=0,max=100"`
	Items           []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// Generate creates the invoice for an encounter. The duplicate check and the
// insert run in one transaction, so two concurrent generations cannot both
// succeed. An encounter whose previous invoice was cancelled can be invoiced
// again.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*View, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	var inv *Invoice
	var items []*Item

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetActiveByEncounter(ctx, in.EncounterID)
		if err == nil && existing != nil {
			return lifecycle.DuplicateInvoice(in.EncounterID.String())
		}
		if err != nil && lifecycle.CodeOf(err) != lifecycle.CodeNotFound {
			return err
		}

		var total int64
		items = make([]*Item, 0, len(in.Items))
		for _, it := range in.Items {
			amount := int64(it.Quantity) * it.UnitPrice
			total += amount
			items = append(items, &Item{
				Kind:      it.Kind,
				Label:     it.Label,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Amount:    amount,
			})
		}
		covered := total * int64(in.CoveragePercent) / 100

		inv = &Invoice{
			InvoiceNumber:   newInvoiceNumber(),
			EncounterID:     in.EncounterID,
			PatientID:       in.PatientID,
			Status:          StatusPending,
			TotalAmount:     total,
			CoveredAmount:   covered,
			PatientShare:    total - covered,
			CoveragePercent: in.CoveragePercent,
		}
		return s.repo.Create(ctx, inv, items)
	})
	if err != nil {
		return nil, err
	}
	return &View{Invoice: inv, Items: items}, nil
}

func newInvoiceNumber() string {
	id := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("INV-%s-%s", time.Now().UTC().Format("20060102"), id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lifecycle.NotFound(EntityType, id.String())
	}
	items, err := s.repo.ListItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return &View{Invoice: inv, Items: items}, nil
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Invoice, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) GetStatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusChange, error) {
	return s.repo.GetStatusHistory(ctx, id)
}

// RecordPayment applies a payment and derives the resulting status: PAID when
// the cumulative amount settles the patient share, PARTIAL otherwise.
// Overpayment is rejected before the lifecycle engine runs.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, amount int64, actor lifecycle.Actor, expectedVersion int) (*Invoice, error) {
	if amount <= 0 {
		return nil, lifecycle.NewError(lifecycle.CodeMissingField, "payment amount must be positive")
	}

	var inv *Invoice
	var evt *lifecycle.Event

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return lifecycle.NotFound(EntityType, id.String())
		}

		newPaid := inv.PaidAmount + amount
		if newPaid > inv.PatientShare {
			return lifecycle.NewError(lifecycle.CodeInvalidTransition,
				"payment of %d exceeds outstanding balance %d", amount, inv.PatientShare-inv.PaidAmount)
		}

		target := StatusPartial
		if newPaid == inv.PatientShare {
			target = StatusPaid
		}

		evt, err = s.engine.Apply(ctx, inv, lifecycle.Request{
			Target:          target,
			Actor:           actor,
			ExpectedVersion: expectedVersion,
		})
		if err != nil {
			return err
		}

		inv.PaidAmount = newPaid
		if target == StatusPaid {
			now := time.Now().UTC()
			inv.PaidAt = &now
		}

		if err := s.repo.UpdateStatus(ctx, inv); err != nil {
			return err
		}
		return s.repo.AddStatusChange(ctx, statusChangeFrom(inv.ID, evt))
	})
	if err != nil {
		return nil, err
	}
	if evt != nil && s.bus != nil {
		s.bus.Publish(*evt)
	}
	return inv, nil
}

// Transition moves an invoice through its lifecycle directly. Payments should
// go through RecordPayment; this path mainly serves cancellation.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req lifecycle.Request) (*Invoice, error) {
	var inv *Invoice
	var evt *lifecycle.Event

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return lifecycle.NotFound(EntityType, id.String())
		}

		evt, err = s.engine.Apply(ctx, inv, req)
		if err != nil {
			return err
		}

		switch req.Target {
		case StatusCancelled:
			reason := req.Fields["reason"]
			inv.CancellationReason = &reason
		case StatusPaid:
			now := time.Now().UTC()
			inv.PaidAt = &now
			inv.PaidAmount = inv.PatientShare
		}

		if err := s.repo.UpdateStatus(ctx, inv); err != nil {
			return err
		}
		return s.repo.AddStatusChange(ctx, statusChangeFrom(inv.ID, evt))
	})
	if err != nil {
		return nil, err
	}
	if evt != nil && s.bus != nil {
		s.bus.Publish(*evt)
	}
	return inv, nil
}

func statusChangeFrom(invoiceID uuid.UUID, evt *lifecycle.Event) *StatusChange {
	return &StatusChange{
		InvoiceID:  invoiceID,
		FromStatus: evt.FromStatus,
		ToStatus:   evt.ToStatus,
		ActorID:    evt.ActorID,
		ActorRole:  evt.ActorRole,
		CreatedAt:  evt.Timestamp,
	}
}
