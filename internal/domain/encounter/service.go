package encounter

import (
	"context"
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
	orders   OpenOrderCounter
	validate *validator.Validate
}

func NewService(repo Repository, engine *lifecycle.Engine, runner db.TxRunner, bus *events.Bus, orders OpenOrderCounter) *Service {
	return &Service{
		repo:     repo,
		engine:   engine,
		runner:   runner,
		bus:      bus,
		orders:   orders,
		validate: validator.New(),
	}
}

// CreateFromBooking creates the encounter for a confirmed booking. It is
// idempotent: a retried confirm finds the existing row and returns its ID.
func (s *Service) CreateFromBooking(ctx context.Context, bookingID, patientID, practitionerID uuid.UUID, start time.Time) (uuid.UUID, error) {
	existing, err := s.repo.GetByBookingID(ctx, bookingID)
	if err == nil {
		return existing.ID, nil
	}
	if lifecycle.CodeOf(err) != lifecycle.CodeNotFound {
		return uuid.Nil, err
	}

	e := &Encounter{
		BookingID:      &bookingID,
		PatientID:      patientID,
		PractitionerID: practitionerID,
		Status:         StatusPlanned,
		PeriodStart:    start,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return uuid.Nil, err
	}
	return e.ID, nil
}

// CreateInput is the payload for a walk-in encounter with no booking.
type CreateInput struct {
	PatientID      uuid.UUID `json:"patient_id" validate:"required"`
	PractitionerID uuid.UUID `json:"practitioner_id" validate:"required"`
	Department     *string   `json:"department,omitempty"`
}

// CreateWalkIn registers a walk-in visit. The patient is at the desk, so the
// encounter starts ARRIVED rather than PLANNED.
func (s *Service) CreateWalkIn(ctx context.Context, in CreateInput) (*Encounter, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	e := &Encounter{
		PatientID:      in.PatientID,
		PractitionerID: in.PractitionerID,
		Department:     in.Department,
		Status:         StatusArrived,
		PeriodStart:    now,
		ArrivedAt:      &now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lifecycle.NotFound(EntityType, id.String())
	}
	return s.view(ctx, e), nil
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*View, int, error) {
	encs, total, err := s.repo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return s.views(ctx, encs), total, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*View, int, error) {
	encs, total, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return s.views(ctx, encs), total, nil
}

func (s *Service) GetStatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusChange, error) {
	return s.repo.GetStatusHistory(ctx, id)
}

func (s *Service) AllowedTransitions(ctx context.Context, id uuid.UUID) ([]lifecycle.Edge, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lifecycle.NotFound(EntityType, id.String())
	}
	return s.engine.Registry().AllowedTransitions(EntityType, e.Status), nil
}

// Transition moves an encounter through its lifecycle. The discharge guard
// registered on FINISHED re-checks open orders inside this transaction.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req lifecycle.Request) (*View, error) {
	var e *Encounter
	var evt *lifecycle.Event

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		e, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return lifecycle.NotFound(EntityType, id.String())
		}

		evt, err = s.engine.Apply(ctx, e, req)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		switch req.Target {
		case StatusArrived:
			e.ArrivedAt = &now
		case StatusFinished:
			e.PeriodEnd = &now
			if d := req.Fields["disposition"]; d != "" {
				e.Disposition = &d
			}
		case StatusCancelled:
			e.PeriodEnd = &now
			reason := req.Fields["reason"]
			e.CancellationReason = &reason
			if d := req.Fields["disposition"]; d != "" {
				e.Disposition = &d
			}
		}

		if err := s.repo.UpdateStatus(ctx, e); err != nil {
			return err
		}
		return s.repo.AddStatusChange(ctx, &StatusChange{
			EncounterID: e.ID,
			FromStatus:  evt.FromStatus,
			ToStatus:    evt.ToStatus,
			ActorID:     evt.ActorID,
			ActorRole:   evt.ActorRole,
			CreatedAt:   evt.Timestamp,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.Publish(*evt)
	}
	return s.view(ctx, e), nil
}

func (s *Service) view(ctx context.Context, e *Encounter) *View {
	v := &View{
		Encounter:  e,
		CanCheckIn: e.Status == StatusPlanned,
		CanCancel:  e.Status == StatusPlanned || e.Status == StatusArrived,
	}
	if e.Status == StatusArrived || e.Status == StatusInProgress {
		open := 0
		if s.orders != nil {
			if n, err := s.orders.CountOpenByEncounter(ctx, e.ID); err == nil {
				open = n
			} else {
				open = 1 // unknown counts as blocking
			}
		}
		v.CanDischarge = open == 0
	}
	return v
}

func (s *Service) views(ctx context.Context, encs []*Encounter) []*View {
	out := make([]*View, 0, len(encs))
	for _, e := range encs {
		out = append(out, s.view(ctx, e))
	}
	return out
}
