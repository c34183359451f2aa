package booking

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
	"github.com/hospitalos/hms/internal/platform/db"
	"github.com/hospitalos/hms/internal/platform/events"
)

// EncounterCreator creates the visit record when a booking is confirmed.
// Implementations must be idempotent on bookingID so a retried confirm never
// produces a second encounter.
type EncounterCreator interface {
	CreateFromBooking(ctx context.Context, bookingID, patientID, practitionerID uuid.UUID, start time.Time) (uuid.UUID, error)
}

type Service struct {
	repo       Repository
	engine     *lifecycle.Engine
	runner     db.TxRunner
	bus        *events.Bus
	encounters EncounterCreator
	validate   *validator.Validate
}

func NewService(repo Repository, engine *lifecycle.Engine, runner db.TxRunner, bus *events.Bus, encounters EncounterCreator) *Service {
	return &Service{
		repo:       repo,
		engine:     engine,
		runner:     runner,
		bus:        bus,
		encounters: encounters,
		validate:   validator.New(),
	}
}

// CreateInput is the payload for creating a booking.
type CreateInput struct {
	PatientID      uuid.UUID  `json:"patient_id" validate:"required"`
	PractitionerID uuid.UUID  `json:"practitioner_id" validate:"required"`
	Source         string     `json:"source" validate:"required,oneof=online phone walk_in"`
	ScheduledStart time.Time  `json:"scheduled_start" validate:"required"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
	Complaint      *string    `json:"complaint,omitempty"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Booking, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	b := &Booking{
		PatientID:      in.PatientID,
		PractitionerID: in.PractitionerID,
		Source:         in.Source,
		Status:         StatusPending,
		ScheduledStart: in.ScheduledStart,
		ScheduledEnd:   in.ScheduledEnd,
		Complaint:      in.Complaint,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lifecycle.NotFound(EntityType, id.String())
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Booking, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) GetStatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusChange, error) {
	return s.repo.GetStatusHistory(ctx, id)
}

// AllowedTransitions lists the outgoing edges from the booking's current
// status.
func (s *Service) AllowedTransitions(ctx context.Context, id uuid.UUID) ([]lifecycle.Edge, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Registry().AllowedTransitions(EntityType, b.Status), nil
}

// Transition moves a booking through its lifecycle. Confirming a booking
// creates the encounter in the same transaction; re-confirming an already
// confirmed booking is a no-op so clients can safely retry.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req lifecycle.Request) (*Booking, error) {
	var b *Booking
	var evt *lifecycle.Event

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return lifecycle.NotFound(EntityType, id.String())
		}

		if req.Target == StatusConfirmed && b.Status == StatusConfirmed {
			return nil
		}

		evt, err = s.engine.Apply(ctx, b, req)
		if err != nil {
			return err
		}

		if req.Target == StatusCancelled {
			reason := req.Fields["reason"]
			b.CancellationReason = &reason
		}

		if req.Target == StatusConfirmed && s.encounters != nil {
			encID, err := s.encounters.CreateFromBooking(ctx, b.ID, b.PatientID, b.PractitionerID, b.ScheduledStart)
			if err != nil {
				return err
			}
			b.EncounterID = &encID
		}

		if err := s.repo.UpdateStatus(ctx, b); err != nil {
			return err
		}
		return s.repo.AddStatusChange(ctx, &StatusChange{
			BookingID:  b.ID,
			FromStatus: evt.FromStatus,
			ToStatus:   evt.ToStatus,
			ActorID:    evt.ActorID,
			ActorRole:  evt.ActorRole,
			CreatedAt:  evt.Timestamp,
		})
	})
	if err != nil {
		return nil, err
	}
	if evt != nil && s.bus != nil {
		s.bus.Publish(*evt)
	}
	return b, nil
}
