package inpatient

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

// AdmitInput is the payload for admitting a patient to a ward.
type AdmitInput struct {
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
	EncounterID uuid.UUID `json:"encounter_id" validate:"required"`
	Ward        string    `json:"ward" validate:"required"`
	Bed         *string   `json:"bed,omitempty"`
	AdmittedBy  uuid.UUID `json:"admitted_by" validate:"required"`
}

// Admit opens a stay in ADMITTED. An encounter can have at most one stay
// that is not discharged.
func (s *Service) Admit(ctx context.Context, in AdmitInput) (*Stay, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetActiveByEncounter(ctx, in.EncounterID)
	if err == nil && existing != nil {
		return nil, lifecycle.NewError(lifecycle.CodeInvalidTransition,
			"encounter %s already has an active stay %s", in.EncounterID, existing.ID)
	}
	if err != nil && lifecycle.CodeOf(err) != lifecycle.CodeNotFound {
		return nil, err
	}
	stay := &Stay{
		PatientID:   in.PatientID,
		EncounterID: in.EncounterID,
		Ward:        in.Ward,
		Bed:         in.Bed,
		Status:      StatusAdmitted,
		AdmittedBy:  in.AdmittedBy,
		AdmittedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, stay); err != nil {
		return nil, err
	}
	return stay, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Stay, error) {
	stay, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lifecycle.NotFound(EntityType, id.String())
	}
	return stay, nil
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Stay, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) GetStatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusChange, error) {
	return s.repo.GetStatusHistory(ctx, id)
}

// Transition moves a stay through its lifecycle. A transfer re-homes the
// patient to the ward (and optional bed) named in the request fields; a
// discharge stamps the time and keeps any note.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req lifecycle.Request) (*Stay, error) {
	var stay *Stay
	var evt *lifecycle.Event

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		stay, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return lifecycle.NotFound(EntityType, id.String())
		}

		evt, err = s.engine.Apply(ctx, stay, req)
		if err != nil {
			return err
		}

		switch req.Target {
		case StatusTransferred:
			stay.Ward = req.Fields["ward"]
			if bed := req.Fields["bed"]; bed != "" {
				stay.Bed = &bed
			} else {
				stay.Bed = nil
			}
		case StatusDischarged:
			now := time.Now().UTC()
			stay.DischargedAt = &now
			if note := req.Fields["note"]; note != "" {
				stay.DischargeNote = &note
			}
		}

		if err := s.repo.UpdateStatus(ctx, stay); err != nil {
			return err
		}
		return s.repo.AddStatusChange(ctx, &StatusChange{
			StayID:     stay.ID,
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
	return stay, nil
}
