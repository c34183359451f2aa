package medication

import (
	"context"

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

// OrderInput is one drug line inside a group (or a standalone order).
type OrderInput struct {
	MedicationName string  `json:"medication_name" validate:"required"`
	Dosage         string  `json:"dosage" validate:"required"`
	Frequency      string  `json:"frequency" validate:"required"`
	Route          *string `json:"route,omitempty"`
}

// CreateGroupInput creates a prescription group with its orders in one call.
type CreateGroupInput struct {
	EncounterID uuid.UUID    `json:"encounter_id" validate:"required"`
	PatientID   uuid.UUID    `json:"patient_id" validate:"required"`
	OrderedBy   uuid.UUID    `json:"ordered_by" validate:"required"`
	Note        *string      `json:"note,omitempty"`
	Orders      []OrderInput `json:"orders" validate:"required,min=1,dive"`
}

// CreateGroup creates the group and all its orders atomically. Every order
// starts PENDING until a pharmacist activates it.
func (s *Service) CreateGroup(ctx context.Context, in CreateGroupInput) (*GroupView, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	g := &OrderGroup{
		EncounterID: in.EncounterID,
		OrderedBy:   in.OrderedBy,
		Note:        in.Note,
	}
	var orders []*Order

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateGroup(ctx, g); err != nil {
			return err
		}
		for _, oi := range in.Orders {
			o := &Order{
				GroupID:        &g.ID,
				EncounterID:    in.EncounterID,
				PatientID:      in.PatientID,
				MedicationName: oi.MedicationName,
				Dosage:         oi.Dosage,
				Frequency:      oi.Frequency,
				Route:          oi.Route,
				Status:         StatusPending,
			}
			if err := s.repo.CreateOrder(ctx, o); err != nil {
				return err
			}
			orders = append(orders, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &GroupView{OrderGroup: g, Orders: orders}, nil
}

// CreateOrderInput is a standalone order outside any group.
type CreateOrderInput struct {
	EncounterID uuid.UUID `json:"encounter_id" validate:"required"`
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
	OrderInput
}

func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	o := &Order{
		EncounterID:    in.EncounterID,
		PatientID:      in.PatientID,
		MedicationName: in.MedicationName,
		Dosage:         in.Dosage,
		Frequency:      in.Frequency,
		Route:          in.Route,
		Status:         StatusPending,
	}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, lifecycle.NotFound(EntityType, id.String())
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, status string, limit, offset int) ([]*Order, int, error) {
	return s.repo.ListOrders(ctx, status, limit, offset)
}

func (s *Service) ListOrdersByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*Order, error) {
	return s.repo.ListOrdersByEncounter(ctx, encounterID)
}

// ListGroupsByEncounter returns each group with its orders attached.
func (s *Service) ListGroupsByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*GroupView, error) {
	groups, err := s.repo.ListGroupsByEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	views := make([]*GroupView, 0, len(groups))
	for _, g := range groups {
		orders, err := s.repo.ListOrdersByGroup(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, &GroupView{OrderGroup: g, Orders: orders})
	}
	return views, nil
}

// CountOpenByEncounter satisfies the encounter discharge guard's counter.
func (s *Service) CountOpenByEncounter(ctx context.Context, encounterID uuid.UUID) (int, error) {
	return s.repo.CountOpenByEncounter(ctx, encounterID)
}

func (s *Service) GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	return s.repo.GetStatusHistory(ctx, orderID)
}

func (s *Service) AllowedTransitions(ctx context.Context, id uuid.UUID) ([]lifecycle.Edge, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Registry().AllowedTransitions(EntityType, o.Status), nil
}

// Transition moves an order through its lifecycle. Hold and discontinue
// reasons come in through the request fields and land on the record.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req lifecycle.Request) (*Order, error) {
	var o *Order
	var evt *lifecycle.Event

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.repo.GetOrder(ctx, id)
		if err != nil {
			return lifecycle.NotFound(EntityType, id.String())
		}

		evt, err = s.engine.Apply(ctx, o, req)
		if err != nil {
			return err
		}

		switch req.Target {
		case StatusHeld:
			reason := req.Fields["reason"]
			o.HoldReason = &reason
		case StatusActive:
			o.HoldReason = nil
		case StatusDiscontinued:
			reason := req.Fields["reason"]
			o.DiscontinueReason = &reason
		}

		if err := s.repo.UpdateStatus(ctx, o); err != nil {
			return err
		}
		return s.repo.AddStatusChange(ctx, &StatusChange{
			OrderID:    o.ID,
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
	if s.bus != nil {
		s.bus.Publish(*evt)
	}
	return o, nil
}
