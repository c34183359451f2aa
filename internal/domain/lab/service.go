package lab

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

// OrderTestInput is the payload for ordering a lab test.
type OrderTestInput struct {
	EncounterID uuid.UUID `json:"encounter_id" validate:"required"`
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
	TestCode    string    `json:"test_code" validate:"required"`
	TestName    string    `json:"test_name" validate:"required"`
	Priority    string    `json:"priority" validate:"required,oneof=routine urgent stat"`
	OrderedBy   uuid.UUID `json:"ordered_by" validate:"required"`
}

func (s *Service) OrderTest(ctx context.Context, in OrderTestInput) (*TestOrder, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	o := &TestOrder{
		EncounterID: in.EncounterID,
		PatientID:   in.PatientID,
		TestCode:    in.TestCode,
		TestName:    in.TestName,
		Priority:    in.Priority,
		OrderedBy:   in.OrderedBy,
		Status:      StatusOrdered,
	}
	if err := s.repo.CreateTestOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) GetTestOrder(ctx context.Context, id uuid.UUID) (*TestOrderView, error) {
	o, err := s.repo.GetTestOrder(ctx, id)
	if err != nil {
		return nil, lifecycle.NotFound(TestOrderType, id.String())
	}
	results, err := s.repo.ListResults(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &TestOrderView{TestOrder: o, Results: results}, nil
}

func (s *Service) ListTestOrders(ctx context.Context, status string, limit, offset int) ([]*TestOrder, int, error) {
	return s.repo.ListTestOrders(ctx, status, limit, offset)
}

func (s *Service) ListTestOrdersByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*TestOrder, error) {
	return s.repo.ListTestOrdersByEncounter(ctx, encounterID)
}

func (s *Service) GetStatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusChange, error) {
	return s.repo.GetStatusHistory(ctx, id)
}

// ResultInput is one measured parameter attached to a test order.
type ResultInput struct {
	Parameter      string `json:"parameter" validate:"required"`
	Value          string `json:"value" validate:"required"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"reference_range"`
	Abnormal       bool   `json:"abnormal"`
}

type resultsPayload struct {
	Results []ResultInput `json:"results" validate:"required,min=1,dive"`
}

// AttachResults records measured values on an order that is on the bench.
// Results land before the COMPLETED transition, so a completed order always
// has its values.
func (s *Service) AttachResults(ctx context.Context, orderID uuid.UUID, inputs []ResultInput) ([]*Result, error) {
	if err := s.validate.Struct(resultsPayload{Results: inputs}); err != nil {
		return nil, err
	}

	var results []*Result
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetTestOrder(ctx, orderID)
		if err != nil {
			return lifecycle.NotFound(TestOrderType, orderID.String())
		}
		if o.Status != StatusInProgress {
			return lifecycle.NewError(lifecycle.CodeInvalidTransition,
				"results can only be attached while the test is IN_PROGRESS, order is %s", o.Status)
		}
		results = make([]*Result, 0, len(inputs))
		for _, in := range inputs {
			results = append(results, &Result{
				Parameter:      in.Parameter,
				Value:          in.Value,
				Unit:           in.Unit,
				ReferenceRange: in.ReferenceRange,
				Abnormal:       in.Abnormal,
			})
		}
		return s.repo.AddResults(ctx, orderID, results)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// TransitionTest moves a lab test order through the pipeline. Completing an
// order requires at least one attached result; verifying stamps the sign-off
// time.
func (s *Service) TransitionTest(ctx context.Context, id uuid.UUID, req lifecycle.Request) (*TestOrder, error) {
	var o *TestOrder
	var evt *lifecycle.Event

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.repo.GetTestOrder(ctx, id)
		if err != nil {
			return lifecycle.NotFound(TestOrderType, id.String())
		}

		if req.Target == StatusCompleted {
			results, err := s.repo.ListResults(ctx, o.ID)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				return lifecycle.OpenDependency(
					"test order %s has no results; attach results before completing", o.ID)
			}
		}

		evt, err = s.engine.Apply(ctx, o, req)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		switch req.Target {
		case StatusCollected:
			o.CollectedAt = &now
		case StatusVerified:
			o.VerifiedAt = &now
		case StatusRejected:
			reason := req.Fields["reason"]
			o.RejectionReason = &reason
		}

		if err := s.repo.UpdateTestOrderStatus(ctx, o); err != nil {
			return err
		}
		return s.repo.AddStatusChange(ctx, &StatusChange{
			OrderID:    o.ID,
			EntityType: TestOrderType,
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
	return o, nil
}

// OrderDiagnosticInput is the payload for ordering a diagnostic procedure.
type OrderDiagnosticInput struct {
	EncounterID uuid.UUID `json:"encounter_id" validate:"required"`
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
	Procedure   string    `json:"procedure" validate:"required"`
	Note        *string   `json:"note"`
	OrderedBy   uuid.UUID `json:"ordered_by" validate:"required"`
}

func (s *Service) OrderDiagnostic(ctx context.Context, in OrderDiagnosticInput) (*DiagnosticOrder, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	o := &DiagnosticOrder{
		EncounterID: in.EncounterID,
		PatientID:   in.PatientID,
		Procedure:   in.Procedure,
		Note:        in.Note,
		OrderedBy:   in.OrderedBy,
		Status:      StatusOrdered,
	}
	if err := s.repo.CreateDiagnosticOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) GetDiagnosticOrder(ctx context.Context, id uuid.UUID) (*DiagnosticOrder, error) {
	o, err := s.repo.GetDiagnosticOrder(ctx, id)
	if err != nil {
		return nil, lifecycle.NotFound(DiagnosticOrderType, id.String())
	}
	return o, nil
}

func (s *Service) ListDiagnosticOrders(ctx context.Context, status string, limit, offset int) ([]*DiagnosticOrder, int, error) {
	return s.repo.ListDiagnosticOrders(ctx, status, limit, offset)
}

// TransitionDiagnostic moves a diagnostic procedure order through its
// pipeline. Reporting stores the findings from the request fields.
func (s *Service) TransitionDiagnostic(ctx context.Context, id uuid.UUID, req lifecycle.Request) (*DiagnosticOrder, error) {
	var o *DiagnosticOrder
	var evt *lifecycle.Event

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.repo.GetDiagnosticOrder(ctx, id)
		if err != nil {
			return lifecycle.NotFound(DiagnosticOrderType, id.String())
		}

		evt, err = s.engine.Apply(ctx, o, req)
		if err != nil {
			return err
		}

		switch req.Target {
		case StatusReported:
			report := req.Fields["report"]
			o.Report = &report
		case StatusVerified:
			now := time.Now().UTC()
			o.VerifiedAt = &now
		case StatusCancelled:
			reason := req.Fields["reason"]
			o.CancellationReason = &reason
		}

		if err := s.repo.UpdateDiagnosticOrderStatus(ctx, o); err != nil {
			return err
		}
		return s.repo.AddStatusChange(ctx, &StatusChange{
			OrderID:    o.ID,
			EntityType: DiagnosticOrderType,
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
	return o, nil
}

// OrderImagingInput is the payload for ordering an imaging study.
type OrderImagingInput struct {
	EncounterID uuid.UUID `json:"encounter_id" validate:"required"`
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
	Modality    string    `json:"modality" validate:"required,oneof=xray ct mri ultrasound"`
	BodySite    string    `json:"body_site" validate:"required"`
	OrderedBy   uuid.UUID `json:"ordered_by" validate:"required"`
}

func (s *Service) OrderImaging(ctx context.Context, in OrderImagingInput) (*ImagingOrder, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	o := &ImagingOrder{
		EncounterID: in.EncounterID,
		PatientID:   in.PatientID,
		Modality:    in.Modality,
		BodySite:    in.BodySite,
		OrderedBy:   in.OrderedBy,
		Status:      StatusOrdered,
	}
	if err := s.repo.CreateImagingOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) GetImagingOrder(ctx context.Context, id uuid.UUID) (*ImagingOrder, error) {
	o, err := s.repo.GetImagingOrder(ctx, id)
	if err != nil {
		return nil, lifecycle.NotFound(ImagingOrderType, id.String())
	}
	return o, nil
}

func (s *Service) ListImagingOrders(ctx context.Context, status string, limit, offset int) ([]*ImagingOrder, int, error) {
	return s.repo.ListImagingOrders(ctx, status, limit, offset)
}

// TransitionImaging moves an imaging order through its pipeline. Reporting
// stores the report text from the request fields.
func (s *Service) TransitionImaging(ctx context.Context, id uuid.UUID, req lifecycle.Request) (*ImagingOrder, error) {
	var o *ImagingOrder
	var evt *lifecycle.Event

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.repo.GetImagingOrder(ctx, id)
		if err != nil {
			return lifecycle.NotFound(ImagingOrderType, id.String())
		}

		evt, err = s.engine.Apply(ctx, o, req)
		if err != nil {
			return err
		}

		switch req.Target {
		case StatusReported:
			report := req.Fields["report"]
			o.Report = &report
		case StatusVerified:
			now := time.Now().UTC()
			o.VerifiedAt = &now
		case StatusCancelled:
			reason := req.Fields["reason"]
			o.CancellationReason = &reason
		}

		if err := s.repo.UpdateImagingOrderStatus(ctx, o); err != nil {
			return err
		}
		return s.repo.AddStatusChange(ctx, &StatusChange{
			OrderID:    o.ID,
			EntityType: ImagingOrderType,
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
	return o, nil
}
