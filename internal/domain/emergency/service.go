package emergency

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

type Service struct {
	repo     Repository
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TriageInput registers an arrival at the emergency desk.
type TriageInput struct {
	PatientID       uuid.UUID `json:"patient_id" validate:"required"`
	Category        string    `json:"category" validate:"required,oneof=RESUSCITATION EMERGENT URGENT LESS_URGENT NON_URGENT"`
	Complaint       string    `json:"complaint" validate:"required"`
	PainScore       int       `json:"pain_score" validate:"min=0,max=10"`
	LifeThreatening bool      `json:"life_threatening"`
	TriagedBy       uuid.UUID `json:"triaged_by" validate:"required"`
}

func (s *Service) Triage(ctx context.Context, in TriageInput) (*View, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	c := &Case{
		PatientID:       in.PatientID,
		Category:        in.Category,
		Complaint:       in.Complaint,
		PainScore:       in.PainScore,
		LifeThreatening: in.LifeThreatening,
		TriagedBy:       in.TriagedBy,
		ArrivedAt:       s.now(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return s.view(c), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lifecycle.NotFound("EmergencyCase", id.String())
	}
	return s.view(c), nil
}

// Queue returns unresolved cases ordered by priority score, highest first.
// Ties keep arrival order because the underlying list is arrival-sorted and
// the sort is stable.
func (s *Service) Queue(ctx context.Context) ([]*View, error) {
	cases, err := s.repo.ListUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]*View, 0, len(cases))
	for _, c := range cases {
		views = append(views, &View{Case: c, PriorityScore: c.PriorityScore(now)})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].PriorityScore > views[j].PriorityScore
	})
	return views, nil
}

// Resolve takes a case off the queue, optionally linking the encounter that
// absorbed it.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, encounterID *uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return lifecycle.NotFound("EmergencyCase", id.String())
	}
	return s.repo.Resolve(ctx, id, encounterID)
}

func (s *Service) view(c *Case) *View {
	return &View{Case: c, PriorityScore: c.PriorityScore(s.now())}
}
