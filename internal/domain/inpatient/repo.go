package inpatient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Stay) error
	GetByID(ctx context.Context, id uuid.UUID) (*Stay, error)
	GetActiveByEncounter(ctx context.Context, encounterID uuid.UUID) (*Stay, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Stay, int, error)
	UpdateStatus(ctx context.Context, s *Stay) error
	AddStatusChange(ctx context.Context, sc *StatusChange) error
	GetStatusHistory(ctx context.Context, stayID uuid.UUID) ([]*StatusChange, error)
}
