package emergency

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	ListUnresolved(ctx context.Context) ([]*Case, error)
	Resolve(ctx context.Context, id uuid.UUID, encounterID *uuid.UUID) error
}
