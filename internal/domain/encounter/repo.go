package encounter

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Encounter) error
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*Encounter, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Encounter, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error)

	// UpdateStatus writes status, timestamps, disposition and the bumped
	// version, guarded on the previous version.
	UpdateStatus(ctx context.Context, e *Encounter) error

	AddStatusChange(ctx context.Context, sc *StatusChange) error
	GetStatusHistory(ctx context.Context, encounterID uuid.UUID) ([]*StatusChange, error)
}
