package booking

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Booking, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error)

	// UpdateStatus writes status, cancellation reason, encounter link and the
	// bumped version, guarded on the previous version.
	UpdateStatus(ctx context.Context, b *Booking) error

	AddStatusChange(ctx context.Context, sc *StatusChange) error
	GetStatusHistory(ctx context.Context, bookingID uuid.UUID) ([]*StatusChange, error)
}
