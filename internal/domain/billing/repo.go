package billing

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, inv *Invoice, items []*Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetActiveByEncounter(ctx context.Context, encounterID uuid.UUID) (*Invoice, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Invoice, int, error)
	ListItems(ctx context.Context, invoiceID uuid.UUID) ([]*Item, error)
	UpdateStatus(ctx context.Context, inv *Invoice) error
	AddStatusChange(ctx context.Context, sc *StatusChange) error
	GetStatusHistory(ctx context.Context, invoiceID uuid.UUID) ([]*StatusChange, error)
}
