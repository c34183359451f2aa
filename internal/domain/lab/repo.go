package lab

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateTestOrder(ctx context.Context, o *TestOrder) error
	GetTestOrder(ctx context.Context, id uuid.UUID) (*TestOrder, error)
	ListTestOrders(ctx context.Context, status string, limit, offset int) ([]*TestOrder, int, error)
	ListTestOrdersByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*TestOrder, error)
	UpdateTestOrderStatus(ctx context.Context, o *TestOrder) error

	AddResults(ctx context.Context, orderID uuid.UUID, results []*Result) error
	ListResults(ctx context.Context, orderID uuid.UUID) ([]*Result, error)

	CreateImagingOrder(ctx context.Context, o *ImagingOrder) error
	GetImagingOrder(ctx context.Context, id uuid.UUID) (*ImagingOrder, error)
	ListImagingOrders(ctx context.Context, status string, limit, offset int) ([]*ImagingOrder, int, error)
	UpdateImagingOrderStatus(ctx context.Context, o *ImagingOrder) error

	CreateDiagnosticOrder(ctx context.Context, o *DiagnosticOrder) error
	GetDiagnosticOrder(ctx context.Context, id uuid.UUID) (*DiagnosticOrder, error)
	ListDiagnosticOrders(ctx context.Context, status string, limit, offset int) ([]*DiagnosticOrder, int, error)
	UpdateDiagnosticOrderStatus(ctx context.Context, o *DiagnosticOrder) error

	AddStatusChange(ctx context.Context, sc *StatusChange) error
	GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error)
}
