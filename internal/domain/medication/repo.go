package medication

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateGroup(ctx context.Context, g *OrderGroup) error
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, status string, limit, offset int) ([]*Order, int, error)
	ListOrdersByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*Order, error)
	ListGroupsByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*OrderGroup, error)
	ListOrdersByGroup(ctx context.Context, groupID uuid.UUID) ([]*Order, error)

	// CountOpenByEncounter counts orders in PENDING or ACTIVE. The discharge
	// guard calls this inside the discharge transaction.
	CountOpenByEncounter(ctx context.Context, encounterID uuid.UUID) (int, error)

	UpdateStatus(ctx context.Context, o *Order) error
	AddStatusChange(ctx context.Context, sc *StatusChange) error
	GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error)
}
