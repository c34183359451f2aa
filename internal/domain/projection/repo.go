package projection

import "context"

// Repository is the read-only query surface behind dashboards and worklists.
type Repository interface {
	EncounterCountsByStatus(ctx context.Context, department string) (map[string]int, error)
	BookingCountsByStatus(ctx context.Context) (map[string]int, error)
	OpenMedicationOrders(ctx context.Context) (int, error)
	AvgArrivalWaitMinutes(ctx context.Context, department string) (float64, error)
	AvgLabTurnaroundHours(ctx context.Context) (float64, error)
	Worklist(ctx context.Context, role string) ([]*WorklistItem, error)
}
