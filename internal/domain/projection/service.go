package projection

import (
	"context"
	"time"

	"github.com/hospitalos/hms/internal/lifecycle"
	"github.com/hospitalos/hms/internal/platform/cache"
	"github.com/hospitalos/hms/internal/platform/events"
)

const dashboardTTL = 30 * time.Second

type Service struct {
	repo  Repository
	cache *cache.Cache
}

func NewService(repo Repository, c *cache.Cache) *Service {
	return &Service{repo: repo, cache: c}
}

// Dashboard assembles the department snapshot, serving a cached copy when one
// is fresh. Any status change invalidates the cache via InvalidationListener.
func (s *Service) Dashboard(ctx context.Context, department string) (*Dashboard, error) {
	key := "dashboard:" + department

	var cached Dashboard
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	encounters, err := s.repo.EncounterCountsByStatus(ctx, department)
	if err != nil {
		return nil, err
	}
	bookings, err := s.repo.BookingCountsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	openOrders, err := s.repo.OpenMedicationOrders(ctx)
	if err != nil {
		return nil, err
	}
	avgWait, err := s.repo.AvgArrivalWaitMinutes(ctx, department)
	if err != nil {
		return nil, err
	}
	turnaround, err := s.repo.AvgLabTurnaroundHours(ctx)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		Department:            department,
		EncountersByStatus:    encounters,
		BookingsByStatus:      bookings,
		OpenMedicationOrders:  openOrders,
		AvgWaitMinutes:        avgWait,
		AvgLabTurnaroundHours: turnaround,
		GeneratedAt:           time.Now().UTC(),
	}
	s.cache.SetJSON(ctx, key, d, dashboardTTL)
	return d, nil
}

// Worklist returns the entities waiting on the given role. Unknown roles get
// an empty list rather than an error.
func (s *Service) Worklist(ctx context.Context, role string) ([]*WorklistItem, error) {
	items, err := s.repo.Worklist(ctx, role)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*WorklistItem{}
	}
	return items, nil
}

// InvalidationListener drops cached dashboards whenever any entity changes
// status, so the next read recomputes from live tables.
func InvalidationListener(c *cache.Cache) events.Listener {
	return events.ListenerFunc{
		ListenerName: "dashboard-invalidation",
		Fn: func(ctx context.Context, _ lifecycle.Event) error {
			c.Invalidate(ctx, "dashboard:*")
			return nil
		},
	}
}
