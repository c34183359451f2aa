package projection

import (
	"time"

	"github.com/google/uuid"
)

// Dashboard is the per-department operational snapshot served to the front
// desk screens. All numbers are derived from live tables; nothing here is
// stored.
type Dashboard struct {
	Department            string         `json:"department"`
	EncountersByStatus    map[string]int `json:"encounters_by_status"`
	BookingsByStatus      map[string]int `json:"bookings_by_status"`
	OpenMedicationOrders  int            `json:"open_medication_orders"`
	AvgWaitMinutes        float64        `json:"avg_wait_minutes"`
	AvgLabTurnaroundHours float64        `json:"avg_lab_turnaround_hours"`
	GeneratedAt           time.Time      `json:"generated_at"`
}

// WorklistItem is one actionable entity on a role's pending list.
type WorklistItem struct {
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   uuid.UUID `db:"entity_id" json:"entity_id"`
	Status     string    `db:"status" json:"status"`
	Label      string    `db:"label" json:"label"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
