package medication

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// EntityType is the lifecycle registry key for medication orders.
const EntityType = "MedicationOrder"

const (
	StatusPending      = "PENDING"
	StatusActive       = "ACTIVE"
	StatusHeld         = "HELD"
	StatusCompleted    = "COMPLETED"
	StatusDiscontinued = "DISCONTINUED"
)

// OrderGroup maps to the medication_order_group table. A group is one
// prescription event covering several drugs.
type OrderGroup struct {
	ID          uuid.UUID `db:"id" json:"id"`
	EncounterID uuid.UUID `db:"encounter_id" json:"encounter_id"`
	OrderedBy   uuid.UUID `db:"ordered_by" json:"ordered_by"`
	Note        *string   `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Order maps to the medication_order table.
type Order struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	GroupID           *uuid.UUID `db:"group_id" json:"group_id,omitempty"`
	EncounterID       uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	MedicationName    string     `db:"medication_name" json:"medication_name"`
	Dosage            string     `db:"dosage" json:"dosage"`
	Frequency         string     `db:"frequency" json:"frequency"`
	Route             *string    `db:"route" json:"route,omitempty"`
	Status            string     `db:"status" json:"status"`
	HoldReason        *string    `db:"hold_reason" json:"hold_reason,omitempty"`
	DiscontinueReason *string    `db:"discontinue_reason" json:"discontinue_reason,omitempty"`
	Version           int        `db:"version" json:"version"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

func (o *Order) LifecycleID() uuid.UUID  { return o.ID }
func (o *Order) LifecycleType() string   { return EntityType }
func (o *Order) CurrentStatus() string   { return o.Status }
func (o *Order) SetStatus(status string) { o.Status = status }
func (o *Order) GetVersion() int         { return o.Version }
func (o *Order) SetVersion(v int)        { o.Version = v }

// GroupView is a group with its orders attached, for grouped listings.
type GroupView struct {
	*OrderGroup
	Orders []*Order `json:"orders"`
}

// StatusChange maps to the medication_order_status_history table.
type StatusChange struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OrderID    uuid.UUID `db:"order_id" json:"order_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	ActorRole  string    `db:"actor_role" json:"actor_role"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RegisterLifecycle installs the medication order transition graph.
// ACTIVE↔HELD is the only reversible pair in the system; everything else
// moves forward or terminates.
func RegisterLifecycle(reg *lifecycle.Registry) {
	reg.Register(EntityType, map[string][]lifecycle.Edge{
		StatusPending: {
			{To: StatusActive, Roles: []string{"pharmacist"}},
			{To: StatusDiscontinued, Roles: []string{"doctor", "pharmacist"}, RequiredFields: []string{"reason"}},
		},
		StatusActive: {
			{To: StatusHeld, Roles: []string{"doctor", "pharmacist"}, RequiredFields: []string{"reason"}},
			{To: StatusCompleted, Roles: []string{"pharmacist", "nurse"}},
			{To: StatusDiscontinued, Roles: []string{"doctor", "pharmacist"}, RequiredFields: []string{"reason"}},
		},
		StatusHeld: {
			{To: StatusActive, Roles: []string{"doctor", "pharmacist"}},
			{To: StatusDiscontinued, Roles: []string{"doctor", "pharmacist"}, RequiredFields: []string{"reason"}},
		},
	})
}

// IsOpen reports whether a status blocks encounter discharge.
func IsOpen(status string) bool {
	return status == StatusPending || status == StatusActive
}
