package encounter

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// EntityType is the lifecycle registry key for encounters.
const EntityType = "Encounter"

const (
	StatusPlanned    = "PLANNED"
	StatusArrived    = "ARRIVED"
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
	StatusCancelled  = "CANCELLED"
)

// Encounter maps to the encounter table. BookingID is unique when set, which
// is what makes confirm-time creation idempotent.
type Encounter struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	BookingID          *uuid.UUID `db:"booking_id" json:"booking_id,omitempty"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	PractitionerID     uuid.UUID  `db:"practitioner_id" json:"practitioner_id"`
	Department         *string    `db:"department" json:"department,omitempty"`
	Status             string     `db:"status" json:"status"`
	PeriodStart        time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd          *time.Time `db:"period_end" json:"period_end,omitempty"`
	ArrivedAt          *time.Time `db:"arrived_at" json:"arrived_at,omitempty"`
	Disposition        *string    `db:"disposition" json:"disposition,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	Version            int        `db:"version" json:"version"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

func (e *Encounter) LifecycleID() uuid.UUID  { return e.ID }
func (e *Encounter) LifecycleType() string   { return EntityType }
func (e *Encounter) CurrentStatus() string   { return e.Status }
func (e *Encounter) SetStatus(status string) { e.Status = status }
func (e *Encounter) GetVersion() int         { return e.Version }
func (e *Encounter) SetVersion(v int)        { e.Version = v }

// View is the API snapshot of an encounter with its capability flags. The
// flags are derived on every read and never stored.
type View struct {
	*Encounter
	CanCheckIn   bool `json:"can_check_in"`
	CanCancel    bool `json:"can_cancel"`
	CanDischarge bool `json:"can_discharge"`
}

// StatusChange maps to the encounter_status_history table.
type StatusChange struct {
	ID          uuid.UUID `db:"id" json:"id"`
	EncounterID uuid.UUID `db:"encounter_id" json:"encounter_id"`
	FromStatus  string    `db:"from_status" json:"from_status"`
	ToStatus    string    `db:"to_status" json:"to_status"`
	ActorID     string    `db:"actor_id" json:"actor_id"`
	ActorRole   string    `db:"actor_role" json:"actor_role"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RegisterLifecycle installs the encounter transition graph. Discharge from
// ARRIVED is allowed so short visits don't have to fake an IN_PROGRESS step.
func RegisterLifecycle(reg *lifecycle.Registry) {
	reg.Register(EntityType, map[string][]lifecycle.Edge{
		StatusPlanned: {
			{To: StatusArrived, Roles: []string{"receptionist", "nurse"}},
			{To: StatusCancelled, Roles: []string{"receptionist", "doctor"}, RequiredFields: []string{"reason"}},
		},
		StatusArrived: {
			{To: StatusInProgress, Roles: []string{"doctor", "nurse"}},
			{To: StatusFinished, Roles: []string{"doctor"}},
			{To: StatusCancelled, Roles: []string{"receptionist", "doctor"}, RequiredFields: []string{"reason"}},
		},
		StatusInProgress: {
			{To: StatusFinished, Roles: []string{"doctor"}},
		},
	})
}
