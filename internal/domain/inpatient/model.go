package inpatient

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// EntityType is the lifecycle registry key for inpatient stays.
const EntityType = "InpatientStay"

const (
	StatusAdmitted    = "ADMITTED"
	StatusTransferred = "TRANSFERRED"
	StatusDischarged  = "DISCHARGED"
)

// Stay maps to the inpatient_stay table: one admission of a patient to a
// ward, linked to the encounter that produced it.
type Stay struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	EncounterID   uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	Ward          string     `db:"ward" json:"ward"`
	Bed           *string    `db:"bed" json:"bed,omitempty"`
	Status        string     `db:"status" json:"status"`
	AdmittedBy    uuid.UUID  `db:"admitted_by" json:"admitted_by"`
	AdmittedAt    time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt  *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	DischargeNote *string    `db:"discharge_note" json:"discharge_note,omitempty"`
	Version       int        `db:"version" json:"version"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

func (s *Stay) LifecycleID() uuid.UUID  { return s.ID }
func (s *Stay) LifecycleType() string   { return EntityType }
func (s *Stay) CurrentStatus() string   { return s.Status }
func (s *Stay) SetStatus(status string) { s.Status = status }
func (s *Stay) GetVersion() int         { return s.Version }
func (s *Stay) SetVersion(v int)        { s.Version = v }

// StatusChange maps to the inpatient_stay_status_history table.
type StatusChange struct {
	ID         uuid.UUID `db:"id" json:"id"`
	StayID     uuid.UUID `db:"stay_id" json:"stay_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	ActorRole  string    `db:"actor_role" json:"actor_role"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RegisterLifecycle installs the stay transition graph. A transfer moves the
// patient to another ward without closing the stay; only doctors sign a
// discharge.
func RegisterLifecycle(reg *lifecycle.Registry) {
	reg.Register(EntityType, map[string][]lifecycle.Edge{
		StatusAdmitted: {
			{To: StatusDischarged, Roles: []string{"doctor"}},
			{To: StatusTransferred, Roles: []string{"doctor", "nurse"}, RequiredFields: []string{"ward"}},
		},
		StatusTransferred: {
			{To: StatusDischarged, Roles: []string{"doctor"}},
		},
	})
}
