package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// EntityType is the lifecycle registry key for bookings.
const EntityType = "Booking"

const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
	StatusNoShow    = "NO_SHOW"
)

// Booking sources.
const (
	SourceOnline = "online"
	SourcePhone  = "phone"
	SourceWalkIn = "walk_in"
)

// Booking maps to the booking table.
type Booking struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	PractitionerID     uuid.UUID  `db:"practitioner_id" json:"practitioner_id"`
	Source             string     `db:"source" json:"source"`
	Status             string     `db:"status" json:"status"`
	ScheduledStart     time.Time  `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd       *time.Time `db:"scheduled_end" json:"scheduled_end,omitempty"`
	Complaint          *string    `db:"complaint" json:"complaint,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	EncounterID        *uuid.UUID `db:"encounter_id" json:"encounter_id,omitempty"`
	Version            int        `db:"version" json:"version"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

func (b *Booking) LifecycleID() uuid.UUID  { return b.ID }
func (b *Booking) LifecycleType() string   { return EntityType }
func (b *Booking) CurrentStatus() string   { return b.Status }
func (b *Booking) SetStatus(status string) { b.Status = status }
func (b *Booking) GetVersion() int         { return b.Version }
func (b *Booking) SetVersion(v int)        { b.Version = v }

// StatusChange maps to the booking_status_history table.
type StatusChange struct {
	ID         uuid.UUID `db:"id" json:"id"`
	BookingID  uuid.UUID `db:"booking_id" json:"booking_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	ActorRole  string    `db:"actor_role" json:"actor_role"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RegisterLifecycle installs the booking transition graph. Only the front
// desk moves bookings; doctors may close out a confirmed visit.
func RegisterLifecycle(reg *lifecycle.Registry) {
	reg.Register(EntityType, map[string][]lifecycle.Edge{
		StatusPending: {
			{To: StatusConfirmed, Roles: []string{"receptionist"}},
			{To: StatusCancelled, Roles: []string{"receptionist"}, RequiredFields: []string{"reason"}},
			{To: StatusNoShow, Roles: []string{"receptionist"}},
		},
		StatusConfirmed: {
			{To: StatusCompleted, Roles: []string{"receptionist", "doctor"}},
			{To: StatusCancelled, Roles: []string{"receptionist"}, RequiredFields: []string{"reason"}},
			{To: StatusNoShow, Roles: []string{"receptionist"}},
		},
	})
}
