package lab

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// DiagnosticOrderType is the lifecycle registry key for diagnostic procedure
// orders (ECG, spirometry, endoscopy and the like).
const DiagnosticOrderType = "DiagnosticOrder"

// DiagnosticOrder maps to the diagnostic_order table. It follows the same
// pipeline as imaging: a technician performs the procedure, a doctor writes
// and then signs off the findings.
type DiagnosticOrder struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	EncounterID        uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	Procedure          string     `db:"procedure_name" json:"procedure"`
	Note               *string    `db:"note" json:"note,omitempty"`
	OrderedBy          uuid.UUID  `db:"ordered_by" json:"ordered_by"`
	Status             string     `db:"status" json:"status"`
	Report             *string    `db:"report" json:"report,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	VerifiedAt         *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	Version            int        `db:"version" json:"version"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

func (o *DiagnosticOrder) LifecycleID() uuid.UUID  { return o.ID }
func (o *DiagnosticOrder) LifecycleType() string   { return DiagnosticOrderType }
func (o *DiagnosticOrder) CurrentStatus() string   { return o.Status }
func (o *DiagnosticOrder) SetStatus(status string) { o.Status = status }
func (o *DiagnosticOrder) GetVersion() int         { return o.Version }
func (o *DiagnosticOrder) SetVersion(v int)        { o.Version = v }

func registerDiagnosticLifecycle(reg *lifecycle.Registry) {
	cancelled := lifecycle.Edge{
		To:             StatusCancelled,
		Roles:          []string{"doctor", "lab_technician"},
		RequiredFields: []string{"reason"},
	}

	reg.Register(DiagnosticOrderType, map[string][]lifecycle.Edge{
		StatusOrdered: {
			{To: StatusInProgress, Roles: []string{"lab_technician"}},
			cancelled,
		},
		StatusInProgress: {
			{To: StatusCompleted, Roles: []string{"lab_technician"}},
			cancelled,
		},
		StatusCompleted: {
			{To: StatusReported, Roles: []string{"doctor"}, RequiredFields: []string{"report"}},
		},
		StatusReported: {
			{To: StatusVerified, Roles: []string{"doctor"}},
		},
	})
}
