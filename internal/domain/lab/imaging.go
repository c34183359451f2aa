package lab

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// ImagingOrderType is the lifecycle registry key for imaging orders.
const ImagingOrderType = "ImagingOrder"

// Imaging pipeline statuses. REPORTED means a radiology report was written;
// VERIFIED means a second doctor signed it off. Cancellation is only possible
// before the study completes.
const (
	StatusReported  = "REPORTED"
	StatusCancelled = "CANCELLED"
)

// ImagingOrder maps to the imaging_order table.
type ImagingOrder struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	EncounterID        uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	Modality           string     `db:"modality" json:"modality"`
	BodySite           string     `db:"body_site" json:"body_site"`
	OrderedBy          uuid.UUID  `db:"ordered_by" json:"ordered_by"`
	Status             string     `db:"status" json:"status"`
	Report             *string    `db:"report" json:"report,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	VerifiedAt         *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	Version            int        `db:"version" json:"version"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

func (o *ImagingOrder) LifecycleID() uuid.UUID  { return o.ID }
func (o *ImagingOrder) LifecycleType() string   { return ImagingOrderType }
func (o *ImagingOrder) CurrentStatus() string   { return o.Status }
func (o *ImagingOrder) SetStatus(status string) { o.Status = status }
func (o *ImagingOrder) GetVersion() int         { return o.Version }
func (o *ImagingOrder) SetVersion(v int)        { o.Version = v }

func registerImagingLifecycle(reg *lifecycle.Registry) {
	cancelled := lifecycle.Edge{
		To:             StatusCancelled,
		Roles:          []string{"doctor", "lab_technician"},
		RequiredFields: []string{"reason"},
	}

	reg.Register(ImagingOrderType, map[string][]lifecycle.Edge{
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
