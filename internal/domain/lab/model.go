package lab

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// TestOrderType is the lifecycle registry key for lab test orders.
const TestOrderType = "LabTestOrder"

// Lab test order pipeline, in order. REJECTED is reachable from every status
// before COMPLETED; a rejected sample is re-ordered, never resumed.
const (
	StatusOrdered    = "ORDERED"
	StatusCollected  = "COLLECTED"
	StatusReceived   = "RECEIVED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusVerified   = "VERIFIED"
	StatusRejected   = "REJECTED"
)

// TestOrder maps to the lab_test_order table.
type TestOrder struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	EncounterID     uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	TestCode        string     `db:"test_code" json:"test_code"`
	TestName        string     `db:"test_name" json:"test_name"`
	Priority        string     `db:"priority" json:"priority"`
	OrderedBy       uuid.UUID  `db:"ordered_by" json:"ordered_by"`
	Status          string     `db:"status" json:"status"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CollectedAt     *time.Time `db:"collected_at" json:"collected_at,omitempty"`
	VerifiedAt      *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	Version         int        `db:"version" json:"version"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

func (o *TestOrder) LifecycleID() uuid.UUID  { return o.ID }
func (o *TestOrder) LifecycleType() string   { return TestOrderType }
func (o *TestOrder) CurrentStatus() string   { return o.Status }
func (o *TestOrder) SetStatus(status string) { o.Status = status }
func (o *TestOrder) GetVersion() int         { return o.Version }
func (o *TestOrder) SetVersion(v int)        { o.Version = v }

// Result maps to the lab_test_result table: one measured parameter on a
// completed test.
type Result struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrderID        uuid.UUID `db:"order_id" json:"order_id"`
	Parameter      string    `db:"parameter" json:"parameter"`
	Value          string    `db:"value" json:"value"`
	Unit           string    `db:"unit" json:"unit,omitempty"`
	ReferenceRange string    `db:"reference_range" json:"reference_range,omitempty"`
	Abnormal       bool      `db:"abnormal" json:"abnormal"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// TestOrderView is a test order with its results.
type TestOrderView struct {
	*TestOrder
	Results []*Result `json:"results"`
}

// StatusChange maps to the lab_order_status_history table. EntityType
// distinguishes test orders from imaging orders.
type StatusChange struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OrderID    uuid.UUID `db:"order_id" json:"order_id"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	ActorRole  string    `db:"actor_role" json:"actor_role"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RegisterLifecycle installs both lab transition graphs. Nurses draw samples,
// the lab does everything after the sample reaches the bench, and only a
// technician signs off a verification.
func RegisterLifecycle(reg *lifecycle.Registry) {
	rejected := func(roles ...string) lifecycle.Edge {
		return lifecycle.Edge{To: StatusRejected, Roles: roles, RequiredFields: []string{"reason"}}
	}

	reg.Register(TestOrderType, map[string][]lifecycle.Edge{
		StatusOrdered: {
			{To: StatusCollected, Roles: []string{"nurse", "lab_technician"}},
			rejected("nurse", "lab_technician"),
		},
		StatusCollected: {
			{To: StatusReceived, Roles: []string{"lab_technician"}},
			rejected("lab_technician"),
		},
		StatusReceived: {
			{To: StatusInProgress, Roles: []string{"lab_technician"}},
			rejected("lab_technician"),
		},
		StatusInProgress: {
			{To: StatusCompleted, Roles: []string{"lab_technician"}},
			rejected("lab_technician"),
		},
		StatusCompleted: {
			{To: StatusVerified, Roles: []string{"lab_technician"}},
		},
	})

	registerImagingLifecycle(reg)
	registerDiagnosticLifecycle(reg)
}
