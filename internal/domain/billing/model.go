package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// EntityType is the lifecycle registry key for invoices.
const EntityType = "Invoice"

const (
	StatusPending   = "PENDING"
	StatusPartial   = "PARTIAL"
	StatusPaid      = "PAID"
	StatusCancelled = "CANCELLED"
)

// Billable item kinds.
const (
	ItemMedicine = "medicine"
	ItemService  = "service"
	ItemMaterial = "material"
	ItemPackage  = "package"
)

// Invoice maps to the invoice table. All amounts are in minor currency units.
// An encounter has at most one invoice that is not cancelled; cancelling
// frees the encounter for regeneration.
type Invoice struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	InvoiceNumber      string     `db:"invoice_number" json:"invoice_number"`
	EncounterID        uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	Status             string     `db:"status" json:"status"`
	TotalAmount        int64      `db:"total_amount" json:"total_amount"`
	CoveredAmount      int64      `db:"covered_amount" json:"covered_amount"`
	PatientShare       int64      `db:"patient_share" json:"patient_share"`
	PaidAmount         int64      `db:"paid_amount" json:"paid_amount"`
	CoveragePercent    int        `db:"coverage_percent" json:"coverage_percent"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	PaidAt             *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	Version            int        `db:"version" json:"version"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

func (i *Invoice) LifecycleID() uuid.UUID  { return i.ID }
func (i *Invoice) LifecycleType() string   { return EntityType }
func (i *Invoice) CurrentStatus() string   { return i.Status }
func (i *Invoice) SetStatus(status string) { i.Status = status }
func (i *Invoice) GetVersion() int         { return i.Version }
func (i *Invoice) SetVersion(v int)        { i.Version = v }

// Item maps to the invoice_item table.
type Item struct {
	ID        uuid.UUID `db:"id" json:"id"`
	InvoiceID uuid.UUID `db:"invoice_id" json:"invoice_id"`
	Kind      string    `db:"kind" json:"kind"`
	Label     string    `db:"label" json:"label"`
	Quantity  int       `db:"quantity" json:"quantity"`
	UnitPrice int64     `db:"unit_price" json:"unit_price"`
	Amount    int64     `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// View is an invoice with its line items.
type View struct {
	*Invoice
	Items []*Item `json:"items"`
}

// StatusChange maps to the invoice_status_history table.
type StatusChange struct {
	ID         uuid.UUID `db:"id" json:"id"`
	InvoiceID  uuid.UUID `db:"invoice_id" json:"invoice_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	ActorRole  string    `db:"actor_role" json:"actor_role"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RegisterLifecycle installs the invoice transition graph. The front desk and
// the finance office record payments and cancel invoices; a cancellation
// always carries a reason.
func RegisterLifecycle(reg *lifecycle.Registry) {
	reg.Register(EntityType, map[string][]lifecycle.Edge{
		StatusPending: {
			{To: StatusPartial, Roles: []string{"receptionist", "hr"}},
			{To: StatusPaid, Roles: []string{"receptionist", "hr"}},
			{To: StatusCancelled, Roles: []string{"receptionist", "hr"}, RequiredFields: []string{"reason"}},
		},
		StatusPartial: {
			// Follow-up payments that still leave a balance re-enter PARTIAL.
			{To: StatusPartial, Roles: []string{"receptionist", "hr"}},
			{To: StatusPaid, Roles: []string{"receptionist", "hr"}},
			{To: StatusCancelled, Roles: []string{"receptionist", "hr"}, RequiredFields: []string{"reason"}},
		},
	})
}
