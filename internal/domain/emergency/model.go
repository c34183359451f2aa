package emergency

import (
	"time"

	"github.com/google/uuid"
)

// Triage categories, most to least acute.
const (
	CategoryResuscitation = "RESUSCITATION"
	CategoryEmergent      = "EMERGENT"
	CategoryUrgent        = "URGENT"
	CategoryLessUrgent    = "LESS_URGENT"
	CategoryNonUrgent     = "NON_URGENT"
)

var categoryBase = map[string]int{
	CategoryResuscitation: 100,
	CategoryEmergent:      80,
	CategoryUrgent:        60,
	CategoryLessUrgent:    40,
	CategoryNonUrgent:     20,
}

const (
	maxWaitBonusMinutes  = 30
	lifeThreateningBonus = 50
)

// Case maps to the emergency_case table: one triaged arrival waiting for
// (or linked to) an encounter.
type Case struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	EncounterID     *uuid.UUID `db:"encounter_id" json:"encounter_id,omitempty"`
	Category        string     `db:"category" json:"category"`
	Complaint       string     `db:"complaint" json:"complaint"`
	PainScore       int        `db:"pain_score" json:"pain_score"`
	LifeThreatening bool       `db:"life_threatening" json:"life_threatening"`
	TriagedBy       uuid.UUID  `db:"triaged_by" json:"triaged_by"`
	ArrivedAt       time.Time  `db:"arrived_at" json:"arrived_at"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// View is a case with its priority score. The score is recomputed on every
// read because the wait component grows while the patient sits in the queue.
type View struct {
	*Case
	PriorityScore int `json:"priority_score"`
}

// PriorityScore computes the queue score at the given instant: category base
// plus waited minutes (capped), pain score, and a life-threatening bonus.
func (c *Case) PriorityScore(now time.Time) int {
	score := categoryBase[c.Category]

	waited := int(now.Sub(c.ArrivedAt).Minutes())
	if waited < 0 {
		waited = 0
	}
	if waited > maxWaitBonusMinutes {
		waited = maxWaitBonusMinutes
	}
	score += waited

	score += c.PainScore
	if c.LifeThreatening {
		score += lifeThreateningBonus
	}
	return score
}
