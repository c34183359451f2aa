package inpatient

import (
	"context"

	"github.com/google/uuid"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// OpenOrderCounter reports how many medication orders for an encounter are
// still in a blocking state (PENDING or ACTIVE).
type OpenOrderCounter interface {
	CountOpenByEncounter(ctx context.Context, encounterID uuid.UUID) (int, error)
}

// Fields that together form a complete discharge plan. Supplying all of them
// overrides the open-order discharge block.
var dischargePlanFields = []string{
	"home_care_plan",
	"medication_reconciliation",
	"follow_up",
	"readiness_assessment",
}

// DischargeGuard blocks InpatientStay→DISCHARGED while the stay's encounter
// still has open medication orders, unless the request carries a complete
// discharge plan.
func DischargeGuard(orders OpenOrderCounter) lifecycle.Guard {
	return func(ctx context.Context, e lifecycle.Entity, req lifecycle.Request) error {
		stay, ok := e.(*Stay)
		if !ok {
			return nil
		}
		open, err := orders.CountOpenByEncounter(ctx, stay.EncounterID)
		if err != nil {
			return err
		}
		if open == 0 {
			return nil
		}
		if hasCompleteDischargePlan(req.Fields) {
			return nil
		}
		return lifecycle.OpenDependency(
			"stay %s has %d open medication order(s); discontinue them or supply a complete discharge plan",
			stay.ID, open)
	}
}

func hasCompleteDischargePlan(fields map[string]string) bool {
	for _, f := range dischargePlanFields {
		if fields[f] == "" {
			return false
		}
	}
	return true
}
