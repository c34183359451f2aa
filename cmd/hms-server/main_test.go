package main

import (
	"testing"

	"github.com/hospitalos/hms/internal/domain/billing"
	"github.com/hospitalos/hms/internal/domain/booking"
	"github.com/hospitalos/hms/internal/domain/encounter"
	"github.com/hospitalos/hms/internal/domain/inpatient"
	"github.com/hospitalos/hms/internal/domain/lab"
	"github.com/hospitalos/hms/internal/domain/medication"
	"github.com/hospitalos/hms/internal/lifecycle"
)

// The server assembles one registry for every entity type. This smoke test
// mirrors that assembly and checks each graph actually registered.
func TestRegistryAssembly(t *testing.T) {
	reg := lifecycle.NewRegistry()
	booking.RegisterLifecycle(reg)
	encounter.RegisterLifecycle(reg)
	medication.RegisterLifecycle(reg)
	inpatient.RegisterLifecycle(reg)
	billing.RegisterLifecycle(reg)
	lab.RegisterLifecycle(reg)

	cases := []struct {
		entityType string
		from       string
		wantTarget string
	}{
		{booking.EntityType, booking.StatusPending, booking.StatusConfirmed},
		{encounter.EntityType, encounter.StatusPlanned, encounter.StatusArrived},
		{medication.EntityType, medication.StatusPending, medication.StatusActive},
		{inpatient.EntityType, inpatient.StatusAdmitted, inpatient.StatusDischarged},
		{billing.EntityType, billing.StatusPending, billing.StatusPaid},
		{lab.TestOrderType, lab.StatusOrdered, lab.StatusCollected},
		{lab.ImagingOrderType, lab.StatusOrdered, lab.StatusInProgress},
		{lab.DiagnosticOrderType, lab.StatusOrdered, lab.StatusInProgress},
	}
	for _, tc := range cases {
		allowed := reg.AllowedTransitions(tc.entityType, tc.from)
		found := false
		for _, edge := range allowed {
			if edge.To == tc.wantTarget {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: expected %s reachable from %s, got %v",
				tc.entityType, tc.wantTarget, tc.from, allowed)
		}
	}
}
