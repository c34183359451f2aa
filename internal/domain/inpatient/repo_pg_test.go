package inpatient

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hospitalos/hms/internal/lifecycle"
)

func TestMapCreateError_ActiveStayConstraint(t *testing.T) {
	encounterID := uuid.New()
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "idx_stay_active_encounter"}

	err := mapCreateError(pgErr, encounterID)
	if lifecycle.CodeOf(err) != lifecycle.CodeInvalidTransition {
		t.Errorf("expected invalid_transition for the active-stay constraint, got %v", err)
	}
}

func TestMapCreateError_OtherErrorsPassThrough(t *testing.T) {
	encounterID := uuid.New()

	otherConstraint := &pgconn.PgError{Code: "23505", ConstraintName: "inpatient_stay_pkey"}
	if err := mapCreateError(otherConstraint, encounterID); !errors.Is(err, otherConstraint) {
		t.Errorf("expected unrelated constraint violations back unchanged, got %v", err)
	}

	plain := errors.New("connection reset")
	if err := mapCreateError(plain, encounterID); !errors.Is(err, plain) {
		t.Errorf("expected plain errors back unchanged, got %v", err)
	}

	if err := mapCreateError(nil, encounterID); err != nil {
		t.Errorf("expected nil to stay nil, got %v", err)
	}
}
