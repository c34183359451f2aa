package lifecycle

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

type fakeEntity struct {
	id      uuid.UUID
	status  string
	version int
}

func (f *fakeEntity) LifecycleID() uuid.UUID  { return f.id }
func (f *fakeEntity) LifecycleType() string   { return "Ticket" }
func (f *fakeEntity) CurrentStatus() string   { return f.status }
func (f *fakeEntity) SetStatus(s string)      { f.status = s }
func (f *fakeEntity) GetVersion() int         { return f.version }
func (f *fakeEntity) SetVersion(v int)        { f.version = v }

func newTestEngine() *Engine {
	return NewEngine(testRegistry())
}

func TestApply(t *testing.T) {
	eng := newTestEngine()
	e := &fakeEntity{id: uuid.New(), status: "OPEN", version: 1}

	evt, err := eng.Apply(context.Background(), e, Request{
		Target: "ESCALATED",
		Actor:  Actor{ID: "u1", Role: "agent"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.status != "ESCALATED" {
		t.Errorf("expected ESCALATED, got %s", e.status)
	}
	if e.version != 2 {
		t.Errorf("expected version bump to 2, got %d", e.version)
	}
	if evt.FromStatus != "OPEN" || evt.ToStatus != "ESCALATED" {
		t.Errorf("unexpected event %+v", evt)
	}
	if evt.ActorID != "u1" {
		t.Errorf("expected actor u1, got %s", evt.ActorID)
	}
	if evt.Timestamp.IsZero() {
		t.Error("expected event timestamp")
	}
}

func TestApply_InvalidTransition(t *testing.T) {
	eng := newTestEngine()
	e := &fakeEntity{id: uuid.New(), status: "CLOSED", version: 3}

	_, err := eng.Apply(context.Background(), e, Request{
		Target: "OPEN",
		Actor:  Actor{ID: "u1", Role: "agent"},
	})
	if CodeOf(err) != CodeInvalidTransition {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
	if e.status != "CLOSED" || e.version != 3 {
		t.Error("entity must not be mutated on rejection")
	}
}

func TestApply_Unauthorized(t *testing.T) {
	eng := newTestEngine()
	e := &fakeEntity{id: uuid.New(), status: "OPEN", version: 1}

	_, err := eng.Apply(context.Background(), e, Request{
		Target: "ESCALATED",
		Actor:  Actor{ID: "u1", Role: "viewer"},
	})
	if CodeOf(err) != CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestApply_AdminBypassesRoleCheck(t *testing.T) {
	eng := newTestEngine()
	e := &fakeEntity{id: uuid.New(), status: "OPEN", version: 1}

	_, err := eng.Apply(context.Background(), e, Request{
		Target: "ESCALATED",
		Actor:  Actor{ID: "root", Role: RoleAdmin},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApply_MissingField(t *testing.T) {
	eng := newTestEngine()
	e := &fakeEntity{id: uuid.New(), status: "OPEN", version: 1}

	_, err := eng.Apply(context.Background(), e, Request{
		Target: "CLOSED",
		Actor:  Actor{ID: "u1", Role: "agent"},
	})
	if CodeOf(err) != CodeMissingField {
		t.Fatalf("expected missing_field, got %v", err)
	}

	_, err = eng.Apply(context.Background(), e, Request{
		Target: "CLOSED",
		Actor:  Actor{ID: "u1", Role: "agent"},
		Fields: map[string]string{"reason": "resolved"},
	})
	if err != nil {
		t.Fatalf("unexpected error with reason supplied: %v", err)
	}
}

func TestApply_VersionConflict(t *testing.T) {
	eng := newTestEngine()
	e := &fakeEntity{id: uuid.New(), status: "OPEN", version: 5}

	_, err := eng.Apply(context.Background(), e, Request{
		Target:          "ESCALATED",
		Actor:           Actor{ID: "u1", Role: "agent"},
		ExpectedVersion: 4,
	})
	if CodeOf(err) != CodeVersionConflict {
		t.Fatalf("expected version_conflict, got %v", err)
	}
	if e.version != 5 {
		t.Error("version must not change on conflict")
	}
}

func TestApply_GuardRejects(t *testing.T) {
	eng := newTestEngine()
	eng.AddGuard("Ticket", "ESCALATED", func(ctx context.Context, e Entity, req Request) error {
		return OpenDependency("linked work still open")
	})
	e := &fakeEntity{id: uuid.New(), status: "OPEN", version: 1}

	_, err := eng.Apply(context.Background(), e, Request{
		Target: "ESCALATED",
		Actor:  Actor{ID: "u1", Role: "agent"},
	})
	if CodeOf(err) != CodeOpenDependency {
		t.Fatalf("expected open_dependency, got %v", err)
	}
	if e.status != "OPEN" {
		t.Error("guard rejection must not mutate the entity")
	}
}
