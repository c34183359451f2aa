package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Actor identifies who requested a transition. It is threaded explicitly
// through every call; the engine never reads ambient session state.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// RoleAdmin passes every edge role check.
const RoleAdmin = "admin"

// Entity is the minimal surface the engine needs from a domain record.
type Entity interface {
	LifecycleID() uuid.UUID
	LifecycleType() string
	CurrentStatus() string
	SetStatus(status string)
	GetVersion() int
	SetVersion(v int)
}

// Request describes one transition attempt. ExpectedVersion zero means
// "the version just loaded"; the repository still performs a
// version-checked write inside the same transaction.
type Request struct {
	Target          string
	Actor           Actor
	Fields          map[string]string
	ExpectedVersion int
}

// Event is emitted once per committed transition.
type Event struct {
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Timestamp  time.Time `json:"timestamp"`
}

// Guard is a cross-entity precondition evaluated after edge, role, field
// and version checks, inside the caller's transaction.
type Guard func(ctx context.Context, e Entity, req Request) error

// Engine validates and applies transitions against the registry.
type Engine struct {
	registry *Registry
	guards   map[string][]Guard
}

func NewEngine(registry *Registry) *Engine {
	return &Engine{
		registry: registry,
		guards:   make(map[string][]Guard),
	}
}

// Registry returns the engine's transition registry.
func (g *Engine) Registry() *Registry {
	return g.registry
}

// AddGuard registers a guard for transitions of entityType into target.
func (g *Engine) AddGuard(entityType, target string, fn Guard) {
	key := entityType + ":" + target
	g.guards[key] = append(g.guards[key], fn)
}

// Apply validates req against the registry and, when every check passes,
// mutates e in memory (status + version) and returns the domain event.
// Persisting the mutation and publishing the event stay with the caller so
// the whole transition commits or rolls back as one unit.
func (g *Engine) Apply(ctx context.Context, e Entity, req Request) (*Event, error) {
	from := e.CurrentStatus()

	edge, ok := g.registry.FindEdge(e.LifecycleType(), from, req.Target)
	if !ok {
		return nil, InvalidTransition(e.LifecycleType(), from, req.Target)
	}

	if !roleAllowed(req.Actor.Role, edge.Roles) {
		return nil, Unauthorized(req.Actor.Role, e.LifecycleType(), req.Target)
	}

	for _, f := range edge.RequiredFields {
		if req.Fields[f] == "" {
			return nil, MissingField(f)
		}
	}

	if req.ExpectedVersion > 0 && req.ExpectedVersion != e.GetVersion() {
		return nil, VersionConflict(req.ExpectedVersion, e.GetVersion())
	}

	for _, guard := range g.guards[e.LifecycleType()+":"+req.Target] {
		if err := guard(ctx, e, req); err != nil {
			return nil, err
		}
	}

	e.SetStatus(req.Target)
	e.SetVersion(e.GetVersion() + 1)

	return &Event{
		EntityType: e.LifecycleType(),
		EntityID:   e.LifecycleID(),
		FromStatus: from,
		ToStatus:   req.Target,
		ActorID:    req.Actor.ID,
		ActorRole:  req.Actor.Role,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func roleAllowed(role string, allowed []string) bool {
	if role == RoleAdmin {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
