package lifecycle

// Edge is a registered transition: target status, roles allowed to take it,
// and fields the request payload must supply.
type Edge struct {
	To             string
	Roles          []string
	RequiredFields []string
}

// Registry holds the transition graph for every entity type. Graphs are
// registered once at startup; lookups are read-only after that.
type Registry struct {
	graphs map[string]map[string][]Edge
}

func NewRegistry() *Registry {
	return &Registry{graphs: make(map[string]map[string][]Edge)}
}

// Register adds the transition graph for an entity type. Registering the
// same type twice replaces the previous graph.
func (r *Registry) Register(entityType string, graph map[string][]Edge) {
	r.graphs[entityType] = graph
}

// AllowedTransitions returns the outgoing edges from a status. An empty
// result is a normal terminal condition, not an error.
func (r *Registry) AllowedTransitions(entityType, from string) []Edge {
	return r.graphs[entityType][from]
}

// FindEdge returns the edge from→to for an entity type, if registered.
func (r *Registry) FindEdge(entityType, from, to string) (Edge, bool) {
	for _, e := range r.graphs[entityType][from] {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// IsTerminal reports whether a status has no outgoing edges.
func (r *Registry) IsTerminal(entityType, status string) bool {
	return len(r.graphs[entityType][status]) == 0
}

// EntityTypes lists the registered entity types.
func (r *Registry) EntityTypes() []string {
	types := make([]string, 0, len(r.graphs))
	for t := range r.graphs {
		types = append(types, t)
	}
	return types
}
