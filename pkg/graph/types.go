// Package graph holds the control-path report model: entities, control
// relationships, discovered paths, and the merged report graph.
package graph

import (
	"sort"
	"strings"
)

// EntityType is the semantic class of a directory object.
type EntityType string

const (
	EntityUser      EntityType = "user"
	EntityGroup     EntityType = "group"
	EntityComputer  EntityType = "computer"
	EntityContainer EntityType = "container"
	EntityGPO       EntityType = "gpo"
	EntityUnknown   EntityType = "unknown"
)

// Entity is a node of the report graph, an immutable snapshot of a
// directory object keyed by its canonical identity.
type Entity struct {
	ID         string            `json:"id"`
	Type       EntityType        `json:"type"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties,omitempty"`
	NoLinks    bool              `json:"no_links,omitempty"`
}

// Shortname returns the first component of a distinguished name, used as a
// display label ("cn=domain admins,dc=corp" -> "cn=domain admins").
func Shortname(name string) string {
	if i := strings.IndexByte(name, ','); i >= 0 {
		return name[:i]
	}
	return name
}

// Edge is a directed control relationship between two entities.
// FromID controls ToID through the Type relationship.
type Edge struct {
	FromID string  `json:"from_id"`
	ToID   string  `json:"to_id"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight,omitempty"`
	Denied bool    `json:"denied,omitempty"`
}

// EdgeKey identifies an edge in the report: parallel edges of different
// relationship types between the same pair stay distinct.
type EdgeKey struct {
	From string
	To   string
	Type string
}

// Key returns the dedup key of the edge.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{From: e.FromID, To: e.ToID, Type: e.Type}
}

// Path is an ordered, cycle-free chain of entities connected by edges.
// Entities has exactly one more element than Edges.
type Path struct {
	Entities []Entity
	Edges    []Edge
}

// Len returns the number of hops.
func (p Path) Len() int {
	return len(p.Edges)
}

// Signature returns a stable identity for the path, used for deduplication
// across traversal queries.
func (p Path) Signature() string {
	var b strings.Builder
	for i, e := range p.Edges {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(e.FromID)
		b.WriteByte('>')
		b.WriteString(e.Type)
		b.WriteByte('>')
		b.WriteString(e.ToID)
	}
	return b.String()
}

// Simple reports whether no entity repeats along the path.
func (p Path) Simple() bool {
	seen := make(map[string]struct{}, len(p.Entities))
	for _, ent := range p.Entities {
		if _, dup := seen[ent.ID]; dup {
			return false
		}
		seen[ent.ID] = struct{}{}
	}
	return true
}

// Graph is the merged control-path report: entities deduplicated by
// canonical identity, edges deduplicated by (from, to, type).
type Graph struct {
	Nodes map[string]*Entity
	Edges map[EdgeKey]*Edge
}

// NewGraph creates an empty report graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Entity),
		Edges: make(map[EdgeKey]*Edge),
	}
}

// Order returns the number of entities.
func (g *Graph) Order() int {
	return len(g.Nodes)
}

// Size returns the number of edges.
func (g *Graph) Size() int {
	return len(g.Edges)
}

// EdgeList returns the edges in a stable order.
func (g *Graph) EdgeList() []*Edge {
	out := make([]*Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromID != out[j].FromID {
			return out[i].FromID < out[j].FromID
		}
		if out[i].ToID != out[j].ToID {
			return out[i].ToID < out[j].ToID
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// NodeList returns the entities sorted by canonical identity.
func (g *Graph) NodeList() []*Entity {
	out := make([]*Entity, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OutEdges returns the non-denied edges leaving the given entity.
func (g *Graph) OutEdges(id string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.FromID == id && !e.Denied {
			out = append(out, e)
		}
	}
	return out
}
