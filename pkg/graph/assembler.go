package graph

import (
	"errors"
	"sync"
)

// ErrEmptyResult is returned by Finalize when the caller required a
// non-empty report and no path was supplied.
var ErrEmptyResult = errors.New("no control path found")

// Assembler merges discovered paths into a single report graph. It is safe
// for concurrent use: discovery workers feed it from multiple goroutines.
type Assembler struct {
	mu sync.Mutex
	g  *Graph
}

// NewAssembler creates an assembler with an empty report.
func NewAssembler() *Assembler {
	return &Assembler{g: NewGraph()}
}

// Add merges one path into the report under construction.
//
// Entities merge by canonical identity with first-seen-wins attributes: the
// store is the attribute source of truth, conflicting values are not
// expected for immutable snapshots. Edges merge by (from, to, type); when
// weights differ across occurrences the minimum observed is kept.
func (a *Assembler) Add(p Path) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range p.Entities {
		a.mergeEntity(&p.Entities[i])
	}
	for i := range p.Edges {
		a.mergeEdge(&p.Edges[i])
	}
}

// AddAll merges a batch of paths in one critical section.
func (a *Assembler) AddAll(paths []Path) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range paths {
		for i := range p.Entities {
			a.mergeEntity(&p.Entities[i])
		}
		for i := range p.Edges {
			a.mergeEdge(&p.Edges[i])
		}
	}
}

func (a *Assembler) mergeEntity(ent *Entity) {
	existing, ok := a.g.Nodes[ent.ID]
	if !ok {
		clone := *ent
		if ent.Properties != nil {
			clone.Properties = make(map[string]string, len(ent.Properties))
			for k, v := range ent.Properties {
				clone.Properties[k] = v
			}
		}
		a.g.Nodes[ent.ID] = &clone
		return
	}

	// Union of observed attributes, first-seen-wins on conflicts.
	for k, v := range ent.Properties {
		if existing.Properties == nil {
			existing.Properties = make(map[string]string)
		}
		if _, seen := existing.Properties[k]; !seen {
			existing.Properties[k] = v
		}
	}
	if existing.Type == EntityUnknown && ent.Type != EntityUnknown {
		existing.Type = ent.Type
	}
}

func (a *Assembler) mergeEdge(e *Edge) {
	key := e.Key()
	existing, ok := a.g.Edges[key]
	if !ok {
		clone := *e
		a.g.Edges[key] = &clone
		return
	}
	// Keep the cheapest observed control cost.
	if e.Weight != 0 && (existing.Weight == 0 || e.Weight < existing.Weight) {
		existing.Weight = e.Weight
	}
	existing.Denied = existing.Denied || e.Denied
}

// Graph returns the report under construction. Callers must not mutate it
// while workers are still adding paths.
func (a *Assembler) Graph() *Graph {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.g
}

// Finalize returns the merged report. With requireNonEmpty set, an empty
// report becomes ErrEmptyResult instead; otherwise an empty report is the
// valid "no control path exists within the depth bound" answer.
func (a *Assembler) Finalize(requireNonEmpty bool) (*Graph, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if requireNonEmpty && len(a.g.Nodes) == 0 {
		return nil, ErrEmptyResult
	}
	return a.g, nil
}

// Assemble merges a batch of paths into a fresh report graph.
func Assemble(paths []Path) *Graph {
	a := NewAssembler()
	a.AddAll(paths)
	return a.g
}
