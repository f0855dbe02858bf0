package discover

import (
	"context"
	"fmt"

	"github.com/jbgalet/adcp/pkg/graph"
)

// neighbor is one outgoing hop discovered by a single-hop expansion query.
type neighbor struct {
	rel      string
	relProps map[string]any
	ent      graph.Entity
}

// traversePair is the fallback for stores without a variable-length path
// primitive: a bounded traversal built from single-hop queries, driven by
// an explicit stack of partial paths rather than recursion so memory stays
// bounded and cancellation is checked between expansions.
//
// The visited set is per path, not global: a node excluded on one branch
// can still appear on an independent branch. Full mode explores the
// frontier depth-first and collects every simple path up to MaxDepth; quick
// mode explores breadth-first, so the first complete path is a shortest one
// (tie-breaking follows expansion order, which is store-defined).
func (e *Engine) traversePair(ctx context.Context, pr pair, opts Options, relTypes []string, col *collector) ([]graph.Path, error) {
	var allowed map[string]struct{}
	if len(relTypes) > 0 {
		allowed = make(map[string]struct{}, len(relTypes))
		for _, t := range relTypes {
			allowed[t] = struct{}{}
		}
	}

	root, ok, err := e.fetchEntity(ctx, pr.src)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The selector expanded moments ago; the node vanishing since is
		// an empty result, not a fault.
		return nil, nil
	}

	cache := make(map[string][]neighbor)
	frontier := []graph.Path{{Entities: []graph.Entity{root}}}

	var (
		out  []graph.Path
		sigs []string
	)

	for len(frontier) > 0 {
		if ctx.Err() != nil {
			return out, nil
		}

		var cur graph.Path
		if opts.QuickMode {
			cur, frontier = frontier[0], frontier[1:]
		} else {
			cur, frontier = frontier[len(frontier)-1], frontier[:len(frontier)-1]
		}

		if cur.Len() >= opts.MaxDepth {
			continue
		}

		last := cur.Entities[len(cur.Entities)-1]
		neighbors, err := e.neighbors(ctx, last.ID, cache)
		if err != nil {
			if isCancellation(err) {
				return out, nil
			}
			col.release(sigs)
			return nil, err
		}

		for _, nb := range neighbors {
			if allowed != nil {
				if _, ok := allowed[nb.rel]; !ok {
					continue
				}
			}
			if pathContains(cur, nb.ent.ID) {
				continue
			}

			next := extendPath(cur, nb)
			if nb.ent.ID != pr.dst {
				frontier = append(frontier, next)
				continue
			}

			accepted, full := col.add(next.Signature())
			if accepted {
				out = append(out, next)
				sigs = append(sigs, next.Signature())
				AdcpPathsTotal.Inc()
			}
			if full || (opts.QuickMode && len(out) > 0) {
				return out, nil
			}
		}
	}
	return out, nil
}

// fetchEntity loads one entity snapshot by canonical name.
func (e *Engine) fetchEntity(ctx context.Context, name string) (graph.Entity, bool, error) {
	AdcpQueriesTotal.WithLabelValues("node").Inc()

	cursor, err := e.ch.Run(ctx, QueryNode, map[string]any{"name": name})
	if err != nil {
		return graph.Entity{}, false, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		rec := cursor.Record()
		labels, _ := rec.Strings("labels")
		props, _ := rec.Properties("props")
		return graph.Entity{
			ID:         name,
			Type:       entityType(labels),
			Label:      graph.Shortname(name),
			Properties: stringProps(props),
		}, true, nil
	}
	if err := cursor.Err(); err != nil {
		return graph.Entity{}, false, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	return graph.Entity{}, false, nil
}

// neighbors expands one node through a single-hop query, memoized per pair
// so shared prefixes do not re-query the store.
func (e *Engine) neighbors(ctx context.Context, name string, cache map[string][]neighbor) ([]neighbor, error) {
	if cached, ok := cache[name]; ok {
		return cached, nil
	}

	AdcpQueriesTotal.WithLabelValues("expand").Inc()

	cursor, err := e.ch.Run(ctx, QueryExpand, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	defer cursor.Close(ctx)

	var out []neighbor
	for cursor.Next(ctx) {
		rec := cursor.Record()
		rel, ok := rec.String("rel")
		if !ok {
			continue
		}
		target, ok := rec.String("name")
		if !ok || target == "" {
			continue
		}
		labels, _ := rec.Strings("labels")
		props, _ := rec.Properties("props")
		relProps, _ := rec.Properties("rel_props")

		canonical := e.resolver.Resolve(target)
		out = append(out, neighbor{
			rel:      rel,
			relProps: relProps,
			ent: graph.Entity{
				ID:         canonical,
				Type:       entityType(labels),
				Label:      graph.Shortname(canonical),
				Properties: stringProps(props),
			},
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannel, err)
	}

	cache[name] = out
	return out, nil
}

func pathContains(p graph.Path, id string) bool {
	for _, ent := range p.Entities {
		if ent.ID == id {
			return true
		}
	}
	return false
}

// extendPath appends one hop, copying the slices so sibling branches do not
// share backing arrays.
func extendPath(p graph.Path, nb neighbor) graph.Path {
	entities := make([]graph.Entity, len(p.Entities), len(p.Entities)+1)
	copy(entities, p.Entities)
	entities = append(entities, nb.ent)

	edges := make([]graph.Edge, len(p.Edges), len(p.Edges)+1)
	copy(edges, p.Edges)
	edges = append(edges, graph.Edge{
		FromID: p.Entities[len(p.Entities)-1].ID,
		ToID:   nb.ent.ID,
		Type:   nb.rel,
		Weight: weightOf(nb.relProps),
	})

	return graph.Path{Entities: entities, Edges: edges}
}
