package discover

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jbgalet/adcp/pkg/graph"
)

// Direction orients a rooted expansion: "to" collects what controls the
// root, "from" collects what the root controls.
type Direction string

const (
	DirectionTo   Direction = "to"
	DirectionFrom Direction = "from"
)

// Expand grows the control graph around one root entity, layer by layer,
// up to MaxDepth hops. Unlike Discover it is single-rooted: there is no
// target, every entity reachable through control relationships joins the
// report.
//
// Exchange RBAC relationships are skipped unless the root looks like a
// mailbox (its name carries an '@').
func (e *Engine) Expand(ctx context.Context, root string, dir Direction, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if dir != DirectionTo && dir != DirectionFrom {
		return nil, fmt.Errorf("%w: direction must be %q or %q", ErrInvalidConfiguration, DirectionTo, DirectionFrom)
	}

	start := time.Now()
	defer func() { AdcpRunSeconds.Observe(time.Since(start).Seconds()) }()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	name := e.resolver.Resolve(root)

	types, err := e.relationshipTypes(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(name, "@") {
		types = withoutExchange(types)
	}
	query := layerQuery(dir, types)

	asm := graph.NewAssembler()
	status := StatusComplete
	seen := map[string]struct{}{name: {}}
	frontier := []string{name}
	relations := 0

	for depth := 1; depth <= opts.MaxDepth && len(frontier) > 0; depth++ {
		if ctx.Err() != nil {
			status = StatusCancelled
			break
		}

		next, count, err := e.expandLayer(ctx, query, depth, frontier, seen, asm)
		if err != nil {
			if isCancellation(err) {
				status = StatusCancelled
				break
			}
			return nil, err
		}
		log.Printf("expansion depth %d: %d relations, %d new entities, %d assembled",
			depth, count, len(next), asm.Graph().Order())

		relations += count
		for _, n := range next {
			seen[n] = struct{}{}
		}
		frontier = next

		if opts.MaxResults > 0 && relations >= opts.MaxResults {
			break
		}
	}

	g, err := asm.Finalize(opts.RequireNonEmpty)
	if err != nil {
		return nil, err
	}

	return &Result{
		Graph:    g,
		Status:   status,
		Paths:    relations,
		Duration: time.Since(start),
	}, nil
}

// expandLayer fetches every control relationship between the frontier and
// entities not yet in the graph, and returns the names discovered.
func (e *Engine) expandLayer(ctx context.Context, query string, depth int, frontier []string, seen map[string]struct{}, asm *graph.Assembler) ([]string, int, error) {
	AdcpQueriesTotal.WithLabelValues("expand").Inc()

	exclude := make([]string, 0, len(seen))
	for n := range seen {
		exclude = append(exclude, n)
	}
	sort.Strings(exclude)

	// $depth is unused by the query itself; it tags the layer in query
	// logs and test doubles.
	cursor, err := e.ch.Run(ctx, query, map[string]any{
		"nodes": frontier,
		"seen":  exclude,
		"depth": depth,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	defer cursor.Close(ctx)

	var (
		next   []string
		inNext = make(map[string]struct{})
		count  int
	)
	for cursor.Next(ctx) {
		cp, ok := cursor.Record().Path("path")
		if !ok {
			continue
		}
		p, ok := e.toGraphPath(cp)
		if !ok {
			continue
		}
		asm.Add(p)
		count++
		AdcpPathsTotal.Inc()

		for _, ent := range p.Entities {
			if _, old := seen[ent.ID]; old {
				continue
			}
			if _, dup := inNext[ent.ID]; dup {
				continue
			}
			inNext[ent.ID] = struct{}{}
			next = append(next, ent.ID)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, count, fmt.Errorf("%w: %v", ErrChannel, err)
	}

	sort.Strings(next)
	return next, count, nil
}

// layerQuery renders the single-layer expansion query. The relationship
// filter is inlined; Cypher cannot parameterize types.
func layerQuery(dir Direction, relTypes []string) string {
	filter := ""
	if len(relTypes) > 0 {
		filter = ":" + strings.Join(relTypes, "|")
	}
	arrow := fmt.Sprintf("-[%s]->", filter)
	if dir == DirectionTo {
		arrow = fmt.Sprintf("<-[%s]-", filter)
	}
	return fmt.Sprintf("MATCH path = (n)%s(m) WHERE n.name IN $nodes AND NOT m.name IN $seen RETURN path", arrow)
}
