// Package discover implements the bounded control-path discovery engine:
// selector canonicalization, per-pair traversal over the query channel, and
// assembly of the merged report graph.
package discover

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jbgalet/adcp/pkg/alias"
	"github.com/jbgalet/adcp/pkg/channel"
	"github.com/jbgalet/adcp/pkg/graph"
)

// ExchangeLabels are the Exchange RBAC relationship types skipped for
// non-mailbox root entities.
var ExchangeLabels = []string{
	"RBAC_SET_MBX",
	"RBAC_ADD_MBXPERM",
	"RBAC_ADD_MBXFOLDERPERM",
	"RBAC_CONNECT_MBX",
	"RBAC_NEW_MBXEXPORTREQ",
}

// Store queries issued by the engine, exported for test doubles.
const (
	QueryRelTypes = "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType"
	QueryNode     = "MATCH (n) WHERE n.name = $name RETURN labels(n) AS labels, properties(n) AS props"
	QueryExpand   = "MATCH (n)-[r]->(m) WHERE n.name = $name RETURN type(r) AS rel, properties(r) AS rel_props, m.name AS name, labels(m) AS labels, properties(m) AS props"
)

// Result is the outcome of one discovery run.
type Result struct {
	Graph    *graph.Graph
	Warnings []PairWarning
	Status   Status
	Paths    int
	Duration time.Duration
}

// Engine runs bounded control-path discovery against a query channel.
type Engine struct {
	ch       channel.Channel
	resolver *alias.Resolver
}

// New creates a discovery engine.
func New(ch channel.Channel, resolver *alias.Resolver) *Engine {
	return &Engine{ch: ch, resolver: resolver}
}

type pair struct {
	src string
	dst string
}

// Discover expands both selectors, traverses every canonical
// (source, target) pair through a bounded worker pool, and returns the
// merged report.
//
// Recoverable per-pair channel failures become warnings on the result; the
// run only fails outright when the configuration is invalid, a selector
// matches nothing, or every pair failed. Cancellation is not an error: the
// result carries StatusCancelled and the paths collected so far.
func (e *Engine) Discover(ctx context.Context, source, target string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { AdcpRunSeconds.Observe(time.Since(start).Seconds()) }()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	sources, err := e.resolver.ExpandSelector(ctx, source)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSelectorNotFound, source)
	}

	targets, err := e.resolver.ExpandSelector(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSelectorNotFound, target)
	}

	var relTypes []string
	if opts.ExcludeExchange {
		relTypes, err = e.traversalRelTypes(ctx)
		if err != nil {
			return nil, err
		}
	}

	var pairs []pair
	for _, s := range sources {
		for _, t := range targets {
			// An entity trivially controls itself; not a control path.
			if s != t {
				pairs = append(pairs, pair{src: s, dst: t})
			}
		}
	}

	asm := graph.NewAssembler()
	col := newCollector(opts.MaxResults)

	var (
		mu       sync.Mutex
		warnings []PairWarning
		firstErr error
		failed   int
	)

	work := make(chan pair)
	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pr := range work {
				if ctx.Err() != nil {
					continue
				}
				paths, err := e.discoverPair(ctx, pr, opts, relTypes, col)
				if err != nil {
					AdcpPairFailuresTotal.Inc()
					log.Printf("discovery pair %s -> %s failed: %v", pr.src, pr.dst, err)
					mu.Lock()
					warnings = append(warnings, PairWarning{Source: pr.src, Target: pr.dst, Err: err})
					if firstErr == nil {
						firstErr = err
					}
					failed++
					mu.Unlock()
					continue
				}
				asm.AddAll(paths)
			}
		}()
	}

feed:
	for _, pr := range pairs {
		select {
		case work <- pr:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	status := StatusComplete
	if ctx.Err() != nil {
		status = StatusCancelled
	}

	if status == StatusComplete && len(pairs) > 0 && failed == len(pairs) {
		return nil, fmt.Errorf("all %d source/target pairs failed: %w", len(pairs), firstErr)
	}

	g, err := asm.Finalize(opts.RequireNonEmpty)
	if err != nil {
		return nil, err
	}

	return &Result{
		Graph:    g,
		Warnings: warnings,
		Status:   status,
		Paths:    col.count(),
		Duration: time.Since(start),
	}, nil
}

// discoverPair enumerates the simple paths for one canonical pair, either
// through the store's variable-length path primitive or, when the channel
// cannot express it, through the engine's own bounded traversal.
func (e *Engine) discoverPair(ctx context.Context, pr pair, opts Options, relTypes []string, col *collector) ([]graph.Path, error) {
	if e.ch.Capabilities().VariableLengthPaths {
		return e.discoverPairQuery(ctx, pr, opts, relTypes, col)
	}
	return e.traversePair(ctx, pr, opts, relTypes, col)
}

func (e *Engine) discoverPairQuery(ctx context.Context, pr pair, opts Options, relTypes []string, col *collector) ([]graph.Path, error) {
	mode := "full"
	if opts.QuickMode {
		mode = "quick"
	}
	AdcpQueriesTotal.WithLabelValues(mode).Inc()

	cursor, err := e.ch.Run(ctx, pathQuery(opts, relTypes), map[string]any{
		"source": pr.src,
		"target": pr.dst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	defer cursor.Close(ctx)

	var (
		out  []graph.Path
		sigs []string
	)
	for cursor.Next(ctx) {
		cp, ok := cursor.Record().Path("p")
		if !ok {
			continue
		}
		p, ok := e.toGraphPath(cp)
		if !ok {
			continue
		}
		// The engine owns the path invariants regardless of what the
		// store returned.
		if p.Len() < 1 || p.Len() > opts.MaxDepth || !p.Simple() {
			continue
		}
		accepted, full := col.add(p.Signature())
		if accepted {
			out = append(out, p)
			sigs = append(sigs, p.Signature())
			AdcpPathsTotal.Inc()
		}
		// Stop consuming early instead of draining the cursor.
		if full || (opts.QuickMode && len(out) > 0) {
			break
		}
	}
	if err := cursor.Err(); err != nil {
		if isCancellation(err) {
			return out, nil
		}
		// Drop this pair's partial paths so the report never carries an
		// incomplete path set for it.
		col.release(sigs)
		return nil, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	return out, nil
}

// pathQuery renders the bounded traversal query for one pair. Cypher cannot
// parameterize variable-length bounds, so the depth is inlined.
func pathQuery(opts Options, relTypes []string) string {
	rel := fmt.Sprintf("[*1..%d]", opts.MaxDepth)
	if len(relTypes) > 0 {
		rel = fmt.Sprintf("[:%s*1..%d]", strings.Join(relTypes, "|"), opts.MaxDepth)
	}
	if opts.QuickMode {
		return fmt.Sprintf("MATCH p = shortestPath((n)-%s->(m)) WHERE n.name = $source AND m.name = $target RETURN p", rel)
	}
	return fmt.Sprintf("MATCH p = (n)-%s->(m) WHERE n.name = $source AND m.name = $target RETURN p", rel)
}

// traversalRelTypes lists the store's relationship types minus the Exchange
// RBAC ones.
func (e *Engine) traversalRelTypes(ctx context.Context) ([]string, error) {
	types, err := e.relationshipTypes(ctx)
	if err != nil {
		return nil, err
	}
	return withoutExchange(types), nil
}

// relationshipTypes lists every relationship type present in the store.
func (e *Engine) relationshipTypes(ctx context.Context) ([]string, error) {
	cursor, err := e.ch.Run(ctx, QueryRelTypes, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	defer cursor.Close(ctx)

	var out []string
	for cursor.Next(ctx) {
		t, ok := cursor.Record().String("relationshipType")
		if !ok {
			continue
		}
		out = append(out, t)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	return out, nil
}

// relTypeNone is an impossible relationship type. It stands in when
// exclusion leaves no allowed type at all: an empty filter would mean
// "match anything" and re-admit exactly the excluded types.
const relTypeNone = "NO_SUCH_REL"

func withoutExchange(types []string) []string {
	excluded := make(map[string]struct{}, len(ExchangeLabels))
	for _, l := range ExchangeLabels {
		excluded[l] = struct{}{}
	}
	out := types[:0]
	for _, t := range types {
		if _, skip := excluded[t]; !skip {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []string{relTypeNone}
	}
	return out
}

// toGraphPath converts a streamed store path into a report path with
// canonicalized identities.
func (e *Engine) toGraphPath(cp channel.Path) (graph.Path, bool) {
	if len(cp.Nodes) == 0 || len(cp.Relationships) != len(cp.Nodes)-1 {
		return graph.Path{}, false
	}

	canonicalByID := make(map[string]string, len(cp.Nodes))
	p := graph.Path{
		Entities: make([]graph.Entity, 0, len(cp.Nodes)),
		Edges:    make([]graph.Edge, 0, len(cp.Relationships)),
	}

	for _, n := range cp.Nodes {
		canonical := e.resolver.Resolve(n.Name)
		canonicalByID[n.ID] = canonical
		p.Entities = append(p.Entities, graph.Entity{
			ID:         canonical,
			Type:       entityType(n.Labels),
			Label:      graph.Shortname(canonical),
			Properties: stringProps(n.Properties),
		})
	}

	for _, r := range cp.Relationships {
		from, okFrom := canonicalByID[r.Start]
		to, okTo := canonicalByID[r.End]
		if !okFrom || !okTo {
			return graph.Path{}, false
		}
		p.Edges = append(p.Edges, graph.Edge{
			FromID: from,
			ToID:   to,
			Type:   r.Type,
			Weight: weightOf(r.Properties),
		})
	}
	return p, true
}

func entityType(labels []string) graph.EntityType {
	if len(labels) == 0 {
		return graph.EntityUnknown
	}
	return graph.EntityType(strings.ToLower(labels[0]))
}

func stringProps(props map[string]any) map[string]string {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		if k == "name" {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func weightOf(props map[string]any) float64 {
	for _, key := range []string{"cost", "weight"} {
		switch v := props[key].(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case int:
			return float64(v)
		}
	}
	return 0
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// collector enforces the global path budget and deduplicates paths across
// pairs. Failed pairs release their signatures so a retry by another alias
// pair is not suppressed.
type collector struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	max   int
	total int
}

func newCollector(max int) *collector {
	return &collector{seen: make(map[string]struct{}), max: max}
}

func (c *collector) add(sig string) (accepted, full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.max > 0 && c.total >= c.max {
		return false, true
	}
	if _, dup := c.seen[sig]; dup {
		return false, false
	}
	c.seen[sig] = struct{}{}
	c.total++
	return true, c.max > 0 && c.total >= c.max
}

func (c *collector) release(sigs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sig := range sigs {
		if _, ok := c.seen[sig]; ok {
			delete(c.seen, sig)
			c.total--
		}
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
