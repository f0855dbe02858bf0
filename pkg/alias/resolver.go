package alias

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jbgalet/adcp/pkg/channel"
)

// ErrResolution means the backing alias table could not be loaded from the
// store. It is fatal at initialization, never a per-call error.
var ErrResolution = errors.New("alias table unavailable")

// Store queries issued by the resolver. Exported so test doubles can match
// on them.
const (
	QueryAliases  = "MATCH (n) WHERE n.objectSid IS NOT NULL RETURN n.objectSid AS alt, n.name AS name"
	QueryPrefix   = "MATCH (n) WHERE n.name STARTS WITH $name RETURN DISTINCT n.name AS name"
	QueryExact    = "MATCH (n) WHERE n.name = $name RETURN DISTINCT n.name AS name"
	QueryContains = "MATCH (n) WHERE n.name CONTAINS $name RETURN DISTINCT n.name AS name, labels(n) AS labels"
)

// Match is one search hit.
type Match struct {
	Name   string
	Labels []string
}

// Resolver maps raw directory-object identities to canonical ones and
// expands selector shortcuts. The alias table is loaded once from the store
// at construction and is read-only afterwards.
type Resolver struct {
	ch      channel.Channel
	lang    string
	aliases map[string]string // lowercase alternate identity -> canonical name
}

// NewResolver loads the alias table from the store and returns a resolver
// for the given shortcut language. An unreachable store fails with a
// wrapped ErrResolution.
func NewResolver(ctx context.Context, ch channel.Channel, lang string) (*Resolver, error) {
	if _, ok := Shortcuts[lang]; !ok {
		lang = DefaultLang
	}

	r := &Resolver{
		ch:      ch,
		lang:    lang,
		aliases: make(map[string]string),
	}

	cursor, err := ch.Run(ctx, QueryAliases, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		rec := cursor.Record()
		alt, _ := rec.String("alt")
		name, _ := rec.String("name")
		if alt == "" || name == "" {
			continue
		}
		r.aliases[strings.ToLower(alt)] = name
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}

	return r, nil
}

// Lang returns the active shortcut language.
func (r *Resolver) Lang() string {
	return r.lang
}

// Resolve maps an identity string to its canonical identity. Unknown
// identities resolve to themselves: missing alias metadata degrades
// discovery, it does not block it.
func (r *Resolver) Resolve(identity string) string {
	if canonical, ok := r.aliases[strings.ToLower(identity)]; ok {
		return canonical
	}
	return identity
}

// ExpandSelector turns a selector into the set of canonical identities it
// denotes. A shortcut ("adm_dom") expands through a distinguished-name
// prefix lookup and may fan out to several identities; anything else is
// canonicalized and matched exactly.
func (r *Resolver) ExpandSelector(ctx context.Context, selector string) ([]string, error) {
	if selector == "" {
		return nil, errors.New("empty selector")
	}

	query := QueryExact
	needle := r.Resolve(selector)
	if prefix, ok := Shortcuts[r.lang][strings.ToLower(selector)]; ok {
		query = QueryPrefix
		needle = prefix
	}

	cursor, err := r.ch.Run(ctx, query, map[string]any{"name": needle})
	if err != nil {
		return nil, fmt.Errorf("selector expansion failed: %w", err)
	}
	defer cursor.Close(ctx)

	seen := make(map[string]struct{})
	var out []string
	for cursor.Next(ctx) {
		name, ok := cursor.Record().String("name")
		if !ok || name == "" {
			continue
		}
		canonical := r.Resolve(name)
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("selector expansion failed: %w", err)
	}

	sort.Strings(out)
	return out, nil
}

// Search returns entities whose name contains the needle.
func (r *Resolver) Search(ctx context.Context, needle string) ([]Match, error) {
	cursor, err := r.ch.Run(ctx, QueryContains, map[string]any{"name": needle})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Match
	for cursor.Next(ctx) {
		rec := cursor.Record()
		name, ok := rec.String("name")
		if !ok {
			continue
		}
		labels, _ := rec.Strings("labels")
		out = append(out, Match{Name: name, Labels: labels})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return out, nil
}
