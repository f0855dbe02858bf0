// Package export serializes a control-path report into the portable
// nodes/links JSON document consumed by graph viewers.
package export

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/jbgalet/adcp/pkg/graph"
)

// Node is one exported entity.
type Node struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Shortname string `json:"shortname"`
	Type      string `json:"type"`
}

// Link is one exported pair of entities with every relationship tag
// observed between them.
type Link struct {
	Source int      `json:"source"`
	Target int      `json:"target"`
	Rels   []string `json:"rels"`
}

// Document is the full export payload.
type Document struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Options controls the denied-ACE view. ShowDenied keeps denied edges in
// the document tagged with an extra DENY rel for coloration; otherwise
// denied edges and link-less entities are dropped.
type Options struct {
	ShowDenied bool
}

// Build converts a report graph into a document. Output ordering is stable
// across runs: nodes sort by canonical identity, links by endpoint indexes.
func Build(g *graph.Graph, opts Options) *Document {
	doc := &Document{Nodes: []Node{}, Links: []Link{}}

	index := make(map[string]int)
	for _, ent := range g.NodeList() {
		if !opts.ShowDenied && ent.NoLinks {
			continue
		}
		index[ent.ID] = len(doc.Nodes)
		doc.Nodes = append(doc.Nodes, Node{
			ID:        len(doc.Nodes),
			Name:      ent.ID,
			Shortname: graph.Shortname(ent.ID),
			Type:      string(ent.Type),
		})
	}

	type pairKey struct{ src, dst int }
	rels := make(map[pairKey][]string)
	deniedPairs := make(map[pairKey]bool)

	for _, e := range g.EdgeList() {
		src, okSrc := index[e.FromID]
		dst, okDst := index[e.ToID]
		if !okSrc || !okDst {
			continue
		}
		if e.Denied {
			if !opts.ShowDenied {
				continue
			}
			deniedPairs[pairKey{src, dst}] = true
		}
		key := pairKey{src, dst}
		rels[key] = append(rels[key], e.Type)
	}

	for key, tags := range rels {
		sort.Strings(tags)
		if deniedPairs[key] {
			tags = append(tags, "DENY")
		}
		doc.Links = append(doc.Links, Link{Source: key.src, Target: key.dst, Rels: tags})
	}
	sort.Slice(doc.Links, func(i, j int) bool {
		if doc.Links[i].Source != doc.Links[j].Source {
			return doc.Links[i].Source < doc.Links[j].Source
		}
		return doc.Links[i].Target < doc.Links[j].Target
	})

	return doc
}

// Write builds the document and writes it as JSON.
func Write(w io.Writer, g *graph.Graph, opts Options) error {
	return json.NewEncoder(w).Encode(Build(g, opts))
}
