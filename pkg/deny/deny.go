// Package deny filters discovered control paths against DENY ACEs parsed
// from an ADCP dump workdir. Deny rules cut edges from the report; entities
// left without any surviving route to the target are tagged so renderers
// can drop or dim them.
package deny

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jbgalet/adcp/pkg/graph"
)

// Column headers of the dump's deny CSV files.
const (
	colSource = "dnMaster:START_ID"
	colTarget = "dnSlave:END_ID"
	colType   = "keyword:TYPE"
)

// Rule is one denied (source, target, relationship type) triple.
type Rule struct {
	Source string
	Target string
	Type   string
}

// ValidWorkdir reports whether the directory looks like an ADCP dump root.
func ValidWorkdir(workdir string) bool {
	if workdir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(workdir, "Relations"))
	return err == nil && info.IsDir()
}

// LoadRules parses every Relations/*.deny.csv under the workdir. The dump
// writes these files UTF-16LE.
func LoadRules(workdir string) ([]Rule, error) {
	pattern := filepath.Join(workdir, "Relations", "*.deny.csv")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad deny pattern: %w", err)
	}

	var rules []Rule
	for _, file := range files {
		fileRules, err := loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
		rules = append(rules, fileRules...)
	}
	return rules, nil
}

func loadFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	reader := csv.NewReader(transform.NewReader(f, decoder))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	idx := map[string]int{}
	for i, col := range header {
		idx[col] = i
	}
	for _, col := range []string{colSource, colTarget, colType} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var rules []Rule
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) <= idx[colType] {
			continue
		}
		rules = append(rules, Rule{
			Source: row[idx[colSource]],
			Target: row[idx[colTarget]],
			Type:   row[idx[colType]],
		})
	}
	return rules, nil
}

// Fingerprint digests a rule set, insensitive to rule order. Report caches
// key on it so a workdir change invalidates entries built under the old
// rules. An empty rule set has an empty fingerprint.
func Fingerprint(rules []Rule) string {
	if len(rules) == 0 {
		return ""
	}
	lines := make([]string, len(rules))
	for i, r := range rules {
		lines[i] = r.Source + "\x1f" + r.Target + "\x1f" + r.Type
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\x1e")))
	return hex.EncodeToString(sum[:8])
}

// Apply marks report edges matched by a deny rule and tags entities whose
// every remaining route to the target runs through a denied edge. It
// returns the number of denied edges and tagged entities.
func Apply(g *graph.Graph, rules []Rule, target string) (deniedEdges, noLinkNodes int) {
	if len(rules) == 0 {
		return 0, 0
	}

	denied := make(map[graph.EdgeKey]struct{}, len(rules))
	for _, r := range rules {
		denied[graph.EdgeKey{From: r.Source, To: r.Target, Type: r.Type}] = struct{}{}
	}

	for key, edge := range g.Edges {
		if _, ok := denied[key]; ok {
			edge.Denied = true
			deniedEdges++
		}
	}
	if deniedEdges == 0 {
		return 0, 0
	}

	// Reverse reachability from the target over surviving edges: anything
	// that can no longer reach the target lost all of its routes to a
	// deny rule.
	reachable := map[string]struct{}{target: {}}
	queue := []string{target}
	incoming := make(map[string][]string)
	for id := range g.Nodes {
		for _, e := range g.OutEdges(id) {
			incoming[e.ToID] = append(incoming[e.ToID], id)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, from := range incoming[cur] {
			if _, seen := reachable[from]; seen {
				continue
			}
			reachable[from] = struct{}{}
			queue = append(queue, from)
		}
	}

	for id, node := range g.Nodes {
		if id == target {
			continue
		}
		if _, ok := reachable[id]; !ok {
			node.NoLinks = true
			noLinkNodes++
		}
	}
	return deniedEdges, noLinkNodes
}
