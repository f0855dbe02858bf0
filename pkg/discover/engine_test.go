package discover

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jbgalet/adcp/pkg/alias"
	"github.com/jbgalet/adcp/pkg/channel"
	"github.com/jbgalet/adcp/pkg/channel/channeltest"
	"github.com/jbgalet/adcp/pkg/graph"
)

func rec(values map[string]any) channel.Record {
	return channel.NewRecord(values)
}

// pathRecord builds a streamed path record over the given node names, with
// one GROUP_MEMBER hop between consecutive nodes.
func pathRecord(names ...string) channel.Record {
	return pathRecordTyped("GROUP_MEMBER", names...)
}

func pathRecordTyped(relType string, names ...string) channel.Record {
	p := channel.Path{}
	for i, n := range names {
		p.Nodes = append(p.Nodes, channel.Node{
			ID:     string(rune('a' + i)),
			Name:   n,
			Labels: []string{"group"},
		})
	}
	for i := 0; i+1 < len(names); i++ {
		p.Relationships = append(p.Relationships, channel.Relationship{
			Start: string(rune('a' + i)),
			End:   string(rune('a' + i + 1)),
			Type:  relType,
		})
	}
	return rec(map[string]any{"p": p})
}

func nameRec(name string) channel.Record {
	return rec(map[string]any{"name": name})
}

func newTestEngine(t *testing.T, fake *channeltest.Fake) *Engine {
	t.Helper()
	resolver, err := alias.NewResolver(context.Background(), fake, "en")
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return New(fake, resolver)
}

func storeFake() *channeltest.Fake {
	return channeltest.New(channel.Capabilities{VariableLengthPaths: true}).
		On(alias.QueryAliases)
}

func TestDiscoverRejectsZeroDepthBeforeAnyQuery(t *testing.T) {
	fake := storeFake()
	eng := newTestEngine(t, fake)
	before := len(fake.Calls())

	_, err := eng.Discover(context.Background(), "adm_dom", "dump", Options{MaxDepth: 0})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	if got := len(fake.Calls()); got != before {
		t.Errorf("expected no channel calls after rejection, got %d", got-before)
	}
}

func TestDiscoverSelectorNotFound(t *testing.T) {
	fake := storeFake().
		On(alias.QueryExact) // no matches for anything
	eng := newTestEngine(t, fake)

	_, err := eng.Discover(context.Background(), "cn=ghost,dc=corp", "cn=dump,dc=corp", Options{MaxDepth: 3})
	if !errors.Is(err, ErrSelectorNotFound) {
		t.Fatalf("expected ErrSelectorNotFound, got %v", err)
	}
}

// Mirrors the reference scenario: a shortcut expanding to two identities,
// an exact target, one length-2 path on the first pair and nothing on the
// second. Expect two traversal queries, three entities, two edges and no
// warnings.
func TestDiscoverShortcutFanOut(t *testing.T) {
	srcA := "cn=domain admins,dc=a,dc=corp"
	srcB := "cn=domain admins,dc=b,dc=corp"
	target := "cn=dump,dc=a,dc=corp"

	fake := storeFake().
		On(alias.QueryPrefix, nameRec(srcA), nameRec(srcB)).
		On(alias.QueryExact, nameRec(target)).
		OnParam("RETURN p", "source", srcA,
			pathRecord(srcA, "cn=backup operators,cn=builtin,dc=a,dc=corp", target),
		).
		OnParam("RETURN p", "source", srcB)
	eng := newTestEngine(t, fake)

	res, err := eng.Discover(context.Background(), "adm_dom", target, Options{MaxDepth: 3})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if n := fake.CallCount("RETURN p"); n != 2 {
		t.Errorf("expected 2 traversal queries, got %d", n)
	}
	if res.Graph.Order() != 3 {
		t.Errorf("expected 3 entities, got %d", res.Graph.Order())
	}
	if res.Graph.Size() != 2 {
		t.Errorf("expected 2 edges, got %d", res.Graph.Size())
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", res.Warnings)
	}
	if res.Status != StatusComplete {
		t.Errorf("expected complete status, got %s", res.Status)
	}
	if res.Paths != 1 {
		t.Errorf("expected 1 path, got %d", res.Paths)
	}
}

func TestDiscoverIdenticalSourceAndTargetIsEmpty(t *testing.T) {
	name := "cn=domain admins,dc=corp"
	fake := storeFake().
		On(alias.QueryExact, nameRec(name))
	eng := newTestEngine(t, fake)

	res, err := eng.Discover(context.Background(), name, name, Options{MaxDepth: 3})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if res.Graph.Order() != 0 || len(res.Warnings) != 0 {
		t.Errorf("expected empty result, got %d entities, %d warnings", res.Graph.Order(), len(res.Warnings))
	}
	if n := fake.CallCount("RETURN p"); n != 0 {
		t.Errorf("expected no traversal query for identical pair, got %d", n)
	}
}

func TestDiscoverPairFailureBecomesWarning(t *testing.T) {
	srcA := "cn=domain admins,dc=a,dc=corp"
	srcB := "cn=domain admins,dc=b,dc=corp"
	target := "cn=dump,dc=corp"
	boom := errors.New("connection reset")

	fake := storeFake().
		On(alias.QueryPrefix, nameRec(srcA), nameRec(srcB)).
		On(alias.QueryExact, nameRec(target)).
		// The failing pair streams one path before dying; those partial
		// results must be discarded, not merged.
		OnParamErr("RETURN p", "source", srcA, boom,
			pathRecord(srcA, "cn=intermediate,dc=corp", target),
		).
		OnParam("RETURN p", "source", srcB,
			pathRecord(srcB, target),
		)
	eng := newTestEngine(t, fake)

	res, err := eng.Discover(context.Background(), "adm_dom", target, Options{MaxDepth: 3})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", res.Warnings)
	}
	if !errors.Is(res.Warnings[0].Err, ErrChannel) {
		t.Errorf("warning must wrap ErrChannel, got %v", res.Warnings[0].Err)
	}
	// Only the healthy pair's path appears.
	if res.Graph.Order() != 2 || res.Graph.Size() != 1 {
		t.Errorf("expected 2 entities / 1 edge, got %d / %d", res.Graph.Order(), res.Graph.Size())
	}
	if _, ok := res.Graph.Nodes["cn=intermediate,dc=corp"]; ok {
		t.Error("partial paths from the failed pair leaked into the report")
	}
}

func TestDiscoverAllPairsFailedIsAnError(t *testing.T) {
	src := "cn=domain admins,dc=corp"
	target := "cn=dump,dc=corp"
	boom := errors.New("store gone")

	fake := storeFake().
		OnParam(alias.QueryExact, "name", src, nameRec(src)).
		OnParam(alias.QueryExact, "name", target, nameRec(target)).
		OnErr("RETURN p", boom)
	eng := newTestEngine(t, fake)

	_, err := eng.Discover(context.Background(), src, target, Options{MaxDepth: 3})
	if !errors.Is(err, ErrChannel) {
		t.Fatalf("expected ErrChannel when every pair failed, got %v", err)
	}
}

func TestDiscoverMaxResultsStopsConsumption(t *testing.T) {
	src := "cn=domain admins,dc=corp"
	target := "cn=dump,dc=corp"

	fake := storeFake().
		OnParam(alias.QueryExact, "name", src, nameRec(src)).
		OnParam(alias.QueryExact, "name", target, nameRec(target)).
		On("RETURN p",
			pathRecord(src, target),
			pathRecord(src, "cn=i1,dc=corp", target),
			pathRecord(src, "cn=i2,dc=corp", target),
		)
	eng := newTestEngine(t, fake)

	res, err := eng.Discover(context.Background(), src, target, Options{MaxDepth: 5, MaxResults: 2})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if res.Paths != 2 {
		t.Errorf("expected 2 paths under the cap, got %d", res.Paths)
	}
}

func TestDiscoverQuickModeUsesShortestPath(t *testing.T) {
	src := "cn=domain admins,dc=corp"
	target := "cn=dump,dc=corp"

	fake := storeFake().
		OnParam(alias.QueryExact, "name", src, nameRec(src)).
		OnParam(alias.QueryExact, "name", target, nameRec(target)).
		On("shortestPath", pathRecord(src, target))
	eng := newTestEngine(t, fake)

	res, err := eng.Discover(context.Background(), src, target, Options{MaxDepth: 5, QuickMode: true})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if n := fake.CallCount("shortestPath"); n != 1 {
		t.Errorf("expected shortestPath query, got %d", n)
	}
	if res.Paths != 1 {
		t.Errorf("expected single quick-mode path, got %d", res.Paths)
	}
}

func TestDiscoverEnforcesInvariantsOnStoreOutput(t *testing.T) {
	src := "cn=domain admins,dc=corp"
	target := "cn=dump,dc=corp"

	tooLong := pathRecord(src, "cn=i1,dc=corp", "cn=i2,dc=corp", "cn=i3,dc=corp", target)
	cyclic := pathRecord(src, "cn=i1,dc=corp", src, target)

	fake := storeFake().
		OnParam(alias.QueryExact, "name", src, nameRec(src)).
		OnParam(alias.QueryExact, "name", target, nameRec(target)).
		On("RETURN p", tooLong, cyclic, pathRecord(src, target))
	eng := newTestEngine(t, fake)

	res, err := eng.Discover(context.Background(), src, target, Options{MaxDepth: 3})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if res.Paths != 1 {
		t.Errorf("expected over-deep and cyclic store paths to be dropped, got %d paths", res.Paths)
	}
	for _, e := range res.Graph.EdgeList() {
		if e.FromID != src || e.ToID != target {
			t.Errorf("unexpected edge %v", e)
		}
	}
}

func TestDiscoverCancellationReturnsPartialResult(t *testing.T) {
	src := "cn=domain admins,dc=corp"
	target := "cn=dump,dc=corp"

	// One complete path streams, then the cursor blocks until cancellation.
	fake := storeFake().
		OnParam(alias.QueryExact, "name", src, nameRec(src)).
		OnParam(alias.QueryExact, "name", target, nameRec(target)).
		OnBlock("RETURN p", pathRecord(src, target))
	eng := newTestEngine(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res, err := eng.Discover(ctx, src, target, Options{MaxDepth: 3})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if res.Status != StatusCancelled {
		t.Fatalf("expected StatusCancelled, got %s", res.Status)
	}
	if res.Paths != 1 || res.Graph.Size() != 1 {
		t.Errorf("expected the fully collected path to survive, got %d paths / %d edges", res.Paths, res.Graph.Size())
	}
}

func TestDiscoverTimeoutOption(t *testing.T) {
	src := "cn=domain admins,dc=corp"
	target := "cn=dump,dc=corp"

	fake := storeFake().
		OnParam(alias.QueryExact, "name", src, nameRec(src)).
		OnParam(alias.QueryExact, "name", target, nameRec(target)).
		OnBlock("RETURN p")
	eng := newTestEngine(t, fake)

	res, err := eng.Discover(context.Background(), src, target, Options{MaxDepth: 3, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if res.Status != StatusCancelled {
		t.Errorf("expected StatusCancelled on timeout, got %s", res.Status)
	}
}

func TestDiscoverRequireNonEmpty(t *testing.T) {
	src := "cn=domain admins,dc=corp"
	target := "cn=dump,dc=corp"

	fake := storeFake().
		OnParam(alias.QueryExact, "name", src, nameRec(src)).
		OnParam(alias.QueryExact, "name", target, nameRec(target)).
		On("RETURN p")
	eng := newTestEngine(t, fake)

	_, err := eng.Discover(context.Background(), src, target, Options{MaxDepth: 3, RequireNonEmpty: true})
	if !errors.Is(err, graph.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestDiscoverExcludesExchangeRelTypes(t *testing.T) {
	src := "cn=domain admins,dc=corp"
	target := "cn=dump,dc=corp"

	fake := storeFake().
		OnParam(alias.QueryExact, "name", src, nameRec(src)).
		OnParam(alias.QueryExact, "name", target, nameRec(target)).
		On("relationshipTypes",
			rec(map[string]any{"relationshipType": "GROUP_MEMBER"}),
			rec(map[string]any{"relationshipType": "RBAC_SET_MBX"}),
			rec(map[string]any{"relationshipType": "AD_OWNER"}),
		).
		On("RETURN p", pathRecord(src, target))
	eng := newTestEngine(t, fake)

	_, err := eng.Discover(context.Background(), src, target, Options{MaxDepth: 3, ExcludeExchange: true})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	var pathCall string
	for _, c := range fake.Calls() {
		if strings.Contains(c.Query, "RETURN p") {
			pathCall = c.Query
		}
	}
	if pathCall == "" {
		t.Fatal("no traversal query issued")
	}
	if strings.Contains(pathCall, "RBAC_SET_MBX") {
		t.Errorf("exchange label leaked into traversal: %s", pathCall)
	}
	if !strings.Contains(pathCall, "GROUP_MEMBER") || !strings.Contains(pathCall, "AD_OWNER") {
		t.Errorf("expected remaining rel types in traversal: %s", pathCall)
	}
}

// A store whose only relationship types are Exchange RBAC must not fall
// back to an unfiltered traversal: that would re-admit the excluded types.
func TestDiscoverExchangeOnlyStoreMatchesNothing(t *testing.T) {
	src := "cn=domain admins,dc=corp"
	target := "cn=dump,dc=corp"

	fake := storeFake().
		OnParam(alias.QueryExact, "name", src, nameRec(src)).
		OnParam(alias.QueryExact, "name", target, nameRec(target)).
		On("relationshipTypes",
			rec(map[string]any{"relationshipType": "RBAC_SET_MBX"}),
			rec(map[string]any{"relationshipType": "RBAC_CONNECT_MBX"}),
		).
		On("RETURN p")
	eng := newTestEngine(t, fake)

	_, err := eng.Discover(context.Background(), src, target, Options{MaxDepth: 3, ExcludeExchange: true})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	var pathCall string
	for _, c := range fake.Calls() {
		if strings.Contains(c.Query, "RETURN p") {
			pathCall = c.Query
		}
	}
	if pathCall == "" {
		t.Fatal("no traversal query issued")
	}
	if strings.Contains(pathCall, "RBAC_") {
		t.Errorf("exchange label leaked into traversal: %s", pathCall)
	}
	if !strings.Contains(pathCall, "[:"+relTypeNone) {
		t.Errorf("expected an impossible filter, got: %s", pathCall)
	}
}

// Two runs over an unchanged store produce identical entity and edge sets.
func TestDiscoverIdempotent(t *testing.T) {
	src := "cn=domain admins,dc=corp"
	target := "cn=dump,dc=corp"

	fake := storeFake().
		OnParam(alias.QueryExact, "name", src, nameRec(src)).
		OnParam(alias.QueryExact, "name", target, nameRec(target)).
		On("RETURN p",
			pathRecord(src, "cn=i1,dc=corp", target),
			pathRecord(src, target),
		)
	eng := newTestEngine(t, fake)

	opts := Options{MaxDepth: 4, Workers: 3}
	res1, err := eng.Discover(context.Background(), src, target, opts)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	res2, err := eng.Discover(context.Background(), src, target, opts)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	n1, n2 := res1.Graph.NodeList(), res2.Graph.NodeList()
	if len(n1) != len(n2) {
		t.Fatalf("entity sets differ: %d vs %d", len(n1), len(n2))
	}
	for i := range n1 {
		if n1[i].ID != n2[i].ID {
			t.Errorf("entity mismatch at %d: %s vs %s", i, n1[i].ID, n2[i].ID)
		}
	}
	e1, e2 := res1.Graph.EdgeList(), res2.Graph.EdgeList()
	if len(e1) != len(e2) {
		t.Fatalf("edge sets differ: %d vs %d", len(e1), len(e2))
	}
	for i := range e1 {
		if *e1[i] != *e2[i] {
			t.Errorf("edge mismatch at %d: %v vs %v", i, e1[i], e2[i])
		}
	}
}

func TestPathQueryShapes(t *testing.T) {
	full := pathQuery(Options{MaxDepth: 7}, nil)
	if !strings.Contains(full, "[*1..7]") {
		t.Errorf("depth bound missing: %s", full)
	}
	quick := pathQuery(Options{MaxDepth: 7, QuickMode: true}, nil)
	if !strings.Contains(quick, "shortestPath") {
		t.Errorf("quick mode must use shortestPath: %s", quick)
	}
	typed := pathQuery(Options{MaxDepth: 2}, []string{"GROUP_MEMBER", "AD_OWNER"})
	if !strings.Contains(typed, "[:GROUP_MEMBER|AD_OWNER*1..2]") {
		t.Errorf("rel type filter missing: %s", typed)
	}
}
