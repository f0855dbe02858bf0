package discover

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jbgalet/adcp/pkg/channel"
)

func relTypeRec(t string) channel.Record {
	return rec(map[string]any{"relationshipType": t})
}

// hopRecord builds a single-hop path record, the shape layer queries stream.
func hopRecord(from, to, relType string) channel.Record {
	return rec(map[string]any{"path": channel.Path{
		Nodes: []channel.Node{
			{ID: from, Name: from, Labels: []string{"group"}},
			{ID: to, Name: to, Labels: []string{"user"}},
		},
		Relationships: []channel.Relationship{
			{Start: from, End: to, Type: relType},
		},
	}})
}

func TestExpandLayered(t *testing.T) {
	root := "cn=dump,dc=corp"
	mid := "cn=backup operators,cn=builtin,dc=corp"
	far := "cn=alice,cn=users,dc=corp"

	fake := storeFake().
		On(QueryRelTypes, relTypeRec("GROUP_MEMBER"), relTypeRec("AD_OWNER")).
		OnParam("RETURN path", "depth", 1, hopRecord(mid, root, "AD_OWNER")).
		OnParam("RETURN path", "depth", 2, hopRecord(far, mid, "GROUP_MEMBER")).
		OnParam("RETURN path", "depth", 3)
	eng := newTestEngine(t, fake)

	res, err := eng.Expand(context.Background(), root, DirectionTo, Options{MaxDepth: 5})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if res.Graph.Order() != 3 || res.Graph.Size() != 2 {
		t.Errorf("graph has %d nodes, %d edges, want 3/2", res.Graph.Order(), res.Graph.Size())
	}
	if res.Paths != 2 {
		t.Errorf("relations = %d, want 2", res.Paths)
	}
	if res.Status != StatusComplete {
		t.Errorf("status = %q", res.Status)
	}

	// The expansion stops at the first empty layer: depths 1..3 queried,
	// depth 4 never issued.
	if got := fake.CallCount("RETURN path"); got != 3 {
		t.Errorf("layer queries = %d, want 3", got)
	}
}

func TestExpandDirectionArrow(t *testing.T) {
	fake := storeFake().
		On(QueryRelTypes, relTypeRec("GROUP_MEMBER"))
	eng := newTestEngine(t, fake)

	if _, err := eng.Expand(context.Background(), "cn=a,dc=corp", DirectionFrom, Options{MaxDepth: 1}); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if _, err := eng.Expand(context.Background(), "cn=a,dc=corp", DirectionTo, Options{MaxDepth: 1}); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	var out, in int
	for _, c := range fake.Calls() {
		switch {
		case strings.Contains(c.Query, "-[:GROUP_MEMBER]->"):
			out++
		case strings.Contains(c.Query, "<-[:GROUP_MEMBER]-"):
			in++
		}
	}
	if out != 1 || in != 1 {
		t.Errorf("outbound queries = %d, inbound = %d, want 1/1", out, in)
	}
}

func TestExpandExcludesExchangeForNonMailboxRoot(t *testing.T) {
	fake := storeFake().
		On(QueryRelTypes, relTypeRec("GROUP_MEMBER"), relTypeRec("RBAC_SET_MBX"))
	eng := newTestEngine(t, fake)

	if _, err := eng.Expand(context.Background(), "cn=dump,dc=corp", DirectionTo, Options{MaxDepth: 1}); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if _, err := eng.Expand(context.Background(), "mailbox@corp.example", DirectionTo, Options{MaxDepth: 1}); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	var plain, mailbox bool
	for _, c := range fake.Calls() {
		if !strings.Contains(c.Query, "RETURN path") {
			continue
		}
		if strings.Contains(c.Query, "RBAC_SET_MBX") {
			mailbox = true
		} else {
			plain = true
		}
	}
	if !plain {
		t.Error("expected a layer query without Exchange relationship types")
	}
	if !mailbox {
		t.Error("expected the mailbox root to keep Exchange relationship types")
	}
}

// With only Exchange RBAC types in the store, a non-mailbox root gets an
// impossible filter rather than an unfiltered layer query.
func TestExpandExchangeOnlyStoreMatchesNothing(t *testing.T) {
	fake := storeFake().
		On(QueryRelTypes, relTypeRec("RBAC_SET_MBX"), relTypeRec("RBAC_CONNECT_MBX"))
	eng := newTestEngine(t, fake)

	if _, err := eng.Expand(context.Background(), "cn=dump,dc=corp", DirectionTo, Options{MaxDepth: 1}); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	var layerCall string
	for _, c := range fake.Calls() {
		if strings.Contains(c.Query, "RETURN path") {
			layerCall = c.Query
		}
	}
	if layerCall == "" {
		t.Fatal("no layer query issued")
	}
	if strings.Contains(layerCall, "RBAC_") {
		t.Errorf("exchange label leaked into layer query: %s", layerCall)
	}
	if !strings.Contains(layerCall, "[:"+relTypeNone+"]") {
		t.Errorf("expected an impossible filter, got: %s", layerCall)
	}
}

func TestExpandRejectsBadDirection(t *testing.T) {
	fake := storeFake()
	eng := newTestEngine(t, fake)

	_, err := eng.Expand(context.Background(), "cn=a,dc=corp", Direction("sideways"), Options{MaxDepth: 3})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestExpandDepthBound(t *testing.T) {
	root := "cn=dump,dc=corp"

	fake := storeFake().
		On(QueryRelTypes, relTypeRec("GROUP_MEMBER")).
		OnParam("RETURN path", "depth", 1, hopRecord("cn=b,dc=corp", root, "GROUP_MEMBER")).
		OnParam("RETURN path", "depth", 2, hopRecord("cn=c,dc=corp", "cn=b,dc=corp", "GROUP_MEMBER"))
	eng := newTestEngine(t, fake)

	res, err := eng.Expand(context.Background(), root, DirectionTo, Options{MaxDepth: 1})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if got := fake.CallCount("RETURN path"); got != 1 {
		t.Errorf("layer queries = %d, want 1", got)
	}
	if res.Graph.Order() != 2 {
		t.Errorf("graph order = %d, want 2", res.Graph.Order())
	}
}
