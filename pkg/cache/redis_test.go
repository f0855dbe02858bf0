package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jbgalet/adcp/pkg/discover"
	"github.com/jbgalet/adcp/pkg/export"
)

func setupCache(t *testing.T) (*ReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, time.Minute), mr
}

func sampleDoc() *export.Document {
	return &export.Document{
		Nodes: []export.Node{
			{ID: 0, Name: "cn=domain admins,dc=corp", Shortname: "cn=domain admins", Type: "group"},
			{ID: 1, Name: "cn=dump,dc=corp", Shortname: "cn=dump", Type: "user"},
		},
		Links: []export.Link{
			{Source: 0, Target: 1, Rels: []string{"GROUP_MEMBER"}},
		},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	key := Key("adm_dom", "cn=dump,dc=corp", discover.Options{MaxDepth: 20}, View{})
	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("expected a miss on a cold cache")
	}

	c.Set(ctx, key, sampleDoc())

	doc, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected a hit after Set")
	}
	if len(doc.Nodes) != 2 || len(doc.Links) != 1 {
		t.Errorf("document not round-tripped: %+v", doc)
	}
}

func TestCacheKeyDistinguishesOptions(t *testing.T) {
	full := Key("a", "b", discover.Options{MaxDepth: 20}, View{})
	quick := Key("a", "b", discover.Options{MaxDepth: 20, QuickMode: true}, View{})
	shallow := Key("a", "b", discover.Options{MaxDepth: 2}, View{})

	if full == quick || full == shallow || quick == shallow {
		t.Errorf("keys must differ per options: %q %q %q", full, quick, shallow)
	}
}

// Documents are built after deny filtering, so the view participates in the
// key: toggling the denied-ACE display or swapping the rule set must miss.
func TestCacheKeyDistinguishesView(t *testing.T) {
	opts := discover.Options{MaxDepth: 20}

	plain := Key("a", "b", opts, View{})
	shown := Key("a", "b", opts, View{ShowDenied: true})
	ruled := Key("a", "b", opts, View{DenyRules: "9f2c1ab407d3e851"})
	other := Key("a", "b", opts, View{DenyRules: "04b7de91c52f8a6e"})

	if plain == shown {
		t.Errorf("denied-ACE display must change the key: %q", plain)
	}
	if plain == ruled || ruled == other {
		t.Errorf("deny-rule fingerprint must change the key: %q %q %q", plain, ruled, other)
	}
}

func TestCacheExpiry(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	key := Key("a", "b", discover.Options{MaxDepth: 20}, View{})
	c.Set(ctx, key, sampleDoc())

	mr.FastForward(2 * time.Minute)

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected entry to expire")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	c.Set(ctx, Key("a", "b", discover.Options{MaxDepth: 20}, View{}), sampleDoc())
	c.Set(ctx, Key("c", "d", discover.Options{MaxDepth: 20}, View{}), sampleDoc())

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok := c.Get(ctx, Key("a", "b", discover.Options{MaxDepth: 20}, View{})); ok {
		t.Error("expected cache to be flushed")
	}
}
