// Package cache keeps assembled report documents in redis so repeated
// interactive queries skip a full traversal. A cache miss or redis fault
// degrades to a fresh discovery run, never to an error.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jbgalet/adcp/pkg/discover"
	"github.com/jbgalet/adcp/pkg/export"
)

const keyPrefix = "adcp:report:"

// DefaultTTL bounds staleness against a store that may be re-imported.
const DefaultTTL = 30 * time.Minute

// ReportCache stores export documents keyed by discovery parameters.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a report cache. A non-positive ttl falls back to DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReportCache{client: client, ttl: ttl}
}

// View is the presentation state baked into a stored document: the
// denied-ACE visibility and a fingerprint of the loaded deny rules.
// Documents built under different views must not share an entry.
type View struct {
	ShowDenied bool
	DenyRules  string
}

// Key derives the cache key for one discovery invocation. Every option
// that changes the result shape participates, the view included.
func Key(source, target string, opts discover.Options, view View) string {
	return fmt.Sprintf("%s%s|%s|d%d|q%t|m%d|x%t|v%t|r%s",
		keyPrefix, source, target, opts.MaxDepth, opts.QuickMode, opts.MaxResults, opts.ExcludeExchange,
		view.ShowDenied, view.DenyRules)
}

// Get returns the cached document for the key, if any.
func (c *ReportCache) Get(ctx context.Context, key string) (*export.Document, bool) {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("report cache GET %s failed: %v", key, err)
		}
		return nil, false
	}
	var doc export.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		log.Printf("report cache entry %s is corrupt: %v", key, err)
		return nil, false
	}
	return &doc, true
}

// Set stores the document under the key with the cache TTL.
func (c *ReportCache) Set(ctx context.Context, key string, doc *export.Document) {
	data, err := json.Marshal(doc)
	if err != nil {
		log.Printf("report cache marshal failed: %v", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Printf("report cache SET %s failed: %v", key, err)
	}
}

// Invalidate removes every cached report, for use after a re-import.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("report cache scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("report cache flush failed: %w", err)
	}
	return nil
}
