// Package neo4j implements the query channel against a Neo4j store over
// the Bolt protocol.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/jbgalet/adcp/pkg/channel"
)

// Config holds the connection settings for one store.
type Config struct {
	URI      string // bolt:// or neo4j:// connection URI
	Username string
	Password string
	Database string // empty means the server default
}

// Channel is a neo4j-backed channel.Channel. Sessions are created per
// query and released when the cursor closes, so one Channel is safe to
// share across discovery workers.
type Channel struct {
	driver   neo4j.DriverWithContext
	database string
}

// Open connects to the store and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Channel, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j unreachable at %s: %w", cfg.URI, err)
	}

	return &Channel{driver: driver, database: cfg.Database}, nil
}

// Run executes the query in a fresh read session. The session lives until
// the returned cursor is closed.
func (c *Channel) Run(ctx context.Context, query string, params map[string]any) (channel.Cursor, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.database,
	})

	result, err := session.Run(ctx, query, params)
	if err != nil {
		session.Close(ctx)
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &cursor{session: session, result: result}, nil
}

// Capabilities reports native variable-length path support: Cypher
// expresses bounded traversals and shortestPath directly.
func (c *Channel) Capabilities() channel.Capabilities {
	return channel.Capabilities{VariableLengthPaths: true}
}

// Close shuts the driver down.
func (c *Channel) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

type cursor struct {
	session neo4j.SessionWithContext
	result  neo4j.ResultWithContext
	current channel.Record
}

func (c *cursor) Next(ctx context.Context) bool {
	if !c.result.Next(ctx) {
		return false
	}
	c.current = convertRecord(c.result.Record())
	return true
}

func (c *cursor) Record() channel.Record {
	return c.current
}

func (c *cursor) Err() error {
	return c.result.Err()
}

func (c *cursor) Close(ctx context.Context) error {
	return c.session.Close(ctx)
}

func convertRecord(rec *neo4j.Record) channel.Record {
	values := make(map[string]any, len(rec.Keys))
	for i, key := range rec.Keys {
		values[key] = convertValue(rec.Values[i])
	}
	return channel.NewRecord(values)
}

func convertValue(v any) any {
	switch t := v.(type) {
	case dbtype.Node:
		return convertNode(t)
	case dbtype.Relationship:
		return convertRelationship(t)
	case dbtype.Path:
		return convertPath(t)
	default:
		return v
	}
}

func convertNode(n dbtype.Node) channel.Node {
	name, _ := n.Props["name"].(string)
	return channel.Node{
		ID:         n.ElementId,
		Name:       name,
		Labels:     n.Labels,
		Properties: n.Props,
	}
}

func convertRelationship(r dbtype.Relationship) channel.Relationship {
	return channel.Relationship{
		Start:      r.StartElementId,
		End:        r.EndElementId,
		Type:       r.Type,
		Properties: r.Props,
	}
}

func convertPath(p dbtype.Path) channel.Path {
	out := channel.Path{
		Nodes:         make([]channel.Node, 0, len(p.Nodes)),
		Relationships: make([]channel.Relationship, 0, len(p.Relationships)),
	}
	for _, n := range p.Nodes {
		out.Nodes = append(out.Nodes, convertNode(n))
	}
	for _, r := range p.Relationships {
		out.Relationships = append(out.Relationships, convertRelationship(r))
	}
	return out
}
