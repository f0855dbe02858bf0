// Package channel defines the query contract between the discovery core and
// the property-graph store. The core never talks to a driver directly; it
// issues parametrized queries through a Channel and consumes typed records
// from a Cursor. Concrete implementations live in subpackages.
package channel

import "context"

// Capabilities describes what the backing store's query language can express.
type Capabilities struct {
	// VariableLengthPaths is true when the store can answer bounded
	// variable-length path patterns natively. When false, the discovery
	// engine falls back to its own bounded traversal built from
	// single-hop queries.
	VariableLengthPaths bool
}

// Channel is an authenticated request/response connection to the graph store.
type Channel interface {
	// Run executes a parametrized query and returns a streaming cursor.
	// The caller owns the cursor and must close it.
	Run(ctx context.Context, query string, params map[string]any) (Cursor, error)

	// Capabilities reports what the store's query engine supports.
	Capabilities() Capabilities

	// Close releases the underlying connection(s).
	Close(ctx context.Context) error
}

// Cursor streams typed records from a single query execution.
type Cursor interface {
	// Next advances to the next record. It returns false when the stream
	// is exhausted or failed; Err distinguishes the two.
	Next(ctx context.Context) bool

	// Record returns the current record. Only valid after Next returned true.
	Record() Record

	// Err returns the terminal stream error, if any.
	Err() error

	// Close discards any unconsumed records and releases the cursor.
	Close(ctx context.Context) error
}
