package discover

import (
	"fmt"
	"time"
)

const (
	// DefaultMaxDepth matches the historical ADCP hop ceiling.
	DefaultMaxDepth = 20

	// DefaultWorkers bounds concurrent traversal queries per run.
	DefaultWorkers = 4
)

// DefaultOptions returns the baseline configuration: full-mode discovery up
// to 20 hops with a small worker pool.
func DefaultOptions() Options {
	return Options{
		MaxDepth: DefaultMaxDepth,
		Workers:  DefaultWorkers,
	}
}

// Options configures one discovery run. MaxDepth must be set explicitly
// (use DefaultOptions for the baseline); Validate rejects structurally
// invalid settings before any channel call.
type Options struct {
	// MaxDepth is the hop-count ceiling, >= 1.
	MaxDepth int

	// QuickMode requests only the single shortest path per pair instead of
	// every simple path up to MaxDepth. Tie-breaking among equal-length
	// paths is store-defined.
	QuickMode bool

	// MaxResults caps the total number of paths collected across all
	// pairs. 0 means unbounded.
	MaxResults int

	// Workers bounds the number of concurrent pair traversals.
	Workers int

	// Timeout bounds the whole run. 0 means no deadline beyond the
	// caller's context.
	Timeout time.Duration

	// ExcludeExchange drops Exchange RBAC relationship types from
	// traversal, the usual setting for non-mailbox root entities.
	ExcludeExchange bool

	// RequireNonEmpty turns an empty report into graph.ErrEmptyResult.
	RequireNonEmpty bool
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	return o
}

// Validate checks the options. A zero-hop path is not a control path, so
// MaxDepth below 1 is rejected.
func (o Options) Validate() error {
	if o.MaxDepth < 1 {
		return fmt.Errorf("%w: max depth must be >= 1, got %d", ErrInvalidConfiguration, o.MaxDepth)
	}
	if o.MaxResults < 0 {
		return fmt.Errorf("%w: max results must be >= 0, got %d", ErrInvalidConfiguration, o.MaxResults)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0, got %s", ErrInvalidConfiguration, o.Timeout)
	}
	return nil
}
