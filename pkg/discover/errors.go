package discover

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration rejects bad options before any query is issued.
	ErrInvalidConfiguration = errors.New("invalid discovery configuration")

	// ErrSelectorNotFound means a selector expanded to zero entities.
	ErrSelectorNotFound = errors.New("selector matched no entities")

	// ErrChannel wraps query-channel failures. The engine does not retry;
	// retry policy belongs to the channel implementation.
	ErrChannel = errors.New("query channel failure")
)

// Status is the terminal state of a discovery run.
type Status string

const (
	// StatusComplete means every pair was processed.
	StatusComplete Status = "complete"

	// StatusCancelled means the run was interrupted; the result carries the
	// paths fully collected before cancellation. Not an error.
	StatusCancelled Status = "cancelled"
)

// PairWarning records a recoverable per-pair failure. A failed pair's
// partial paths are dropped rather than merged, so the report never shows
// an incomplete path set for that pair.
type PairWarning struct {
	Source string
	Target string
	Err    error
}

func (w PairWarning) String() string {
	return fmt.Sprintf("%s -> %s: %v", w.Source, w.Target, w.Err)
}
