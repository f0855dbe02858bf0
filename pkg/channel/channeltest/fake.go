// Package channeltest provides a scripted in-memory Channel for tests.
// Rules match on query substrings, calls are recorded for call-count
// assertions, and cursors can be made to fail or block mid-stream.
package channeltest

import (
	"context"
	"strings"
	"sync"

	"github.com/jbgalet/adcp/pkg/channel"
)

// Call is one recorded Run invocation.
type Call struct {
	Query  string
	Params map[string]any
}

type rule struct {
	match    string
	paramKey string
	paramVal any
	records  []channel.Record
	err      error
	block    bool
}

func (r rule) matches(query string, params map[string]any) bool {
	if !strings.Contains(query, r.match) {
		return false
	}
	if r.paramKey == "" {
		return true
	}
	return params[r.paramKey] == r.paramVal
}

// Fake is a scripted channel.Channel.
type Fake struct {
	mu    sync.Mutex
	rules []rule
	calls []Call
	caps  channel.Capabilities
}

// New creates a fake channel with the given capabilities.
func New(caps channel.Capabilities) *Fake {
	return &Fake{caps: caps}
}

// On registers records to stream for queries containing substr. Rules are
// matched in registration order, first match wins.
func (f *Fake) On(substr string, records ...channel.Record) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: substr, records: records})
	return f
}

// OnParam registers records for queries containing substr whose parameter
// key equals value. Used when queries differ only by their parameters.
func (f *Fake) OnParam(substr, key string, value any, records ...channel.Record) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: substr, paramKey: key, paramVal: value, records: records})
	return f
}

// OnParamErr registers a failing rule scoped to a parameter value.
func (f *Fake) OnParamErr(substr, key string, value any, err error, records ...channel.Record) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: substr, paramKey: key, paramVal: value, records: records, err: err})
	return f
}

// OnErr registers a rule that streams the given records and then fails
// with err.
func (f *Fake) OnErr(substr string, err error, records ...channel.Record) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: substr, records: records, err: err})
	return f
}

// OnBlock registers a rule whose cursor blocks on Next until the context is
// cancelled. Used for cancellation tests.
func (f *Fake) OnBlock(substr string, records ...channel.Record) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: substr, records: records, block: true})
	return f
}

// Run matches the query against the script and returns a cursor over the
// scripted records. Unmatched queries stream nothing.
func (f *Fake) Run(ctx context.Context, query string, params map[string]any) (channel.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Query: query, Params: params})

	for _, r := range f.rules {
		if r.matches(query, params) {
			return &cursor{records: r.records, failWith: r.err, block: r.block}, nil
		}
	}
	return &cursor{}, nil
}

// Capabilities reports the configured capabilities.
func (f *Fake) Capabilities() channel.Capabilities {
	return f.caps
}

// Close is a no-op.
func (f *Fake) Close(ctx context.Context) error {
	return nil
}

// Calls returns a copy of all recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many executed queries contained substr.
func (f *Fake) CallCount(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.Query, substr) {
			n++
		}
	}
	return n
}

type cursor struct {
	records  []channel.Record
	pos      int
	failWith error
	block    bool
	err      error
	closed   bool
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.closed {
		return false
	}
	if c.pos < len(c.records) {
		c.pos++
		return true
	}
	if c.block {
		<-ctx.Done()
		c.err = ctx.Err()
		return false
	}
	if c.failWith != nil {
		c.err = c.failWith
	}
	return false
}

func (c *cursor) Record() channel.Record {
	return c.records[c.pos-1]
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close(ctx context.Context) error {
	c.closed = true
	return nil
}
