package channel

// Node is a graph vertex as returned by the store.
type Node struct {
	ID         string // store-internal element id
	Name       string // distinguished name, the store-wide unique key
	Labels     []string
	Properties map[string]any
}

// Relationship is a directed edge between two nodes of the same record.
// Start and End reference Node.ID values.
type Relationship struct {
	Start      string
	End        string
	Type       string
	Properties map[string]any
}

// Path is an ordered walk: len(Relationships) == len(Nodes)-1.
type Path struct {
	Nodes         []Node
	Relationships []Relationship
}

// Record is one streamed row, a bag of named values. Values are scalars,
// []string, Node, Relationship or Path depending on the query's RETURN clause.
type Record struct {
	values map[string]any
}

// NewRecord builds a record from named values.
func NewRecord(values map[string]any) Record {
	return Record{values: values}
}

// Get returns the named value.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// String returns the named value as a string.
func (r Record) String(key string) (string, bool) {
	v, ok := r.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Strings returns the named value as a string slice. []any values are
// converted element-wise, since drivers commonly decode lists that way.
func (r Record) Strings(key string) ([]string, bool) {
	v, ok := r.values[key]
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Path returns the named value as a Path.
func (r Record) Path(key string) (Path, bool) {
	v, ok := r.values[key]
	if !ok {
		return Path{}, false
	}
	p, ok := v.(Path)
	return p, ok
}

// Properties returns the named value as a property map.
func (r Record) Properties(key string) (map[string]any, bool) {
	v, ok := r.values[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}
