// Package row models result rows: fixed-arity, ordered value tuples that
// can also be addressed by column name.
//
// Every row of one result set shares a single *Shape, built once from the
// result set description.
package row

// Column describes one result column, in the order the driver reports it.
type Column struct {
	Name         string
	TypeName     string
	DisplaySize  int64
	InternalSize int64
	Precision    int64
	Scale        int64
	Nullable     bool
}

// Shape maps column names to positions for one result set. It is immutable
// after construction and may be shared by any number of rows and goroutines.
type Shape struct {
	cols  []Column
	index map[string]int
}

// NewShape builds a shape from a result set description. When a name
// occurs more than once, name lookup resolves to the last occurrence;
// positional access is unaffected.
func NewShape(desc []Column) *Shape {
	cols := make([]Column, len(desc))
	copy(cols, desc)

	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c.Name] = i
	}
	return &Shape{cols: cols, index: index}
}

// ShapeOf builds a shape from bare column names.
func ShapeOf(names ...string) *Shape {
	desc := make([]Column, len(names))
	for i, n := range names {
		desc[i] = Column{Name: n}
	}
	return NewShape(desc)
}

// Len is the column count.
func (s *Shape) Len() int {
	return len(s.cols)
}

// Index returns the position bound to name.
func (s *Shape) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Column returns the description of column i.
func (s *Shape) Column(i int) Column {
	return s.cols[i]
}

// Columns returns a copy of the description.
func (s *Shape) Columns() []Column {
	out := make([]Column, len(s.cols))
	copy(out, s.cols)
	return out
}

// Names returns the column names in position order, duplicates included.
func (s *Shape) Names() []string {
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		out[i] = c.Name
	}
	return out
}
