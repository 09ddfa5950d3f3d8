package row

import "github.com/koustreak/capcache/internal/errs"

// Builder fills a row slot by slot. It owns every value put into it until
// Build hands them to a Row or Discard releases them, so a fetch that fails
// halfway never leaks or double-releases a value.
type Builder struct {
	shape  *Shape
	values []any
	filled []bool
	done   bool
}

// NewBuilder starts an empty row for shape.
func NewBuilder(shape *Shape) *Builder {
	return &Builder{
		shape:  shape,
		values: make([]any, shape.Len()),
		filled: make([]bool, shape.Len()),
	}
}

// Put stores v at position i, releasing any value already there. On error
// the builder does not take ownership of v.
func (b *Builder) Put(i int, v any) error {
	if b.done {
		return errs.New(errs.ErrKindReleased, "row: builder already finished")
	}
	if i < 0 || i >= len(b.values) {
		return errs.Newf(errs.ErrKindOutOfRange, "row: index %d out of range [0, %d)", i, len(b.values))
	}
	if _, ok := b.values[i].(Releaser); ok && b.filled[i] && !sameValue(b.values[i], v) {
		release(b.values[i])
	}
	b.values[i] = v
	b.filled[i] = true
	return nil
}

// Filled is the number of slots holding a value.
func (b *Builder) Filled() int {
	n := 0
	for _, f := range b.filled {
		if f {
			n++
		}
	}
	return n
}

// Build transfers every value to a new Row. All slots must be filled; when
// one is missing the builder keeps its values and the caller should Discard.
func (b *Builder) Build() (*Row, error) {
	if b.done {
		return nil, errs.New(errs.ErrKindReleased, "row: builder already finished")
	}
	if n := b.Filled(); n != len(b.values) {
		return nil, errs.Newf(errs.ErrKindArityMismatch,
			"row: %d of %d columns filled", n, len(b.values))
	}
	r := &Row{shape: b.shape, values: b.values}
	b.values, b.filled, b.done = nil, nil, true
	return r, nil
}

// Discard releases the filled slots and skips the rest. It is a no-op after
// Build or a previous Discard.
func (b *Builder) Discard() {
	if b.done {
		return
	}
	b.done = true
	for i, f := range b.filled {
		if f {
			release(b.values[i])
		}
	}
	b.values, b.filled = nil, nil
}
