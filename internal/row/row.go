package row

import (
	"fmt"
	"iter"
	"reflect"
	"strings"
	"time"

	"github.com/koustreak/capcache/internal/errs"
)

// Releaser is implemented by values that hold resources. A Row owns the
// values it holds and calls Release exactly once on each of them.
type Releaser interface {
	Release()
}

// Row is one fetched record. Its arity is fixed by its Shape; values may be
// replaced slot by slot but slots are never added or removed.
//
// A Row is not safe for concurrent mutation.
type Row struct {
	shape    *Shape
	values   []any
	released bool
}

// New builds a row from values, which must match the shape's column count.
// On success the row owns the values. On error nothing is retained and the
// caller still owns them.
func New(shape *Shape, values []any) (*Row, error) {
	if shape == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "row: nil shape")
	}
	if len(values) != shape.Len() {
		return nil, errs.Newf(errs.ErrKindArityMismatch,
			"row: %d values for %d columns", len(values), shape.Len())
	}

	vals := make([]any, len(values))
	copy(vals, values)
	return &Row{shape: shape, values: vals}, nil
}

// Shape returns the shared shape.
func (r *Row) Shape() *Shape {
	return r.shape
}

// Len is the number of values.
func (r *Row) Len() int {
	return len(r.values)
}

// Description returns the column description of the result set.
func (r *Row) Description() []Column {
	return r.shape.Columns()
}

// Get returns the value at position i.
func (r *Row) Get(i int) (any, error) {
	if err := r.check(i); err != nil {
		return nil, err
	}
	return r.values[i], nil
}

// GetByName returns the value of the named column.
func (r *Row) GetByName(name string) (any, error) {
	i, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return r.values[i], nil
}

// Set replaces the value at position i, releasing the previous value.
func (r *Row) Set(i int, v any) error {
	if err := r.check(i); err != nil {
		return err
	}
	r.replace(i, v)
	return nil
}

// SetByName replaces the value of the named column.
func (r *Row) SetByName(name string, v any) error {
	i, err := r.lookup(name)
	if err != nil {
		return err
	}
	r.replace(i, v)
	return nil
}

func (r *Row) replace(i int, v any) {
	old := r.values[i]
	r.values[i] = v
	if _, ok := old.(Releaser); ok && !sameValue(old, v) {
		release(old)
	}
}

// All yields (position, value) pairs in position order. Each call starts
// a fresh pass.
func (r *Row) All() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		for i, v := range r.values {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Values yields the values in position order.
func (r *Row) Values() iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, v := range r.values {
			if !yield(v) {
				return
			}
		}
	}
}

// Slice returns a copy of the values.
func (r *Row) Slice() ([]any, error) {
	if r.released {
		return nil, errs.New(errs.ErrKindReleased, "row: values already released")
	}
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out, nil
}

// Map returns the values keyed by column name. With duplicate names the
// last occurrence wins, as with GetByName.
func (r *Row) Map() (map[string]any, error) {
	if r.released {
		return nil, errs.New(errs.ErrKindReleased, "row: values already released")
	}
	m := make(map[string]any, len(r.values))
	for i, c := range r.shape.cols {
		if i < len(r.values) {
			m[c.Name] = r.values[i]
		}
	}
	return m, nil
}

// Release releases every held value exactly once. Further calls are no-ops;
// any other access afterwards fails with ErrKindReleased.
func (r *Row) Release() {
	if r.released {
		return
	}
	r.released = true
	for i, v := range r.values {
		release(v)
		r.values[i] = nil
	}
	r.values = nil
}

// String renders the row as a tuple, e.g. (1, "abc", <nil>).
func (r *Row) String() string {
	if r.released {
		return "(released)"
	}
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range r.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatValue(v))
	}
	if len(r.values) == 1 {
		sb.WriteByte(',')
	}
	sb.WriteByte(')')
	return sb.String()
}

func (r *Row) check(i int) error {
	if r.released {
		return errs.New(errs.ErrKindReleased, "row: values already released")
	}
	if i < 0 || i >= len(r.values) {
		return errs.Newf(errs.ErrKindOutOfRange, "row: index %d out of range [0, %d)", i, len(r.values))
	}
	return nil
}

func (r *Row) lookup(name string) (int, error) {
	if r.released {
		return 0, errs.New(errs.ErrKindReleased, "row: values already released")
	}
	i, ok := r.shape.Index(name)
	if !ok {
		return 0, errs.Newf(errs.ErrKindUnknownColumn, "row: no column named %q", name)
	}
	return i, nil
}

// --- helpers ---

func release(v any) {
	if rel, ok := v.(Releaser); ok && !isNilPointer(v) {
		rel.Release()
	}
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// sameValue reports whether assigning b over a keeps the same underlying
// value, in which case a must not be released. Values whose dynamic contents
// cannot be compared, such as a struct holding a slice in an interface
// field, are never the same.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	switch ta.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Slice:
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	}
	if reflect.ValueOf(a).Comparable() && reflect.ValueOf(b).Comparable() {
		return a == b
	}
	return false
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return fmt.Sprintf("%q", x)
	case []byte:
		return fmt.Sprintf("0x%x", x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
