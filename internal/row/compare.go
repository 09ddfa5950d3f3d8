package row

import (
	"bytes"
	"cmp"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/capcache/internal/errs"
)

// Equal reports whether r and o hold the same number of values and every
// positional value is equal. Shapes are not compared.
func (r *Row) Equal(o *Row) bool {
	if r == nil || o == nil {
		return r == o
	}
	if len(r.values) != len(o.values) || r.released != o.released {
		return false
	}
	for i := range r.values {
		if !valuesEqual(r.values[i], o.values[i]) {
			return false
		}
	}
	return true
}

// Compare orders r and o lexicographically by position. A shorter row that
// is a prefix of the longer one sorts first. It fails if a pair of values
// at the first differing position has no defined order.
func (r *Row) Compare(o *Row) (int, error) {
	if r == nil || o == nil {
		return 0, errs.New(errs.ErrKindInvalidInput, "row: compare with nil row")
	}
	if r.released || o.released {
		return 0, errs.New(errs.ErrKindReleased, "row: values already released")
	}
	n := min(len(r.values), len(o.values))
	for i := 0; i < n; i++ {
		a, b := r.values[i], o.values[i]
		if valuesEqual(a, b) {
			continue
		}
		c, err := compareValues(a, b)
		if err != nil {
			return 0, errs.Wrap(errs.ErrKindInvalidInput, "row: compare at position "+strconv.Itoa(i), err)
		}
		if c != 0 {
			return c, nil
		}
	}
	return cmp.Compare(len(r.values), len(o.values)), nil
}

// --- value semantics ---

type numKind int

const (
	notNumber numKind = iota
	signedNum
	unsignedNum
	floatNum
)

func numeric(v any) (numKind, int64, uint64, float64) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return signedNum, rv.Int(), 0, 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return unsignedNum, 0, rv.Uint(), 0
	case reflect.Float32, reflect.Float64:
		return floatNum, 0, 0, rv.Float()
	}
	return notNumber, 0, 0, 0
}

func compareNumbers(a, b any) (int, bool) {
	ka, ia, ua, fa := numeric(a)
	kb, ib, ub, fb := numeric(b)
	if ka == notNumber || kb == notNumber {
		return 0, false
	}
	switch {
	case ka == floatNum || kb == floatNum:
		return cmp.Compare(asFloat(ka, ia, ua, fa), asFloat(kb, ib, ub, fb)), true
	case ka == signedNum && kb == signedNum:
		return cmp.Compare(ia, ib), true
	case ka == unsignedNum && kb == unsignedNum:
		return cmp.Compare(ua, ub), true
	case ka == signedNum:
		if ia < 0 {
			return -1, true
		}
		return cmp.Compare(uint64(ia), ub), true
	default:
		if ib < 0 {
			return 1, true
		}
		return cmp.Compare(ua, uint64(ib)), true
	}
}

func asFloat(k numKind, i int64, u uint64, f float64) float64 {
	switch k {
	case signedNum:
		return float64(i)
	case unsignedNum:
		return float64(u)
	}
	return f
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compareNumbers(a, b); ok {
		return c == 0
	}
	switch x := a.(type) {
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) (int, error) {
	if a == nil || b == nil {
		return 0, errs.New(errs.ErrKindInvalidInput, "nil values are unordered")
	}
	if c, ok := compareNumbers(a, b); ok {
		return c, nil
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case []byte:
		if y, ok := b.([]byte); ok {
			return bytes.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			return compareBool(x, y), nil
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	}
	return 0, errs.Newf(errs.ErrKindInvalidInput, "cannot order %T and %T", a, b)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
