package native

import (
	"fmt"
	"strconv"
	"strings"
)

// Convert coerces a raw column value read by an adapter into the requested
// target representation.
func Convert(v any, target CType) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("native: column is NULL")
	}

	switch target {
	case CTypeInteger:
		return toInt64(v)
	case CTypeChar:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		default:
			return fmt.Sprint(v), nil
		}
	default:
		return nil, ErrNotSupported
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("native: cannot convert %T to integer", v)
	}
}
