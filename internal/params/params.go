// Package params prepares query arguments for a connection whose
// capabilities are known.
package params

import (
	"time"

	"github.com/koustreak/capcache/internal/capability"
)

// fractionOffset is the width of "yyyy-mm-dd hh:mm:ss." which precedes the
// fractional seconds in a timestamp column size.
const fractionOffset = 20

// DecimalDigits returns how many fractional-second digits a timestamp
// column of the given size can carry, in [0, 9].
func DecimalDigits(timestampPrecision int) int {
	return min(9, max(0, timestampPrecision-fractionOffset))
}

// TruncateTimestamp drops the fractional seconds a connection cannot store.
func TruncateTimestamp(t time.Time, timestampPrecision int) time.Time {
	digits := DecimalDigits(timestampPrecision)
	if digits >= 9 {
		return t
	}
	unit := time.Duration(1)
	for i := digits; i < 9; i++ {
		unit *= 10
	}
	ns := time.Duration(t.Nanosecond())
	return t.Add(-(ns % unit))
}

// Bind returns args with every time.Time, and every non-nil *time.Time,
// truncated to the timestamp precision in rec. A nil rec falls back to the
// default record. The input slice is not modified.
func Bind(args []any, rec *capability.Record) []any {
	if len(args) == 0 {
		return args
	}
	if rec == nil {
		rec = capability.DefaultRecord()
	}
	precision := rec.TimestampPrecision()

	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case time.Time:
			out[i] = TruncateTimestamp(v, precision)
		case *time.Time:
			if v != nil {
				tt := TruncateTimestamp(*v, precision)
				out[i] = &tt
			} else {
				out[i] = a
			}
		default:
			out[i] = a
		}
	}
	return out
}
