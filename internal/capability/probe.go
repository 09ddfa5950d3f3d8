package capability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koustreak/capcache/internal/native"
)

// Probe query names, used in logs and metric labels.
const (
	queryDriverVersion  = "driver_version"
	queryDescribeParam  = "describe_parameter"
	queryTimestampWidth = "timestamp_precision"
)

var errNilConn = errors.New("capability: nil connection")

// probeFailure records one best-effort query that did not contribute.
type probeFailure struct {
	query string
	err   error
}

type probeResult struct {
	record   *Record
	failures []probeFailure
}

// Probe asks conn for its capabilities and never fails: anything the driver
// cannot answer keeps its default. lock is the host execution lock, held by
// the caller; it is released for the duration of the native calls.
func Probe(ctx context.Context, conn native.Conn, lock sync.Locker) *Record {
	exit := enterBlocking(lock)
	defer exit()

	return probe(ctx, conn).record
}

// probe runs the three capability queries. Each is independent: a failure
// in one leaves its field at the default and the others still run. Nothing
// here may touch host state; failures are returned for the caller to log.
func probe(ctx context.Context, conn native.Conn) probeResult {
	var (
		major, minor  = DefaultProtocolMajor, DefaultProtocolMinor
		describeParam = false
		precision     = DefaultTimestampPrecision
		failures      []probeFailure
	)

	if conn == nil {
		for _, q := range []string{queryDriverVersion, queryDescribeParam, queryTimestampWidth} {
			failures = append(failures, probeFailure{query: q, err: errNilConn})
		}
		return probeResult{record: DefaultRecord(), failures: failures}
	}

	fail := func(query string, err error) {
		failures = append(failures, probeFailure{query: query, err: err})
	}

	if err := attempt(func() error {
		b, err := conn.QueryInfo(ctx, native.InfoDriverVersion)
		if err != nil {
			return err
		}
		mj, mn, ok := parseVersion(b)
		if !ok {
			return fmt.Errorf("unparseable version %q", b)
		}
		major, minor = mj, mn
		return nil
	}); err != nil {
		fail(queryDriverVersion, err)
	}

	if err := attempt(func() error {
		b, err := conn.QueryInfo(ctx, native.InfoDescribeParameter)
		if err != nil {
			return err
		}
		describeParam = len(b) > 0 && b[0] == 'Y'
		return nil
	}); err != nil {
		fail(queryDescribeParam, err)
	}

	if err := attempt(func() error {
		n, err := timestampColumnSize(ctx, conn)
		if err != nil {
			return err
		}
		precision = n
		return nil
	}); err != nil {
		fail(queryTimestampWidth, err)
	}

	return probeResult{
		record:   NewRecord(major, minor, describeParam, precision),
		failures: failures,
	}
}

// timestampColumnSize reads the column size of the timestamp type through a
// transient statement. The statement is closed on every path.
func timestampColumnSize(ctx context.Context, conn native.Conn) (int, error) {
	st, err := conn.OpenStatement(ctx)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	if err := st.QueryTypeInfo(ctx, native.TypeTimestamp); err != nil {
		return 0, err
	}
	if err := st.Fetch(ctx); err != nil {
		return 0, err
	}
	v, err := st.ColumnValue(ctx, native.TypeInfoColumnColumnSize, native.CTypeInteger)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok || n <= 0 {
		return 0, fmt.Errorf("invalid timestamp column size %v", v)
	}
	return int(n), nil
}

// attempt runs fn, turning a panic in an adapter into an error so one
// misbehaving query cannot abort the others.
func attempt(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// parseVersion splits on the first '.' and reads the leading digits of each
// side: "03.50" -> 3, 50 and "16.2 (Debian)" -> 16, 2.
func parseVersion(b []byte) (major, minor int, ok bool) {
	b = bytes.TrimRight(b, "\x00")
	b = bytes.TrimSpace(b)

	dot := bytes.IndexByte(b, '.')
	if dot < 0 {
		return 0, 0, false
	}
	major, ok = leadingInt(b[:dot])
	if !ok {
		return 0, 0, false
	}
	minor, ok = leadingInt(b[dot+1:])
	if !ok {
		return 0, 0, false
	}
	return major, minor, true
}

func leadingInt(b []byte) (int, bool) {
	n, digits := 0, 0
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
		digits++
		if digits > 9 {
			return 0, false
		}
	}
	return n, digits > 0
}
