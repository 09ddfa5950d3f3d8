// Package native defines the call-level database API that capability
// discovery talks to. Each engine provides an adapter (see pgsql and sqlconn);
// the capability package never imports a driver directly.
//
// The shape mirrors a classic call-level interface: information queries are
// made against a connection, type information is read through a transient
// statement that must always be closed.
package native

import (
	"context"
	"errors"
)

// InfoType selects the connection attribute returned by Conn.QueryInfo.
type InfoType int

const (
	// InfoDriverVersion is the version string reported for the connection,
	// formatted as "<major>.<minor>[...]". An ODBC-style driver reports its
	// protocol level, e.g. "03.50". The pgsql and sqlconn adapters answer
	// with the database engine's server version instead, e.g. "16.2" or
	// "8.0.36".
	InfoDriverVersion InfoType = 77

	// InfoDescribeParameter answers "Y" when the driver can describe the
	// types of statement parameters, "N" otherwise.
	InfoDescribeParameter InfoType = 10002
)

func (t InfoType) String() string {
	switch t {
	case InfoDriverVersion:
		return "driver_version"
	case InfoDescribeParameter:
		return "describe_parameter"
	default:
		return "unknown"
	}
}

// TypeID identifies a SQL data type for Stmt.QueryTypeInfo.
type TypeID int16

const (
	TypeTimestamp TypeID = 93
)

// CType is the target representation requested from Stmt.ColumnValue.
type CType int

const (
	CTypeInteger CType = 4
	CTypeChar    CType = 1
)

// Type info result set columns (1-based, as in the call-level interface).
const (
	TypeInfoColumnTypeName   = 1
	TypeInfoColumnDataType   = 2
	TypeInfoColumnColumnSize = 3
)

// ErrNoData is returned by Stmt.Fetch when the result set is exhausted.
var ErrNoData = errors.New("native: no data")

// ErrNotSupported is returned for info types or type ids an adapter
// cannot answer.
var ErrNotSupported = errors.New("native: not supported")

// Conn is an open native connection handle.
type Conn interface {
	// QueryInfo returns the raw answer for the given info type.
	QueryInfo(ctx context.Context, info InfoType) ([]byte, error)

	// OpenStatement allocates a statement handle on the connection.
	OpenStatement(ctx context.Context) (Stmt, error)
}

// Stmt is a statement handle. Close must be called on every path.
type Stmt interface {
	// QueryTypeInfo positions the statement on the type info result set
	// for the given type.
	QueryTypeInfo(ctx context.Context, typ TypeID) error

	// Fetch advances to the next row. It returns ErrNoData at the end.
	Fetch(ctx context.Context) error

	// ColumnValue reads the 1-based column of the current row converted
	// to target: int64 for CTypeInteger, string for CTypeChar.
	ColumnValue(ctx context.Context, column int, target CType) (any, error)

	// Close resets the statement to a closed state. It is safe to call
	// more than once.
	Close() error
}
