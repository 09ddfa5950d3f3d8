// Package pgsql adapts a pgx connection to native.Conn.
package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/capcache/internal/native"
)

// Querier is satisfied by *pgx.Conn, *pgxpool.Conn and *pgxpool.Pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	versionQuery = `SHOW server_version`

	// The column size is the width of the server's own rendering of a
	// timestamp at its finest precision.
	timestampTypeInfoQuery = `
		SELECT t.typname::text AS type_name,
		       93              AS data_type,
		       length(to_char(localtimestamp(6), 'YYYY-MM-DD HH24:MI:SS.US')) AS column_size
		FROM pg_catalog.pg_type t
		WHERE t.typname = 'timestamp'`
)

// Conn implements native.Conn for PostgreSQL.
type Conn struct {
	q Querier
}

// New wraps q.
func New(q Querier) *Conn {
	return &Conn{q: q}
}

// QueryInfo answers info requests. PostgreSQL's extended query protocol
// always describes parameter types, so InfoDescribeParameter is "Y".
func (c *Conn) QueryInfo(ctx context.Context, info native.InfoType) ([]byte, error) {
	switch info {
	case native.InfoDriverVersion:
		var version string
		if err := c.q.QueryRow(ctx, versionQuery).Scan(&version); err != nil {
			return nil, fmt.Errorf("postgres: query version: %w", err)
		}
		return []byte(version), nil
	case native.InfoDescribeParameter:
		return []byte("Y"), nil
	default:
		return nil, native.ErrNotSupported
	}
}

// OpenStatement returns a statement bound to the same connection.
func (c *Conn) OpenStatement(_ context.Context) (native.Stmt, error) {
	return &stmt{q: c.q}, nil
}

// --- statement ---

type stmt struct {
	q    Querier
	rows pgx.Rows
	cur  []any
}

func (s *stmt) QueryTypeInfo(ctx context.Context, typ native.TypeID) error {
	if typ != native.TypeTimestamp {
		return native.ErrNotSupported
	}
	_ = s.Close()

	rows, err := s.q.Query(ctx, timestampTypeInfoQuery)
	if err != nil {
		return fmt.Errorf("postgres: type info: %w", err)
	}
	s.rows = rows
	return nil
}

func (s *stmt) Fetch(_ context.Context) error {
	if s.rows == nil {
		return native.ErrNoData
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return err
		}
		return native.ErrNoData
	}

	vals, err := s.rows.Values()
	if err != nil {
		return err
	}
	s.cur = vals
	return nil
}

func (s *stmt) ColumnValue(_ context.Context, column int, target native.CType) (any, error) {
	if column < 1 || column > len(s.cur) {
		return nil, fmt.Errorf("postgres: column %d out of range", column)
	}
	return native.Convert(s.cur[column-1], target)
}

func (s *stmt) Close() error {
	s.cur = nil
	if s.rows == nil {
		return nil
	}
	s.rows.Close()
	err := s.rows.Err()
	s.rows = nil
	return err
}
