// Package sqlconn adapts a database/sql connection to native.Conn.
//
// Any database/sql driver can be probed; a Dialect supplies the SQL used to
// answer each information request. The MySQL dialect ships with the package.
//
// Usage:
//
//	c, err := db.Conn(ctx)
//	if err != nil { ... }
//	defer c.Close()
//
//	rec := capability.GetConnectionCapabilities(ctx, dsn, sqlconn.New(c, sqlconn.MySQL))
package sqlconn

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/koustreak/capcache/internal/native"
)

// Querier is the subset of *sql.DB / *sql.Conn / *sql.Tx the adapter needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect holds the engine-specific answers to native information requests.
type Dialect struct {
	Name string

	// VersionQuery returns a single text column with the driver version.
	VersionQuery string

	// DescribeParameter is the static answer for InfoDescribeParameter.
	DescribeParameter bool

	// TypeInfoQueries return rows laid out like a type info result set:
	// type name, data type, column size.
	TypeInfoQueries map[native.TypeID]string
}

// MySQL answers information requests for MySQL / MariaDB servers.
// Server-side prepared statements report parameter counts but not types.
var MySQL = Dialect{
	Name:              "mysql",
	VersionQuery:      "SELECT VERSION()",
	DescribeParameter: false,
	TypeInfoQueries: map[native.TypeID]string{
		// Servers without fractional seconds reject NOW(6); the probe then
		// keeps the default width.
		native.TypeTimestamp: "SELECT 'DATETIME' AS type_name, 93 AS data_type, " +
			"CHAR_LENGTH(CAST(NOW(6) AS CHAR)) AS column_size",
	},
}

// Conn implements native.Conn over a database/sql Querier.
type Conn struct {
	q       Querier
	dialect Dialect
}

// New wraps q using the given dialect.
func New(q Querier, d Dialect) *Conn {
	return &Conn{q: q, dialect: d}
}

// QueryInfo answers info requests using the dialect.
func (c *Conn) QueryInfo(ctx context.Context, info native.InfoType) ([]byte, error) {
	switch info {
	case native.InfoDriverVersion:
		if c.dialect.VersionQuery == "" {
			return nil, native.ErrNotSupported
		}
		var version string
		if err := c.q.QueryRowContext(ctx, c.dialect.VersionQuery).Scan(&version); err != nil {
			return nil, fmt.Errorf("%s: query version: %w", c.dialect.Name, err)
		}
		return []byte(version), nil

	case native.InfoDescribeParameter:
		if c.dialect.DescribeParameter {
			return []byte("Y"), nil
		}
		return []byte("N"), nil

	default:
		return nil, native.ErrNotSupported
	}
}

// OpenStatement returns a statement bound to the same connection.
func (c *Conn) OpenStatement(_ context.Context) (native.Stmt, error) {
	return &stmt{q: c.q, dialect: c.dialect}, nil
}

// --- statement ---

type stmt struct {
	q       Querier
	dialect Dialect

	rows *sql.Rows
	cur  []any
}

func (s *stmt) QueryTypeInfo(ctx context.Context, typ native.TypeID) error {
	q, ok := s.dialect.TypeInfoQueries[typ]
	if !ok {
		return native.ErrNotSupported
	}
	if err := s.Close(); err != nil {
		return err
	}

	rows, err := s.q.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("%s: type info: %w", s.dialect.Name, err)
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

	cols, err := s.rows.Columns()
	if err != nil {
		return err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return err
	}
	s.cur = vals
	return nil
}

func (s *stmt) ColumnValue(_ context.Context, column int, target native.CType) (any, error) {
	if column < 1 || column > len(s.cur) {
		return nil, fmt.Errorf("%s: column %d out of range", s.dialect.Name, column)
	}
	return native.Convert(s.cur[column-1], target)
}

func (s *stmt) Close() error {
	s.cur = nil
	if s.rows == nil {
		return nil
	}
	err := s.rows.Close()
	s.rows = nil
	return err
}
