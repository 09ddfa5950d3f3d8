package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/capcache/internal/capability"
	"github.com/koustreak/capcache/internal/database"
	"github.com/koustreak/capcache/internal/errs"
	"github.com/koustreak/capcache/internal/logger"
	"github.com/koustreak/capcache/internal/native/sqlconn"
	"github.com/koustreak/capcache/internal/params"
	"github.com/koustreak/capcache/internal/row"
)

// Driver is a MySQL implementation of database.DB backed by database/sql.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db   *sql.DB
	caps *capability.Record
	log  *logger.Logger
}

// New opens a MySQL connection pool using the provided Config and returns a Driver.
// It pings the server and discovers the connection's capabilities before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, errs.New(errs.ErrKindConnectionFailed, "invalid DSN")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, errs.New(errs.ErrKindConnectionFailed, "invalid DSN")
	}

	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	return open(ctx, db, cfg)
}

// open finishes connecting an already configured pool. It owns db and
// closes it on failure.
func open(ctx context.Context, db *sql.DB, cfg *database.Config) (*Driver, error) {
	d := &Driver{db: db, log: cfg.Log().Component("mysql")}

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := d.Ping(connectCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := d.discover(connectCtx, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}

	d.log.InfoWith("connected", map[string]any{"capabilities": d.caps.String()})
	return d, nil
}

// discover probes one dedicated connection so every query of the probe
// runs in the same session.
func (d *Driver) discover(ctx context.Context, cfg *database.Config) error {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return mapError(err, "failed to acquire connection")
	}
	defer conn.Close()

	d.caps = cfg.CapabilityCache().Get(ctx, cfg.DSN, sqlconn.New(conn, sqlconn.MySQL))
	return nil
}

// --- database.DB implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Capabilities() *capability.Record {
	return d.caps
}

func (d *Driver) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, params.Bind(args, d.caps)...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &mysqlRows{rows: rows}, nil
}

func (d *Driver) QueryRow(ctx context.Context, query string, args ...any) (database.Row, error) {
	r := d.db.QueryRowContext(ctx, query, params.Bind(args, d.caps)...)
	return &mysqlRow{row: r}, nil
}

// --- sql.DB type wrappers ---

type mysqlRows struct {
	rows *sql.Rows
}

func (r *mysqlRows) Next() bool { return r.rows.Next() }
func (r *mysqlRows) Close()     { _ = r.rows.Close() }
func (r *mysqlRows) Err() error { return r.rows.Err() }

func (r *mysqlRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapError(err, "failed to scan row")
	}
	return nil
}

func (r *mysqlRows) Description() ([]row.Column, error) {
	types, err := r.rows.ColumnTypes()
	if err != nil {
		return nil, mapError(err, "failed to read column types")
	}
	return describeColumns(types), nil
}

type mysqlRow struct {
	row *sql.Row
}

func (r *mysqlRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapError(err, "failed to scan row")
	}
	return nil
}

// columnType is the part of *sql.ColumnType a description needs.
type columnType interface {
	Name() string
	DatabaseTypeName() string
	Length() (int64, bool)
	DecimalSize() (int64, int64, bool)
	Nullable() (bool, bool)
}

func describeColumns(types []*sql.ColumnType) []row.Column {
	cols := make([]row.Column, len(types))
	for i, t := range types {
		cols[i] = describeColumn(t)
	}
	return cols
}

func describeColumn(t columnType) row.Column {
	c := row.Column{Name: t.Name(), TypeName: t.DatabaseTypeName(), Nullable: true}
	if n, ok := t.Length(); ok {
		c.DisplaySize = n
		c.InternalSize = n
	}
	if p, s, ok := t.DecimalSize(); ok {
		c.Precision = p
		c.Scale = s
	}
	if nullable, ok := t.Nullable(); ok {
		c.Nullable = nullable
	}
	return c
}

// --- error mapping ---

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case 1044, 1045, 1046, 1049: // access denied / no database
		return errs.ErrKindConnectionFailed
	case 1040, 1203: // too many connections
		return errs.ErrKindConnectionFailed
	case 1142, 1143, 1227: // command / column / specific privilege denied
		return errs.ErrKindPermissionDenied
	case 1292, 1366, 1406: // bad value for column
		return errs.ErrKindInvalidInput
	case 3024: // max_execution_time exceeded
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
