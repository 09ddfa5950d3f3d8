package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/capcache/internal/capability"
	"github.com/koustreak/capcache/internal/database"
	"github.com/koustreak/capcache/internal/errs"
	"github.com/koustreak/capcache/internal/logger"
	"github.com/koustreak/capcache/internal/native/pgsql"
	"github.com/koustreak/capcache/internal/params"
	"github.com/koustreak/capcache/internal/row"
)

// Driver is a PostgreSQL implementation of database.DB backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	pool  *pgxpool.Pool
	caps  *capability.Record
	types *pgtype.Map
	log   *logger.Logger
}

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It pings the server, then discovers the connection's capabilities through
// the capability cache before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		// pgx error text can echo the DSN back.
		return nil, errs.New(errs.ErrKindConnectionFailed, "invalid DSN")
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	d := &Driver{
		pool:  pool,
		types: pgtype.NewMap(),
		log:   cfg.Log().Component("postgres"),
	}

	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if err := d.discover(ctx, cfg); err != nil {
		pool.Close()
		return nil, err
	}

	d.log.InfoWith("connected", map[string]any{"capabilities": d.caps.String()})

	return d, nil
}

// discover probes one pooled connection. Probe failures never fail the
// connect; only failing to acquire a connection does.
func (d *Driver) discover(ctx context.Context, cfg *database.Config) error {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return mapError(err, "failed to acquire connection")
	}
	defer conn.Release()

	d.caps = cfg.CapabilityCache().Get(ctx, cfg.DSN, pgsql.New(conn))
	return nil
}

// --- database.DB implementation ---

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool. Call when the application shuts down.
func (d *Driver) Close() {
	d.pool.Close()
}

// Capabilities returns the record discovered on connect.
func (d *Driver) Capabilities() *capability.Record {
	return d.caps
}

// Query executes a SQL statement that returns multiple rows.
func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := d.pool.Query(ctx, sql, params.Bind(args, d.caps)...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows, types: d.types}, nil
}

// QueryRow executes a SQL statement expected to return at most one row.
func (d *Driver) QueryRow(ctx context.Context, sql string, args ...any) (database.Row, error) {
	r := d.pool.QueryRow(ctx, sql, params.Bind(args, d.caps)...)
	return &pgxRow{row: r}, nil
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows  pgx.Rows
	types *pgtype.Map
}

func (r *pgxRows) Next() bool { return r.rows.Next() }
func (r *pgxRows) Close()     { r.rows.Close() }
func (r *pgxRows) Err() error { return r.rows.Err() }

func (r *pgxRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapError(err, "failed to scan row")
	}
	return nil
}

func (r *pgxRows) Description() ([]row.Column, error) {
	return describeFields(r.types, r.rows.FieldDescriptions()), nil
}

// pgxRow wraps pgx.Row to satisfy database.Row.
type pgxRow struct {
	row pgx.Row
}

func (r *pgxRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapError(err, "failed to scan row")
	}
	return nil
}

// --- description ---

// describeFields converts wire field descriptions into row columns.
// The wire protocol does not report nullability, so every column is nullable.
func describeFields(types *pgtype.Map, fields []pgconn.FieldDescription) []row.Column {
	cols := make([]row.Column, len(fields))
	for i, f := range fields {
		c := row.Column{
			Name:         f.Name,
			TypeName:     fmt.Sprintf("oid:%d", f.DataTypeOID),
			InternalSize: int64(f.DataTypeSize),
			Nullable:     true,
		}
		if t, ok := types.TypeForOID(f.DataTypeOID); ok {
			c.TypeName = t.Name
		}
		applyModifier(&c, f.DataTypeOID, f.TypeModifier)
		cols[i] = c
	}
	return cols
}

// applyModifier decodes the atttypmod of sized types.
func applyModifier(c *row.Column, oid uint32, mod int32) {
	if mod < 0 {
		return
	}
	switch oid {
	case pgtype.NumericOID:
		c.Precision = int64((mod - 4) >> 16 & 0xffff)
		c.Scale = int64((mod - 4) & 0xffff)
		c.DisplaySize = c.Precision + 2
	case pgtype.VarcharOID, pgtype.BPCharOID:
		c.DisplaySize = int64(mod - 4)
		c.Precision = c.DisplaySize
	case pgtype.TimestampOID, pgtype.TimestamptzOID, pgtype.TimeOID:
		c.Scale = int64(mod)
		c.DisplaySize = 19
		if mod > 0 {
			c.DisplaySize += 1 + int64(mod)
		}
	}
}

// --- error mapping ---

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// No rows
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifySQLState maps a SQLSTATE class to an ErrKind.
func classifySQLState(code string) errs.ErrKind {
	if len(code) < 2 {
		return errs.ErrKindQueryFailed
	}
	switch code[:2] {
	case "08": // connection exception
		return errs.ErrKindConnectionFailed
	case "28": // invalid authorization
		return errs.ErrKindConnectionFailed
	case "42":
		if code == "42501" {
			return errs.ErrKindPermissionDenied
		}
		return errs.ErrKindQueryFailed
	case "22": // data exception
		return errs.ErrKindInvalidInput
	case "57":
		if code == "57014" { // query_canceled
			return errs.ErrKindTimeout
		}
		return errs.ErrKindConnectionFailed
	}
	return errs.ErrKindQueryFailed
}
