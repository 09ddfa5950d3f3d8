package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/capcache/internal/capability"
	"github.com/koustreak/capcache/internal/database"
	"github.com/koustreak/capcache/internal/errs"
	"github.com/koustreak/capcache/internal/logger"
)

var _ database.DB = (*Driver)(nil)

const (
	testDSN        = "app:secret@tcp(db:3306)/shop"
	timestampQuery = "SELECT 'DATETIME' AS type_name, 93 AS data_type, CHAR_LENGTH(CAST(NOW(6) AS CHAR)) AS column_size"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	return db, mock
}

func testConfig(t *testing.T) *database.Config {
	t.Helper()
	cache, err := capability.New(nil, capability.WithLogger(logger.Nop()))
	require.NoError(t, err)

	cfg := database.DefaultConfig(testDSN)
	cfg.Driver = database.DriverMySQL
	cfg.Capabilities = cache
	cfg.Logger = logger.Nop()
	return cfg
}

func expectProbe(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT VERSION()").
		WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.36"))
	mock.ExpectQuery(timestampQuery).
		WillReturnRows(sqlmock.NewRows([]string{"type_name", "data_type", "column_size"}).
			AddRow("DATETIME", int64(93), int64(26)))
}

func connect(t *testing.T) (*Driver, sqlmock.Sqlmock, *database.Config) {
	t.Helper()
	db, mock := newMock(t)
	mock.ExpectPing()
	expectProbe(mock)

	cfg := testConfig(t)
	d, err := open(context.Background(), db, cfg)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, mock, cfg
}

func TestOpen_DiscoversCapabilities(t *testing.T) {
	d, mock, cfg := connect(t)

	rec := d.Capabilities()
	major, minor := rec.ProtocolVersion()
	assert.Equal(t, 8, major)
	assert.Equal(t, 0, minor)
	assert.False(t, rec.SupportsDescribeParam())
	assert.Equal(t, 26, rec.TimestampPrecision())
	assert.NoError(t, mock.ExpectationsWereMet())

	// A second pool with the same DSN reuses the record without probing.
	db2, mock2 := newMock(t)
	mock2.ExpectPing()
	d2, err := open(context.Background(), db2, cfg)
	require.NoError(t, err)
	defer d2.Close()

	assert.Same(t, rec, d2.Capabilities())
	assert.NoError(t, mock2.ExpectationsWereMet())
}

func TestOpen_PingFailureClosesPool(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectPing().WillReturnError(&mysql.MySQLError{Number: 1045, Message: "Access denied"})
	mock.ExpectClose()

	_, err := open(context.Background(), db, testConfig(t))
	assert.True(t, errs.IsConnectionFailed(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_ProbeFailureStillConnects(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT VERSION()").WillReturnError(errors.New("gone away"))
	mock.ExpectQuery(timestampQuery).WillReturnError(errors.New("gone away"))

	d, err := open(context.Background(), db, testConfig(t))
	require.NoError(t, err)
	defer d.Close()

	major, minor := d.Capabilities().ProtocolVersion()
	assert.Equal(t, []int{3, 50}, []int{major, minor})
	assert.Equal(t, capability.DefaultTimestampPrecision, d.Capabilities().TimestampPrecision())
}

func TestOpen_ServerWithoutFractionalSeconds(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT VERSION()").
		WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("5.5.62-log"))
	mock.ExpectQuery(timestampQuery).
		WillReturnError(&mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"})

	d, err := open(context.Background(), db, testConfig(t))
	require.NoError(t, err)
	defer d.Close()

	major, minor := d.Capabilities().ProtocolVersion()
	assert.Equal(t, []int{5, 5}, []int{major, minor})
	assert.Equal(t, capability.DefaultTimestampPrecision, d.Capabilities().TimestampPrecision())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// nanos matches a time argument by its fractional seconds.
type nanos int

func (n nanos) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Nanosecond() == int(n)
}

func TestQuery_BindsTruncatedTimestamps(t *testing.T) {
	d, mock, _ := connect(t)

	at := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	mock.ExpectQuery("SELECT id, name, id FROM orders WHERE created_at > ?").
		WithArgs(nanos(123456000)).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("id").OfType("BIGINT", int64(0)).Nullable(false),
			sqlmock.NewColumn("name").OfType("VARCHAR", "").WithLength(64).Nullable(true),
			sqlmock.NewColumn("id").OfType("BIGINT", int64(0)).Nullable(false),
		).AddRow(int64(1), "widget", int64(100)).AddRow(int64(2), nil, int64(200)))

	rows, err := d.Query(context.Background(), "SELECT id, name, id FROM orders WHERE created_at > ?", at)
	require.NoError(t, err)

	got, err := database.ScanRows(rows)
	require.NoError(t, err)
	require.Len(t, got, 2)

	desc := got[0].Description()
	assert.Equal(t, "VARCHAR", desc[1].TypeName)
	assert.Equal(t, int64(64), desc[1].DisplaySize)
	assert.False(t, desc[0].Nullable)

	v, err := got[1].GetByName("id")
	require.NoError(t, err)
	assert.Equal(t, int64(200), v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRow_NotFound(t *testing.T) {
	d, mock, _ := connect(t)
	mock.ExpectQuery("SELECT name FROM orders WHERE id = ?").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	r, err := d.QueryRow(context.Background(), "SELECT name FROM orders WHERE id = ?", 42)
	require.NoError(t, err)

	var name string
	err = r.Scan(&name)
	assert.True(t, errs.IsNotFound(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no rows", sql.ErrNoRows, errs.ErrKindNotFound},
		{"access denied", &mysql.MySQLError{Number: 1045}, errs.ErrKindConnectionFailed},
		{"too many connections", &mysql.MySQLError{Number: 1040}, errs.ErrKindConnectionFailed},
		{"table privilege", &mysql.MySQLError{Number: 1142}, errs.ErrKindPermissionDenied},
		{"syntax", &mysql.MySQLError{Number: 1064}, errs.ErrKindQueryFailed},
		{"bad datetime", &mysql.MySQLError{Number: 1292}, errs.ErrKindInvalidInput},
		{"execution time", &mysql.MySQLError{Number: 3024}, errs.ErrKindTimeout},
		{"driver", mysql.ErrInvalidConn, errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestNew_InvalidDSNIsNotEchoed(t *testing.T) {
	_, err := New(context.Background(), database.DefaultConfig("app:secret@bogus"))
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.NotContains(t, err.Error(), "secret")
}
