package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/capcache/internal/database"
	"github.com/koustreak/capcache/internal/errs"
)

var _ database.DB = (*Driver)(nil)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"canceled wrapped", fmt.Errorf("acquire: %w", context.Canceled), errs.ErrKindTimeout},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"syntax", &pgconn.PgError{Code: "42601", Message: "syntax error"}, errs.ErrKindQueryFailed},
		{"privilege", &pgconn.PgError{Code: "42501"}, errs.ErrKindPermissionDenied},
		{"connection class", &pgconn.PgError{Code: "08006"}, errs.ErrKindConnectionFailed},
		{"auth", &pgconn.PgError{Code: "28P01"}, errs.ErrKindConnectionFailed},
		{"bad data", &pgconn.PgError{Code: "22007"}, errs.ErrKindInvalidInput},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, errs.ErrKindTimeout},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, errs.ErrKindConnectionFailed},
		{"network", errors.New("dial tcp: refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, mapError(nil, "op"))
}

func TestMapError_IncludesServerMessage(t *testing.T) {
	got := mapError(&pgconn.PgError{Code: "42P01", Message: `relation "x" does not exist`}, "query failed")
	assert.Contains(t, got.Message, `relation "x" does not exist`)
}

func TestDescribeFields(t *testing.T) {
	fields := []pgconn.FieldDescription{
		{Name: "id", DataTypeOID: pgtype.Int8OID, DataTypeSize: 8, TypeModifier: -1},
		{Name: "price", DataTypeOID: pgtype.NumericOID, DataTypeSize: -1, TypeModifier: (10<<16 | 2) + 4},
		{Name: "code", DataTypeOID: pgtype.VarcharOID, DataTypeSize: -1, TypeModifier: 32 + 4},
		{Name: "at", DataTypeOID: pgtype.TimestampOID, DataTypeSize: 8, TypeModifier: 3},
		{Name: "mystery", DataTypeOID: 999999, DataTypeSize: 4, TypeModifier: -1},
	}

	cols := describeFields(pgtype.NewMap(), fields)
	require.Len(t, cols, 5)

	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "int8", cols[0].TypeName)
	assert.Equal(t, int64(8), cols[0].InternalSize)
	assert.True(t, cols[0].Nullable)

	assert.Equal(t, "numeric", cols[1].TypeName)
	assert.Equal(t, int64(10), cols[1].Precision)
	assert.Equal(t, int64(2), cols[1].Scale)

	assert.Equal(t, int64(32), cols[2].DisplaySize)

	assert.Equal(t, int64(3), cols[3].Scale)
	assert.Equal(t, int64(23), cols[3].DisplaySize)

	assert.Equal(t, "oid:999999", cols[4].TypeName)
}
