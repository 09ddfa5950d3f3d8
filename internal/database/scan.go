package database

import (
	"github.com/koustreak/capcache/internal/errs"
	"github.com/koustreak/capcache/internal/row"
)

// ScanRows reads all rows from the result set. Every returned row shares
// one *row.Shape built from the result set description.
//
// The returned slice is always non-nil (empty slice on zero rows). On error
// every row built so far is released and nil is returned.
// ScanRows always closes the Rows; callers do not need to call Close().
func ScanRows(rows Rows) ([]*row.Row, error) {
	defer rows.Close()

	desc, err := rows.Description()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read result description", err)
	}
	shape := row.NewShape(desc)

	result := make([]*row.Row, 0)
	fail := func(err error) ([]*row.Row, error) {
		for _, r := range result {
			r.Release()
		}
		return nil, err
	}

	for rows.Next() {
		r, err := scanInto(rows, shape)
		if err != nil {
			return fail(err)
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return fail(errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err))
	}

	return result, nil
}

// ScanRow reads a single row laid out as shape.
// Returns ErrKindNotFound if the row does not exist.
func ScanRow(r Row, shape *row.Shape) (*row.Row, error) {
	return scanInto(r, shape)
}

// scanInto scans one record through a row.Builder so that a failure after
// some values were produced releases exactly those values.
func scanInto(src Row, shape *row.Shape) (*row.Row, error) {
	dest := make([]any, shape.Len())
	destPtrs := make([]any, shape.Len())
	for i := range dest {
		destPtrs[i] = &dest[i]
	}

	if err := src.Scan(destPtrs...); err != nil {
		if errs.KindOf(err) != errs.ErrKindUnknown {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
	}

	b := row.NewBuilder(shape)
	for i, v := range dest {
		if err := b.Put(i, v); err != nil {
			b.Discard()
			return nil, err
		}
	}
	r, err := b.Build()
	if err != nil {
		b.Discard()
		return nil, err
	}
	return r, nil
}
