package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// ErrNoRows is returned by QueryRow when nothing matched.
var ErrNoRows = sql.ErrNoRows

// Scanner is the row view handed to scan callbacks.
type Scanner interface {
	Scan(dest ...any) error
}

// Executor runs ent SQL builders against either the pool or a transaction.
type Executor struct {
	eq      dialect.ExecQuerier
	dialect string
}

// Dialect returns the SQL dialect name of the connection.
func (e *Executor) Dialect() string {
	return e.dialect
}

// Builder returns a statement builder bound to the connection dialect.
func (e *Executor) Builder() *entsql.DialectBuilder {
	return entsql.Dialect(e.dialect)
}

// Exec runs a statement and returns the number of affected rows.
func (e *Executor) Exec(ctx context.Context, q entsql.Querier) (int64, error) {
	query, args := q.Query()
	var res sql.Result
	if err := e.eq.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Query runs a query and calls scan once per row.
func (e *Executor) Query(ctx context.Context, q entsql.Querier, scan func(Scanner) error) error {
	query, args := q.Query()
	var rows entsql.Rows
	if err := e.eq.Query(ctx, query, args, &rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(&rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// QueryRow runs a query expected to return at most one row.
func (e *Executor) QueryRow(ctx context.Context, q entsql.Querier, dest ...any) error {
	found := false
	err := e.Query(ctx, q, func(s Scanner) error {
		if found {
			return nil
		}
		found = true
		return s.Scan(dest...)
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNoRows
	}
	return nil
}

// Count runs a single-column integer query.
func (e *Executor) Count(ctx context.Context, q entsql.Querier) (int, error) {
	var n int
	if err := e.QueryRow(ctx, q, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// IsNoRows reports whether err means "nothing matched".
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Timestamp normalizes t for storage: UTC, microsecond precision.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NullTime converts an optional time for storage.
func NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return Timestamp(*t)
}

// NullString stores empty strings as NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// TimePtr converts a scanned sql.NullTime.
func TimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
