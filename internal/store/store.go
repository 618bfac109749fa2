// Package store runs the relational queries behind users, servers, channels,
// messages and refresh tokens. Statements use "?" placeholders so the same
// SQL runs on sqlite and mysql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chathub-backend/internal/database"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type Store struct {
	conn *sql.DB
	db   database.DBTX
	inTx bool
}

func New(conn *sql.DB) *Store {
	return &Store{conn: conn, db: conn}
}

// WithTx runs fn with a Store bound to a single transaction. Calls nested
// inside fn reuse the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return database.WithTx(ctx, s.conn, func(ctx context.Context, tx database.DBTX) error {
		return fn(&Store{conn: s.conn, db: tx, inTx: true})
	})
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// Message timestamps keep nanoseconds; ids issued within one millisecond
// still get distinct creation instants.
func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func fromNullNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromNanos(v.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func isDuplicate(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// translate maps driver errors to the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case isDuplicate(err):
		return ErrDuplicate
	default:
		return err
	}
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2-1)
	for i := range n {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
