package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// insert runs an INSERT and returns the new row ID.
func insert(ctx context.Context, db *DB, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// getOne fetches a single row into T, returning nil when there is none.
func getOne[T any](ctx context.Context, db *DB, query string, args ...any) (*T, error) {
	var out T
	err := db.GetContext(ctx, &out, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// selectIn runs query with its single IN (?) placeholder bound to ids.
func selectIn[T any, K int64 | string](ctx context.Context, db *DB, query string, ids []K) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(query, ids)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := db.SelectContext(ctx, &out, db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func deleteRow(ctx context.Context, db *DB, table string, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	return nil
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
