package core

import (
	"context"
	"database/sql"
)

// DBExecutor is satisfied by *sql.DB, *sql.Tx and their sqlx wrappers.
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// AllowedOrderings drops the orderings whose field is not in `fields`.
// Ordering fields come from query params and end up in raw SQL, so they must be whitelisted.
func AllowedOrderings(ordering []DBOrdering, fields ...string) []DBOrdering {
	if len(ordering) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		allowed[f] = struct{}{}
	}
	res := make([]DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if _, ok := allowed[ord.Field]; ok {
			res = append(res, ord)
		}
	}
	return res
}
