// Package store holds the queries the API and the pipeline share. Reads take
// a Querier so they work against a *sql.DB or a *sql.Tx; writes take a
// *sql.Tx and leave commit to the caller.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"fknsrs.biz/p/sorm"
)

var (
	ErrVersionConflict = fmt.Errorf("record was modified concurrently")
	ErrDuplicateMember = fmt.Errorf("video is already in playlist")
	ErrNotMember       = fmt.Errorf("video is not in playlist")
)

type Querier interface {
	sorm.Querier
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func count(ctx context.Context, q Querier, query string, args ...interface{}) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store.count: %w", err)
	}

	return n, nil
}
