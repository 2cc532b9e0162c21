package adapter

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/joeycumines/stackloop"
)

// Row is a single result row, deep-copied out of database/sql's own
// scan buffers (which modernc.org/sqlite, like any database/sql driver,
// only guarantees valid until the next Next()/Close() call).
type Row struct {
	Values []any
}

// Query awaits the results of a single SQL query against db, deep-copying
// every row's column values into a fresh []Row before returning.
func Query(co *stackloop.Coroutine, db *sql.DB, query string, args ...any) ([]Row, error) {
	arena := co.Reactor().Arena()

	return Run[[]Row](co, func(complete func(status int, value []Row, err error)) {
		go func() {
			rows, err := db.Query(query, args...)
			if err != nil {
				complete(1, nil, fmt.Errorf("adapter: query: %w", err))
				return
			}
			defer rows.Close()

			cols, err := rows.Columns()
			if err != nil {
				complete(1, nil, fmt.Errorf("adapter: columns: %w", err))
				return
			}

			var out []Row
			for rows.Next() {
				scanTargets := make([]any, len(cols))
				scanPtrs := make([]any, len(cols))
				for i := range scanTargets {
					scanPtrs[i] = &scanTargets[i]
				}
				if err := rows.Scan(scanPtrs...); err != nil {
					complete(1, nil, fmt.Errorf("adapter: scan: %w", err))
					return
				}
				out = append(out, Row{Values: stackloop.CopySlice(arena, scanTargets)})
			}
			if err := rows.Err(); err != nil {
				complete(1, nil, fmt.Errorf("adapter: rows: %w", err))
				return
			}

			complete(0, stackloop.CopySlice(arena, out), nil)
		}()
	})
}
