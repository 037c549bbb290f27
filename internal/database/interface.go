package database

import "context"

// Executor is the contract every layer above the gateway talks to. The
// introspection and lookup packages depend only on this interface.
type Executor interface {
	// Execute runs one statement on a freshly checked-out, schema-scoped
	// connection and releases the connection before returning.
	Execute(ctx context.Context, sql string, args ...any) (*QueryResult, error)

	// Schema returns the schema every statement is scoped to.
	Schema() string
}

// QueryResult is an ordered sequence of rows plus the statement's row count.
type QueryResult struct {
	// Columns lists the result columns in the order the statement declared them.
	Columns []string

	// Rows holds one column-name -> value mapping per result row.
	// Always non-nil.
	Rows []map[string]any

	// RowCount is the count reported by the command tag: rows returned for
	// SELECT, rows affected for INSERT/UPDATE/DELETE.
	RowCount int64
}

// PoolStats is a point-in-time snapshot of the connection pool.
type PoolStats struct {
	Max      int32 // configured maximum simultaneous connections
	Acquired int32 // connections currently checked out
	Idle     int32 // open connections waiting in the pool
	Total    int32 // open connections, acquired or idle
}

// Available returns how many more checkouts can proceed without waiting.
func (s PoolStats) Available() int32 {
	return s.Max - s.Acquired
}

// Rows is an abstraction over a driver result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Values returns the decoded values of the current row.
	Values() ([]any, error)

	// Columns returns the column names of the result set.
	Columns() []string

	// RowsAffected returns the command tag count. Valid after Close.
	RowsAffected() int64

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}
