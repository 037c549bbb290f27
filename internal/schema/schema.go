// Package schema reads table metadata from the PostgreSQL catalogs.
//
// Every read is scoped to the schema of the database.Executor it runs on;
// callers pass bare table names.
package schema

import "context"

// Reader is the interface for introspecting the configured schema.
type Reader interface {
	// ListTables returns the names of all tables in the schema, alphabetically.
	ListTables(ctx context.Context) ([]string, error)

	// DescribeTable returns primary keys, indexes, columns and statistics
	// for one table.
	DescribeTable(ctx context.Context, table string) (*TableStructure, error)
}

var _ Reader = (*Introspector)(nil)
