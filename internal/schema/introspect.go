package schema

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/koustreak/mallgate/internal/database"
	"github.com/koustreak/mallgate/internal/errs"
)

const (
	listTablesSQL = `
		SELECT tablename::text AS tablename
		FROM pg_catalog.pg_tables
		WHERE schemaname = $1
		ORDER BY tablename`

	primaryKeysSQL = `
		SELECT kcu.column_name::text AS column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = $1
		  AND tc.table_name = $2
		  AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position`

	indexesSQL = `
		SELECT indexname::text AS indexname, indexdef
		FROM pg_catalog.pg_indexes
		WHERE schemaname = $1
		  AND tablename = $2
		ORDER BY indexname`

	columnsSQL = `
		SELECT
			ordinal_position::int              AS pos,
			column_name::text                  AS column_name,
			data_type::text                    AS data_type,
			character_maximum_length::int      AS max_length,
			is_nullable::text = 'YES'          AS nullable,
			column_default::text               AS default_value
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = $2
		ORDER BY ordinal_position`

	// statsSQL is driven by pg_class so it yields exactly one row for any
	// existing table, collected or not; total_size is never NULL there.
	statsSQL = `
		SELECT
			s.n_live_tup                                     AS row_count,
			pg_size_pretty(pg_total_relation_size(c.oid))    AS total_size
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_catalog.pg_stat_user_tables s ON s.relid = c.oid
		WHERE n.nspname = $1
		  AND c.relname = $2
		  AND c.relkind IN ('r', 'p')`
)

// Introspector implements Reader on top of any database.Executor.
type Introspector struct {
	db database.Executor
}

// NewIntrospector creates a new introspector over db.
func NewIntrospector(db database.Executor) *Introspector {
	return &Introspector{db: db}
}

// ListTables returns all table names in the executor's schema.
func (in *Introspector) ListTables(ctx context.Context) ([]string, error) {
	res, err := in.db.Execute(ctx, listTablesSQL, in.db.Schema())
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		tables = append(tables, asString(row["tablename"]))
	}
	return tables, nil
}

// DescribeTable runs the four catalog reads concurrently and merges them.
// The first failure cancels the remaining reads and is returned. A table
// is NotFound only when it has neither columns nor a stats row; a
// zero-column table still exists.
func (in *Introspector) DescribeTable(ctx context.Context, table string) (*TableStructure, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	ts := &TableStructure{Schema: in.db.Schema(), Table: table}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ts.PrimaryKeys, err = in.PrimaryKeys(gctx, table)
		return err
	})
	g.Go(func() (err error) {
		ts.Indexes, err = in.Indexes(gctx, table)
		return err
	})
	g.Go(func() (err error) {
		ts.Columns, err = in.Columns(gctx, table)
		return err
	})
	g.Go(func() (err error) {
		ts.Stats, err = in.Stats(gctx, table)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}

	if len(ts.Columns) == 0 && ts.Stats.Empty() {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %q not found in schema %q", table, ts.Schema)
	}
	return ts, nil
}

// PrimaryKeys returns the primary key columns of table in key order. The
// result is empty, not nil, for a table without a primary key.
func (in *Introspector) PrimaryKeys(ctx context.Context, table string) ([]string, error) {
	res, err := in.db.Execute(ctx, primaryKeysSQL, in.db.Schema(), table)
	if err != nil {
		return nil, fmt.Errorf("primary keys: %w", err)
	}

	keys := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		keys = append(keys, asString(row["column_name"]))
	}
	return keys, nil
}

// Indexes returns every index on table, ordered by name.
func (in *Introspector) Indexes(ctx context.Context, table string) ([]Index, error) {
	res, err := in.db.Execute(ctx, indexesSQL, in.db.Schema(), table)
	if err != nil {
		return nil, fmt.Errorf("indexes: %w", err)
	}

	indexes := make([]Index, 0, len(res.Rows))
	for _, row := range res.Rows {
		indexes = append(indexes, Index{
			Name:       asString(row["indexname"]),
			Definition: asString(row["indexdef"]),
		})
	}
	return indexes, nil
}

// Columns returns the columns of table in ordinal order.
func (in *Introspector) Columns(ctx context.Context, table string) ([]Column, error) {
	res, err := in.db.Execute(ctx, columnsSQL, in.db.Schema(), table)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	cols := make([]Column, 0, len(res.Rows))
	for _, row := range res.Rows {
		col := Column{
			Name:     asString(row["column_name"]),
			DataType: asString(row["data_type"]),
		}
		if n, ok := asInt64(row["pos"]); ok {
			col.Position = int(n)
		}
		if n, ok := asInt64(row["max_length"]); ok {
			l := int(n)
			col.MaxLength = &l
		}
		if b, ok := row["nullable"].(bool); ok {
			col.Nullable = b
		}
		if s, ok := row["default_value"].(string); ok {
			col.Default = &s
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// Stats returns the collector's live row estimate and total relation size.
// A missing table yields an empty TableStats, not an error.
func (in *Introspector) Stats(ctx context.Context, table string) (TableStats, error) {
	res, err := in.db.Execute(ctx, statsSQL, in.db.Schema(), table)
	if err != nil {
		return TableStats{}, fmt.Errorf("table stats: %w", err)
	}
	if len(res.Rows) == 0 {
		return TableStats{}, nil
	}

	row := res.Rows[0]
	var stats TableStats
	if n, ok := asInt64(row["row_count"]); ok {
		stats.LiveRows = &n
	}
	if s, ok := row["total_size"].(string); ok {
		stats.TotalSize = &s
	}
	return stats, nil
}

func checkTable(table string) error {
	if strings.TrimSpace(table) == "" {
		return errs.New(errs.ErrKindInvalidInput, "table name is required")
	}
	return nil
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
