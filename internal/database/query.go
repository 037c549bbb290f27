package database

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/mallgate/internal/errs"
)

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

// SelectBuilder assembles the fixed-shape projections the lookup tools run.
// Identifiers are quoted, values always travel as $n parameters.
//
//	sql, args, err := Select("orders").
//	    As("o").
//	    Columns("o.order_id", "om.om_no").
//	    LeftJoin("order_manage", "om", "o.order_id", "om.order_id").
//	    WhereEq("o.order_id", id).
//	    Build()
type SelectBuilder struct {
	table   string
	alias   string
	columns []string
	joins   []join
	filters []filter
	orderBy []order
	limit   int
}

type join struct {
	table, alias string
	left, right  string
}

type filter struct {
	column string
	value  any
}

type order struct {
	column string
	dir    SortDirection
}

// Select starts a projection over table.
func Select(table string) *SelectBuilder {
	return &SelectBuilder{table: table}
}

// As aliases the base table.
func (b *SelectBuilder) As(alias string) *SelectBuilder {
	b.alias = alias
	return b
}

// Columns sets the projection. Qualified names ("o.order_id") are quoted
// part by part. Without it the builder selects *.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// LeftJoin adds LEFT JOIN table alias ON left = right.
func (b *SelectBuilder) LeftJoin(table, alias, left, right string) *SelectBuilder {
	b.joins = append(b.joins, join{table: table, alias: alias, left: left, right: right})
	return b
}

// WhereEq adds column = value. Multiple filters are ANDed.
func (b *SelectBuilder) WhereEq(column string, value any) *SelectBuilder {
	b.filters = append(b.filters, filter{column: column, value: value})
	return b
}

// OrderBy appends a sort key.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, order{column: column, dir: dir})
	return b
}

// Limit caps the row count. Zero means no limit.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	return b
}

// Build renders the statement and its arguments. An empty table, column or
// join key is an InvalidInput error.
func (b *SelectBuilder) Build() (string, []any, error) {
	if err := b.check(); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(b.columns) == 0 {
		sb.WriteString("*")
	} else {
		for i, c := range b.columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteIdent(c))
		}
	}
	sb.WriteString(" FROM ")
	sb.WriteString(tableRef(b.table, b.alias))

	for _, j := range b.joins {
		fmt.Fprintf(&sb, " LEFT JOIN %s ON %s = %s", tableRef(j.table, j.alias), quoteIdent(j.left), quoteIdent(j.right))
	}

	args := make([]any, 0, len(b.filters)+1)
	for i, f := range b.filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, f.value)
		fmt.Fprintf(&sb, "%s = $%d", quoteIdent(f.column), len(args))
	}

	for i, o := range b.orderBy {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(o.column))
		if o.dir == Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	if b.limit > 0 {
		args = append(args, b.limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	return sb.String(), args, nil
}

func (b *SelectBuilder) check() error {
	if b.table == "" {
		return errs.New(errs.ErrKindInvalidInput, "select: table is required")
	}
	if b.limit < 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "select: negative limit %d", b.limit)
	}
	for _, c := range b.columns {
		if c == "" {
			return errs.New(errs.ErrKindInvalidInput, "select: empty column name")
		}
	}
	for _, j := range b.joins {
		if j.table == "" || j.left == "" || j.right == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "select: incomplete join on %q", j.table)
		}
	}
	for _, f := range b.filters {
		if f.column == "" {
			return errs.New(errs.ErrKindInvalidInput, "select: empty filter column")
		}
	}
	return nil
}

func tableRef(table, alias string) string {
	if alias == "" {
		return quoteIdent(table)
	}
	return quoteIdent(table) + " " + quoteIdent(alias)
}

// quoteIdent quotes each dot-separated part of name.
func quoteIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
