package schema

import (
	"fmt"
	"strings"
)

// FormatStructure renders ts as the plain-text report returned by the
// get_table_structure tool.
func FormatStructure(ts *TableStructure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "table structure: %s.%s\n", ts.Schema, ts.Table)

	b.WriteString("\n=== PRIMARY KEY ===\n")
	if len(ts.PrimaryKeys) > 0 {
		b.WriteString(strings.Join(ts.PrimaryKeys, ", "))
		b.WriteString("\n")
	} else {
		b.WriteString("none\n")
	}

	b.WriteString("\n=== INDEXES ===\n")
	if len(ts.Indexes) == 0 {
		b.WriteString("none\n")
	}
	for _, idx := range ts.Indexes {
		fmt.Fprintf(&b, "%s: %s\n", idx.Name, idx.Definition)
	}

	b.WriteString("\n=== COLUMNS ===\n")
	if len(ts.Columns) == 0 {
		b.WriteString("none\n")
	}
	for _, col := range ts.Columns {
		fmt.Fprintf(&b, "%d. %s %s", col.Position, col.Name, col.DataType)
		if col.MaxLength != nil {
			fmt.Fprintf(&b, "(%d)", *col.MaxLength)
		}
		if col.Nullable {
			b.WriteString(" NULL")
		} else {
			b.WriteString(" NOT NULL")
		}
		if col.Default != nil && *col.Default != "" {
			fmt.Fprintf(&b, " DEFAULT %s", *col.Default)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n=== TABLE STATS ===\n")
	if ts.Stats.Empty() {
		b.WriteString("no statistics collected\n")
		return b.String()
	}
	if ts.Stats.LiveRows != nil {
		fmt.Fprintf(&b, "row count: %d\n", *ts.Stats.LiveRows)
	}
	if ts.Stats.TotalSize != nil {
		fmt.Fprintf(&b, "total size: %s\n", *ts.Stats.TotalSize)
	}
	return b.String()
}
