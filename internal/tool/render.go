package tool

import (
	"bytes"
	"database/sql/driver"
	"encoding"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/koustreak/mallgate/internal/database"
	"github.com/koustreak/mallgate/internal/lookup"
)

func renderQueryResult(res *database.QueryResult) (string, error) {
	dump, err := marshalRows(res.Columns, res.Rows)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("query executed: %d rows\n\n%s", res.RowCount, dump), nil
}

func renderTableList(schema string, tables []string) string {
	if len(tables) == 0 {
		return fmt.Sprintf("no tables in schema %s", schema)
	}
	return fmt.Sprintf("tables in schema %s:\n\n%s", schema, strings.Join(tables, "\n"))
}

// renderLookup dumps the first row for single-row lookups and every row
// otherwise.
func renderLookup(title string, l *lookup.Lookup, all bool) (string, error) {
	var (
		dump []byte
		err  error
	)
	if all {
		dump, err = marshalRows(l.Columns, l.Rows)
		title = fmt.Sprintf("%s (%d rows)", title, len(l.Rows))
	} else {
		var buf bytes.Buffer
		if err = writeRow(&buf, l.Columns, l.Rows[0]); err == nil {
			dump, err = indent(buf.Bytes())
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n\n%s", title, dump), nil
}

// marshalRows renders rows as an indented JSON array whose objects keep
// the statement's column order.
func marshalRows(cols []string, rows []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeRow(&buf, cols, row); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(']')
	return indent(buf.Bytes())
}

func writeRow(buf *bytes.Buffer, cols []string, row map[string]any) error {
	if len(cols) == 0 {
		cols = make([]string, 0, len(row))
		for k := range row {
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}

	seen := make(map[string]bool, len(cols))
	buf.WriteByte('{')
	first := true
	for _, col := range cols {
		if seen[col] {
			continue
		}
		seen[col] = true

		key, err := json.Marshal(col)
		if err != nil {
			return err
		}
		val, err := json.Marshal(jsonValue(row[col]))
		if err != nil {
			val, _ = json.Marshal(fmt.Sprint(row[col]))
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return nil
}

// jsonValue converts driver values with no useful JSON form. pgtype
// structs without a JSON encoding (interval, time, ...) render as the
// text Postgres would print for them.
func jsonValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	case json.Marshaler, encoding.TextMarshaler:
		return v
	case driver.Valuer:
		val, err := x.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if b, ok := val.([]byte); ok {
			return string(b)
		}
		return val
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}

func indent(compact []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
