package database

import "github.com/koustreak/mallgate/internal/errs"

// ScanRows reads all rows from the result set into a QueryResult where each
// row maps column name to the Go-native representation of the DB value.
//
// The returned Rows slice is always non-nil (empty slice on zero rows).
// ScanRows always closes rows; callers do not need to call Close().
// Iteration errors are returned unwrapped so the driver can map them.
func ScanRows(rows Rows) (*QueryResult, error) {
	defer rows.Close()

	columns := rows.Columns()
	result := &QueryResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to decode row", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(values) {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows.Close()
	result.RowCount = rows.RowsAffected()
	if result.RowCount == 0 {
		result.RowCount = int64(len(result.Rows))
	}
	return result, nil
}
