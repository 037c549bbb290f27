package schema

// Index describes one index on a table.
type Index struct {
	Name       string `json:"name"`
	Definition string `json:"definition"` // CREATE INDEX statement as reported by pg_indexes
}

// Column describes a single column in a table.
type Column struct {
	Position  int     `json:"position"`
	Name      string  `json:"name"`
	DataType  string  `json:"data_type"`            // information_schema type: character varying, integer, ...
	MaxLength *int    `json:"max_length,omitempty"` // nil for non-char types
	Nullable  bool    `json:"nullable"`
	Default   *string `json:"default,omitempty"` // nil if no default
}

// TableStats is the planner's view of a table. Both fields are nil when the
// table does not exist; LiveRows alone is nil when it was never collected.
type TableStats struct {
	LiveRows  *int64  `json:"row_count,omitempty"`
	TotalSize *string `json:"total_size,omitempty"`
}

// Empty reports whether no statistics were collected.
func (s TableStats) Empty() bool {
	return s.LiveRows == nil && s.TotalSize == nil
}

// TableStructure is the merged result of the four catalog reads for one
// table. Slices are never nil.
type TableStructure struct {
	Schema      string     `json:"schema"`
	Table       string     `json:"table"`
	PrimaryKeys []string   `json:"primary_keys"` // ordered by key position
	Indexes     []Index    `json:"indexes"`      // ordered by index name
	Columns     []Column   `json:"columns"`      // ordered by ordinal position
	Stats       TableStats `json:"stats"`
}
