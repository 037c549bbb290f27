package tool

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool names.
const (
	ExecuteQuery      = "execute_query"
	GetTableStructure = "get_table_structure"
	ListTables        = "list_tables"
	GetOrder          = "get_order"
	GetOrderDetail    = "get_order_detail"
	GetMember         = "get_member"
)

// Descriptor is one catalog entry as advertised to clients.
type Descriptor struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Catalog returns the six tool descriptors in a stable order, with input
// schemas generated from the argument types.
func Catalog() ([]Descriptor, error) {
	entries := []struct {
		name, desc string
		schema     func() (*jsonschema.Schema, error)
	}{
		{ExecuteQuery, "Execute an SQL statement against the PostgreSQL database.", schemaFor[ExecuteQueryArgs]},
		{GetTableStructure, "Show a table's primary key, indexes, columns and statistics.", schemaFor[GetTableStructureArgs]},
		{ListTables, "List every table in the configured schema.", schemaFor[ListTablesArgs]},
		{GetOrder, "Look up an order by order ID.", schemaFor[GetOrderArgs]},
		{GetOrderDetail, "Look up an order together with its order_manage fulfillment lines.", schemaFor[GetOrderDetailArgs]},
		{GetMember, "Look up a member by member ID.", schemaFor[GetMemberArgs]},
	}

	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		s, err := e.schema()
		if err != nil {
			return nil, fmt.Errorf("failed to create %s input schema: %w", e.name, err)
		}
		out = append(out, Descriptor{Name: e.name, Description: e.desc, InputSchema: s})
	}
	return out, nil
}

func schemaFor[T any]() (*jsonschema.Schema, error) {
	return jsonschema.For[T](nil)
}

// errorPrefix is prepended to the message of an error-flagged response.
var errorPrefix = map[string]string{
	ExecuteQuery:      "query execution failed: ",
	GetTableStructure: "table structure lookup failed: ",
	ListTables:        "table listing failed: ",
	GetOrder:          "order lookup failed: ",
	GetOrderDetail:    "order detail lookup failed: ",
	GetMember:         "member lookup failed: ",
}
