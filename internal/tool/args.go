package tool

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/koustreak/mallgate/internal/errs"
)

// Invocation is one decoded, validated tool call. The concrete type
// identifies the tool.
type Invocation interface {
	Tool() string
	Validate() error
}

// ExecuteQueryArgs are the arguments of execute_query.
type ExecuteQueryArgs struct {
	Query string `json:"query" jsonschema:"SQL statement to execute"`
}

func (ExecuteQueryArgs) Tool() string { return ExecuteQuery }

func (a ExecuteQueryArgs) Validate() error { return required("query", a.Query) }

// GetTableStructureArgs are the arguments of get_table_structure.
type GetTableStructureArgs struct {
	TableName string `json:"table_name" jsonschema:"name of the table to describe"`
}

func (GetTableStructureArgs) Tool() string { return GetTableStructure }

func (a GetTableStructureArgs) Validate() error { return required("table_name", a.TableName) }

// ListTablesArgs are the (empty) arguments of list_tables.
type ListTablesArgs struct{}

func (ListTablesArgs) Tool() string    { return ListTables }
func (ListTablesArgs) Validate() error { return nil }

// GetOrderArgs are the arguments of get_order.
type GetOrderArgs struct {
	OrderID string `json:"order_id" jsonschema:"order ID to look up, e.g. 20250804-0000020"`
}

func (GetOrderArgs) Tool() string { return GetOrder }

func (a GetOrderArgs) Validate() error { return required("order_id", a.OrderID) }

// GetOrderDetailArgs are the arguments of get_order_detail.
type GetOrderDetailArgs struct {
	OrderID string `json:"order_id" jsonschema:"order ID to look up, e.g. 20250804-0000020"`
}

func (GetOrderDetailArgs) Tool() string { return GetOrderDetail }

func (a GetOrderDetailArgs) Validate() error { return required("order_id", a.OrderID) }

// GetMemberArgs are the arguments of get_member.
type GetMemberArgs struct {
	MemberID string `json:"member_id" jsonschema:"member ID to look up"`
}

func (GetMemberArgs) Tool() string { return GetMember }

func (a GetMemberArgs) Validate() error { return required("member_id", a.MemberID) }

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return errs.Newf(errs.ErrKindInvalidInput, "argument %q is required", field)
	}
	return nil
}

type decoder func(raw json.RawMessage) (Invocation, error)

var decoders = map[string]decoder{
	ExecuteQuery:      decodeAs[ExecuteQueryArgs],
	GetTableStructure: decodeAs[GetTableStructureArgs],
	ListTables:        decodeAs[ListTablesArgs],
	GetOrder:          decodeAs[GetOrderArgs],
	GetOrderDetail:    decodeAs[GetOrderDetailArgs],
	GetMember:         decodeAs[GetMemberArgs],
}

// Decode turns a raw (name, arguments) pair into its typed Invocation.
// An unregistered name is an UnknownTool error; malformed or missing
// arguments are InvalidInput errors.
func Decode(name string, raw json.RawMessage) (Invocation, error) {
	dec, ok := decoders[name]
	if !ok {
		return nil, errs.Newf(errs.ErrKindUnknownTool, "unknown tool: %s", name)
	}
	return dec(raw)
}

func decodeAs[T Invocation](raw json.RawMessage) (Invocation, error) {
	var args T
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&args); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid arguments", err)
		}
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	return args, nil
}
