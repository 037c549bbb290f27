package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/mallgate/internal/database"
	"github.com/koustreak/mallgate/internal/errs"
	"github.com/koustreak/mallgate/internal/logger"
	"github.com/koustreak/mallgate/internal/lookup"
	"github.com/koustreak/mallgate/internal/metrics"
	"github.com/koustreak/mallgate/internal/schema"
)

type fakeExecutor struct {
	result *database.QueryResult
	err    error
}

func (f *fakeExecutor) Schema() string { return "ec_ectlocal" }

func (f *fakeExecutor) Execute(context.Context, string, ...any) (*database.QueryResult, error) {
	return f.result, f.err
}

type fakeReader struct {
	tables    []string
	structure *schema.TableStructure
	err       error
}

func (f *fakeReader) ListTables(context.Context) ([]string, error) { return f.tables, f.err }

func (f *fakeReader) DescribeTable(context.Context, string) (*schema.TableStructure, error) {
	return f.structure, f.err
}

type fakeLookups struct {
	byID  map[string]*lookup.Lookup
	err   error
	panic bool
}

func (f *fakeLookups) get(id string) (*lookup.Lookup, error) {
	if f.panic {
		panic("nil map write")
	}
	if f.err != nil {
		return nil, f.err
	}
	if l, ok := f.byID[id]; ok {
		return l, nil
	}
	return &lookup.Lookup{ID: id, Rows: []map[string]any{}}, nil
}

func (f *fakeLookups) GetOrder(_ context.Context, id string) (*lookup.Lookup, error) { return f.get(id) }
func (f *fakeLookups) GetOrderDetail(_ context.Context, id string) (*lookup.Lookup, error) {
	return f.get(id)
}
func (f *fakeLookups) GetMember(_ context.Context, id string) (*lookup.Lookup, error) { return f.get(id) }

func newTestDispatcher(ex *fakeExecutor, r *fakeReader, l *fakeLookups) *Dispatcher {
	if ex == nil {
		ex = &fakeExecutor{}
	}
	if r == nil {
		r = &fakeReader{}
	}
	if l == nil {
		l = &fakeLookups{}
	}
	return NewDispatcher(ex, r, l, logger.Nop())
}

func args(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func syntaxErr() error {
	return errs.Wrap(errs.ErrKindQueryFailed, "query failed",
		errors.New(`ERROR: syntax error at or near "SELEC" (SQLSTATE 42601)`))
}

func TestDispatch_UnknownTool(t *testing.T) {
	d := newTestDispatcher(nil, nil, nil)

	for _, name := range []string{"drop_database", "", "EXECUTE_QUERY"} {
		resp, err := d.Dispatch(context.Background(), name, nil)
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.True(t, errs.IsUnknownTool(err), "%q: %v", name, err)
	}
}

func TestDispatch_ExecuteQuery(t *testing.T) {
	ex := &fakeExecutor{result: &database.QueryResult{
		Columns: []string{"order_id", "payed_amount"},
		Rows: []map[string]any{
			{"order_id": "20250804-0000020", "payed_amount": int64(39000)},
			{"order_id": "20250804-0000021", "payed_amount": nil},
		},
		RowCount: 2,
	}}
	d := newTestDispatcher(ex, nil, nil)

	resp, err := d.Dispatch(context.Background(), ExecuteQuery, args(t, map[string]string{"query": "SELECT order_id, payed_amount FROM orders"}))
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, ContentTypeText, resp.Content[0].Type)
	assert.Equal(t, `query executed: 2 rows

[
  {
    "order_id": "20250804-0000020",
    "payed_amount": 39000
  },
  {
    "order_id": "20250804-0000021",
    "payed_amount": null
  }
]`, resp.Text())
}

func TestDispatch_ExecuteQueryFailure(t *testing.T) {
	d := newTestDispatcher(&fakeExecutor{err: syntaxErr()}, nil, nil)

	resp, err := d.Dispatch(context.Background(), ExecuteQuery, args(t, map[string]string{"query": "SELEC 1"}))
	require.NoError(t, err)
	assert.True(t, resp.IsError)
	assert.Equal(t, `query execution failed: query failed: ERROR: syntax error at or near "SELEC" (SQLSTATE 42601)`, resp.Text())
}

func TestDispatch_InvalidArguments(t *testing.T) {
	d := newTestDispatcher(nil, nil, nil)

	tests := []struct {
		name string
		tool string
		raw  string
		want string
	}{
		{"missing query", ExecuteQuery, `{}`, `query execution failed: argument "query" is required`},
		{"blank table", GetTableStructure, `{"table_name": "  "}`, `table structure lookup failed: argument "table_name" is required`},
		{"no arguments", GetMember, ``, `member lookup failed: argument "member_id" is required`},
		{"wrong type", GetOrder, `{"order_id": 20250804}`, `order lookup failed: invalid arguments`},
		{"unknown field", GetOrderDetail, `{"order_id": "x", "limit": 5}`, `order detail lookup failed: invalid arguments`},
		{"not an object", ListTables, `[1]`, `table listing failed: invalid arguments`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := d.Dispatch(context.Background(), tt.tool, json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.True(t, resp.IsError)
			assert.Contains(t, resp.Text(), tt.want)
		})
	}
}

func TestDispatch_ListTables(t *testing.T) {
	d := newTestDispatcher(nil, &fakeReader{tables: []string{"member", "order_manage", "orders"}}, nil)

	resp, err := d.Dispatch(context.Background(), ListTables, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.Equal(t, "tables in schema ec_ectlocal:\n\nmember\norder_manage\norders", resp.Text())
}

func TestDispatch_ListTablesFailure(t *testing.T) {
	d := newTestDispatcher(nil, &fakeReader{err: errs.New(errs.ErrKindPoolExhausted, "no connection available before acquire timeout")}, nil)

	resp, err := d.Dispatch(context.Background(), ListTables, nil)
	require.NoError(t, err)
	assert.True(t, resp.IsError)
	assert.Equal(t, "table listing failed: no connection available before acquire timeout", resp.Text())
}

func TestDispatch_GetTableStructure(t *testing.T) {
	ts := &schema.TableStructure{Schema: "ec_ectlocal", Table: "orders", PrimaryKeys: []string{"order_id"}}
	d := newTestDispatcher(nil, &fakeReader{structure: ts}, nil)

	resp, err := d.Dispatch(context.Background(), GetTableStructure, args(t, map[string]string{"table_name": "orders"}))
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.Equal(t, schema.FormatStructure(ts), resp.Text())
}

func TestDispatch_GetTableStructureMissingTable(t *testing.T) {
	d := newTestDispatcher(nil, &fakeReader{err: errs.New(errs.ErrKindNotFound, "table not found")}, nil)

	resp, err := d.Dispatch(context.Background(), GetTableStructure, args(t, map[string]string{"table_name": "nope"}))
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.True(t, resp.NotFound())
	assert.Equal(t, "table not found: nope", resp.Text())
}

func TestDispatch_GetOrder(t *testing.T) {
	l := &fakeLookups{byID: map[string]*lookup.Lookup{
		"20250804-0000020": {
			ID:      "20250804-0000020",
			Found:   true,
			Columns: []string{"order_id", "member_id", "is_payed"},
			Rows:    []map[string]any{{"order_id": "20250804-0000020", "member_id": "hong01", "is_payed": "Y"}},
		},
	}}
	d := newTestDispatcher(nil, nil, l)

	resp, err := d.Dispatch(context.Background(), GetOrder, args(t, map[string]string{"order_id": "20250804-0000020"}))
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.Equal(t, `order: 20250804-0000020

{
  "order_id": "20250804-0000020",
  "member_id": "hong01",
  "is_payed": "Y"
}`, resp.Text())
}

func TestDispatch_NotFoundDiffersFromFailure(t *testing.T) {
	ctx := context.Background()
	raw := args(t, map[string]string{"order_id": "20990101-9999999"})

	notFound, err := newTestDispatcher(nil, nil, &fakeLookups{}).Dispatch(ctx, GetOrder, raw)
	require.NoError(t, err)

	failure, err := newTestDispatcher(nil, nil, &fakeLookups{err: syntaxErr()}).Dispatch(ctx, GetOrder, raw)
	require.NoError(t, err)

	assert.False(t, notFound.IsError)
	assert.True(t, notFound.NotFound())
	assert.Equal(t, "order not found: 20990101-9999999", notFound.Text())

	assert.True(t, failure.IsError)
	assert.False(t, failure.NotFound())
	assert.Contains(t, failure.Text(), "order lookup failed: ")
	assert.NotEqual(t, notFound.Text(), failure.Text())
}

func TestDispatch_GetOrderDetail(t *testing.T) {
	l := &fakeLookups{byID: map[string]*lookup.Lookup{
		"20250804-0000020": {
			ID:      "20250804-0000020",
			Found:   true,
			Columns: []string{"order_id", "om_no"},
			Rows: []map[string]any{
				{"order_id": "20250804-0000020", "om_no": int64(1)},
				{"order_id": "20250804-0000020", "om_no": int64(2)},
			},
		},
	}}
	d := newTestDispatcher(nil, nil, l)

	resp, err := d.Dispatch(context.Background(), GetOrderDetail, args(t, map[string]string{"order_id": "20250804-0000020"}))
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.Contains(t, resp.Text(), "order detail: 20250804-0000020 (2 rows)")

	var rows []map[string]any
	_, dump, ok := strings.Cut(resp.Text(), "\n\n")
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(dump), &rows))
	assert.Len(t, rows, 2)
}

func TestDispatch_GetMemberNotFound(t *testing.T) {
	d := newTestDispatcher(nil, nil, &fakeLookups{})

	resp, err := d.Dispatch(context.Background(), GetMember, args(t, map[string]string{"member_id": "ghost"}))
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.Equal(t, "member not found: ghost", resp.Text())
}

func TestDispatch_RecoversPanics(t *testing.T) {
	d := newTestDispatcher(nil, nil, &fakeLookups{panic: true})

	resp, err := d.Dispatch(context.Background(), GetMember, args(t, map[string]string{"member_id": "hong01"}))
	require.NoError(t, err)
	assert.True(t, resp.IsError)
	assert.Equal(t, "member lookup failed: internal error: nil map write", resp.Text())
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	d := newTestDispatcher(nil, nil, &fakeLookups{})
	counter := metrics.ToolCallsTotal.WithLabelValues(GetMember, metrics.StatusNotFound)
	before := testutil.ToFloat64(counter)

	_, err := d.Dispatch(context.Background(), GetMember, args(t, map[string]string{"member_id": "ghost"}))
	require.NoError(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestDispatch_Concurrent(t *testing.T) {
	ex := &fakeExecutor{result: &database.QueryResult{Columns: []string{"n"}, Rows: []map[string]any{{"n": int32(1)}}, RowCount: 1}}
	d := newTestDispatcher(ex, &fakeReader{tables: []string{"orders"}}, &fakeLookups{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name, raw := ExecuteQuery, json.RawMessage(`{"query":"SELECT 1 AS n"}`)
			if i%2 == 0 {
				name, raw = ListTables, nil
			}
			resp, err := d.Dispatch(context.Background(), name, raw)
			assert.NoError(t, err)
			assert.False(t, resp.IsError)
		}(i)
	}
	wg.Wait()
}
