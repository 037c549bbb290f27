package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/mallgate/internal/errs"
)

func TestCatalog(t *testing.T) {
	cat, err := Catalog()
	require.NoError(t, err)

	names := make([]string, len(cat))
	for i, d := range cat {
		names[i] = d.Name
		assert.NotEmpty(t, d.Description, d.Name)
		require.NotNil(t, d.InputSchema, d.Name)
		assert.Equal(t, "object", d.InputSchema.Type, d.Name)
	}
	assert.Equal(t, []string{ExecuteQuery, GetTableStructure, ListTables, GetOrder, GetOrderDetail, GetMember}, names)
}

func TestCatalog_RequiredArguments(t *testing.T) {
	cat, err := Catalog()
	require.NoError(t, err)

	want := map[string][]string{
		ExecuteQuery:      {"query"},
		GetTableStructure: {"table_name"},
		ListTables:        nil,
		GetOrder:          {"order_id"},
		GetOrderDetail:    {"order_id"},
		GetMember:         {"member_id"},
	}
	for _, d := range cat {
		if want[d.Name] == nil {
			assert.Empty(t, d.InputSchema.Required, d.Name)
			continue
		}
		assert.Equal(t, want[d.Name], d.InputSchema.Required, d.Name)
		for _, prop := range want[d.Name] {
			require.Contains(t, d.InputSchema.Properties, prop)
			assert.Equal(t, "string", d.InputSchema.Properties[prop].Type)
		}
	}
}

func TestCatalog_CoversEveryDecoder(t *testing.T) {
	cat, err := Catalog()
	require.NoError(t, err)

	assert.Len(t, decoders, len(cat))
	for _, d := range cat {
		assert.Contains(t, decoders, d.Name)
		assert.Contains(t, errorPrefix, d.Name)
	}
}

func TestDecode(t *testing.T) {
	inv, err := Decode(GetOrder, json.RawMessage(`{"order_id":"20250804-0000020"}`))
	require.NoError(t, err)
	assert.Equal(t, GetOrderArgs{OrderID: "20250804-0000020"}, inv)
	assert.Equal(t, GetOrder, inv.Tool())

	inv, err = Decode(ListTables, json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Equal(t, ListTablesArgs{}, inv)

	_, err = Decode("get_orders", nil)
	assert.True(t, errs.IsUnknownTool(err))

	_, err = Decode(ExecuteQuery, json.RawMessage(`{"query":""}`))
	assert.True(t, errs.IsInvalidInput(err))
}
