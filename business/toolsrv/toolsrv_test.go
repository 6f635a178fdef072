package toolsrv_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ardanlabs/qcommerce-evals/business/dataset"
	"github.com/ardanlabs/qcommerce-evals/business/dataset/dstest"
	"github.com/ardanlabs/qcommerce-evals/business/toolsrv"
	"github.com/ardanlabs/qcommerce-evals/business/trajectory"
	"github.com/ardanlabs/qcommerce-evals/foundation/logger"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()

	require.NotNil(t, res)
	require.Len(t, res.Content, 1)

	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	return tc.Text
}

func TestObservation(t *testing.T) {
	db, fx := dstest.New(t)
	tools := toolsrv.New(logger.Discard(), db, 3)

	tests := []struct {
		name   string
		sql    string
		prefix string
		check  func(t *testing.T, obs string)
	}{
		{
			name:   "rows",
			sql:    "SELECT store_name FROM stores ORDER BY store_name",
			prefix: "store_name\n",
			check: func(t *testing.T, obs string) {
				if len(fx.Stores) > 3 {
					assert.True(t, strings.HasSuffix(obs, "total rows)"), obs)
				}
			},
		},
		{
			name:   "fenced",
			sql:    "```sql\nSELECT COUNT(*) AS n FROM stores\n```",
			prefix: "n\n",
		},
		{
			name:   "binder error",
			sql:    "SELECT rating FROM order_items",
			prefix: trajectory.SQLErrorPrefix,
			check: func(t *testing.T, obs string) {
				assert.NotContains(t, obs, "schema mismatch")
				assert.True(t, strings.HasPrefix(obs, trajectory.SQLErrorPrefix+" Binder Error"), obs)
			},
		},
		{
			name:   "write refused",
			sql:    "DROP TABLE stores",
			prefix: trajectory.SQLErrorPrefix,
		},
		{
			name:   "write after comment",
			sql:    "SELECT 1; -- it's\nDELETE FROM order_items",
			prefix: trajectory.SQLErrorPrefix,
		},
		{
			name:   "write after nested comment",
			sql:    "SELECT 1 /* /* */ ' */; DELETE FROM order_items; -- '",
			prefix: trajectory.SQLErrorPrefix,
		},
		{
			name:   "empty",
			sql:    "  ",
			prefix: trajectory.SQLErrorPrefix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := tools.Observation(t.Context(), tt.sql)
			assert.True(t, strings.HasPrefix(obs, tt.prefix), obs)
			if tt.check != nil {
				tt.check(t, obs)
			}
		})
	}

	tables, err := dataset.ListTables(t.Context(), db)
	require.NoError(t, err)
	assert.Contains(t, tables, "stores")

	var items int
	require.NoError(t, db.GetContext(t.Context(), &items, "SELECT COUNT(*) FROM order_items"))
	assert.Equal(t, len(fx.Lines), items)
}

func TestEnvelopeTools(t *testing.T) {
	db, _ := dstest.New(t)
	tools := toolsrv.New(logger.Discard(), db, 0)

	res, _, err := tools.ListTables(t.Context(), nil, toolsrv.ListTablesParams{})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &env))
	assert.Equal(t, "SUCCESS", env.Status)

	var tables struct {
		Tables []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tables))
	assert.ElementsMatch(t, dataset.Tables, tables.Tables)

	res, _, err = tools.DescribeTable(t.Context(), nil, toolsrv.DescribeTableParams{Table: "order_items"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &env))
	assert.Equal(t, "SUCCESS", env.Status)
	assert.Contains(t, string(env.Data), `"order_status"`)

	for _, table := range []string{"", "ratings"} {
		res, _, err = tools.DescribeTable(t.Context(), nil, toolsrv.DescribeTableParams{Table: table})
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &env))
		assert.Equal(t, "FAILED", env.Status, table)
		assert.Contains(t, string(env.Data), `"error"`)
	}

	res, _, err = tools.Schema(t.Context(), nil, toolsrv.SchemaParams{})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &env))
	assert.Equal(t, "SUCCESS", env.Status)
	assert.Contains(t, string(env.Data), "Table: stores")
}

func TestHandlerOverSSE(t *testing.T) {
	db, _ := dstest.New(t)
	tools := toolsrv.New(logger.Discard(), db, 10)

	srv := httptest.NewServer(tools.Handler("test"))
	defer srv.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v1.0.0"}, nil)

	session, err := client.Connect(t.Context(), &mcp.SSEClientTransport{Endpoint: srv.URL + "/" + toolsrv.ToolExecuteSQL}, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      toolsrv.ToolExecuteSQL,
		Arguments: map[string]any{"sql": "SELECT COUNT(*) AS stores FROM stores"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.True(t, strings.HasPrefix(textOf(t, res), "stores\n"))

	res, err = session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      toolsrv.ToolExecuteSQL,
		Arguments: map[string]any{"sql": "SELEC 1"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(textOf(t, res), trajectory.SQLErrorPrefix))
}
