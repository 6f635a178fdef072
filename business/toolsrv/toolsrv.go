// Package toolsrv exposes the snapshot to external agents as MCP tools.
package toolsrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ardanlabs/qcommerce-evals/business/dataset"
	"github.com/ardanlabs/qcommerce-evals/business/resultset"
	"github.com/ardanlabs/qcommerce-evals/business/sqlcheck"
	"github.com/ardanlabs/qcommerce-evals/business/trajectory"
	"github.com/jmoiron/sqlx"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names agents call.
const (
	ToolExecuteSQL    = trajectory.ToolExecuteSQL
	ToolListTables    = "list_tables"
	ToolDescribeTable = "describe_table"
	ToolSchema        = "get_schema"
)

// Tools runs tool calls against one snapshot.
type Tools struct {
	log  *slog.Logger
	db   *sqlx.DB
	rows int
}

// New constructs the tools. rows limits how many result rows an execute_sql
// observation carries.
func New(log *slog.Logger, db *sqlx.DB, rows int) *Tools {
	if rows <= 0 {
		rows = 50
	}

	return &Tools{log: log, db: db, rows: rows}
}

// Observation runs sql and returns the text an agent sees: the result as CSV
// with at most the configured number of rows, or "SQL Error: " and the driver
// message.
func (t *Tools) Observation(ctx context.Context, sql string) string {
	sql = sqlcheck.StripFences(sql)

	if err := sqlcheck.ReadOnly(sql); err != nil {
		observe(ToolExecuteSQL, err)
		return trajectory.SQLErrorPrefix + " " + err.Error()
	}

	tbl, err := resultset.Query(ctx, t.db, sql)
	if err != nil {
		var qe *sqlcheck.QueryError
		errors.As(sqlcheck.ClassifyError(sql, err), &qe)

		observe(ToolExecuteSQL, qe)
		t.log.Debug("execute_sql", "status", "failed", "category", qe.Category, "retryable", qe.Retryable(), "error", qe.Message())

		return trajectory.SQLErrorPrefix + " " + qe.Message()
	}

	observe(ToolExecuteSQL, nil)
	t.log.Debug("execute_sql", "status", "ok", "rows", len(tbl.Rows))

	if len(tbl.Columns) == 0 {
		return "(no rows)"
	}

	return resultset.TruncateCSV(tbl.CSV(), t.rows)
}

// =============================================================================

// ExecuteSQLParams represents the parameters for execute_sql.
type ExecuteSQLParams struct {
	SQL string `json:"sql" jsonschema:"A single read only DuckDB SQL statement to run against the analytics snapshot."`
}

// ExecuteSQL runs a read only statement. Failures are reported in the text
// content rather than as tool errors so the agent can read and fix them.
func (t *Tools) ExecuteSQL(ctx context.Context, req *mcp.CallToolRequest, params ExecuteSQLParams) (*mcp.CallToolResult, any, error) {
	return text(t.Observation(ctx, params.SQL)), nil, nil
}

// ListTablesParams represents the parameters for list_tables.
type ListTablesParams struct{}

// ListTables returns the table names of the snapshot.
func (t *Tools) ListTables(ctx context.Context, req *mcp.CallToolRequest, params ListTablesParams) (*mcp.CallToolResult, any, error) {
	tables, err := dataset.ListTables(ctx, t.db)
	if err != nil {
		observe(ToolListTables, err)
		return envelope(failed(err)), nil, nil
	}

	observe(ToolListTables, nil)
	return envelope(success("tables", tables)), nil, nil
}

// DescribeTableParams represents the parameters for describe_table.
type DescribeTableParams struct {
	Table string `json:"table" jsonschema:"Name of the table to describe."`
}

// DescribeTable returns the columns of one table.
func (t *Tools) DescribeTable(ctx context.Context, req *mcp.CallToolRequest, params DescribeTableParams) (*mcp.CallToolResult, any, error) {
	table := strings.TrimSpace(params.Table)
	if table == "" {
		observe(ToolDescribeTable, errMissingTable)
		return envelope(failed(errMissingTable)), nil, nil
	}

	cols, err := dataset.Describe(ctx, t.db, table)
	if err != nil {
		observe(ToolDescribeTable, err)
		return envelope(failed(err)), nil, nil
	}

	observe(ToolDescribeTable, nil)
	return envelope(success("table", table, "columns", cols)), nil, nil
}

// SchemaParams represents the parameters for get_schema.
type SchemaParams struct{}

// Schema returns every table with row counts, columns and the values of
// low cardinality text columns.
func (t *Tools) Schema(ctx context.Context, req *mcp.CallToolRequest, params SchemaParams) (*mcp.CallToolResult, any, error) {
	schema, err := dataset.SchemaContext(ctx, t.db)
	if err != nil {
		observe(ToolSchema, err)
		return envelope(failed(err)), nil, nil
	}

	observe(ToolSchema, nil)
	return envelope(success("schema", schema)), nil, nil
}

// =============================================================================

// NewServer registers every tool on one MCP server.
func (t *Tools) NewServer(version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "qcommerce", Version: version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolExecuteSQL,
		Description: "Run a read only DuckDB SQL query against the quick-commerce snapshot and return the result as CSV. Errors start with 'SQL Error:'.",
	}, t.ExecuteSQL)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolListTables,
		Description: "List the tables in the quick-commerce snapshot.",
	}, t.ListTables)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolDescribeTable,
		Description: "Describe the columns and types of one table.",
	}, t.DescribeTable)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolSchema,
		Description: "Describe every table with row counts, columns and sample values.",
	}, t.Schema)

	return srv
}

// Handler serves the tools over SSE. Every path reaches the same server so
// clients may connect at "/" or at "/<tool name>".
func (t *Tools) Handler(version string) http.Handler {
	srv := t.NewServer(version)

	f := func(r *http.Request) *mcp.Server {
		t.log.Info("mcp", "status", "connect", "path", r.URL.Path, "remote", r.RemoteAddr)
		return srv
	}

	return mcp.NewSSEHandler(f, &mcp.SSEOptions{})
}

// =============================================================================

type response struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

func success(keyValues ...any) response {
	data := make(map[string]any)
	for i := 0; i+1 < len(keyValues); i += 2 {
		data[keyValues[i].(string)] = keyValues[i+1]
	}

	return response{Status: "SUCCESS", Data: data}
}

func failed(err error) response {
	return response{Status: "FAILED", Data: map[string]any{"error": err.Error()}}
}

func envelope(r response) *mcp.CallToolResult {
	data, err := json.Marshal(r)
	if err != nil {
		data = fmt.Appendf(nil, `{"status":"FAILED","data":{"error":%q}}`, err.Error())
	}

	return text(string(data))
}

func text(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: s}},
	}
}
