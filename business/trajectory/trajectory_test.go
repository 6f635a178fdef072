package trajectory_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/qcommerce-evals/business/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const record = `{
	"example_id": "top_stores_by_revenue",
	"answer": "QC Baner leads delivered revenue.",
	"elapsed_secs": 8.4,
	"trajectory": {
		"thought_0": "I should look at the tables.",
		"tool_name_0": "list_tables",
		"tool_args_0": {},
		"observation_0": "consumers\norder_items\nproducts\nstores",
		"thought_1": "Check the columns of order_items.",
		"tool_name_1": "execute_sql",
		"tool_args_1": "{\"sql\": \"DESCRIBE order_items\"}",
		"observation_1": "column_name,column_type\norder_id,VARCHAR",
		"thought_2": "Aggregate revenue.",
		"tool_name_2": "execute_sql",
		"tool_args_2": {"sql": "SELECT store_name, SUM(item_total)\nFROM order_items JOIN stores USING (store_id)\nGROUP BY 1"},
		"observation_2": "SQL Error: Binder Error: ambiguous column",
		"thought_3": "Retry with the delivered filter.",
		"tool_name_3": "execute_sql",
		"tool_args_3": {"sql": "SELECT 1"},
		"observation_3": "1\n1",
		"thought_4": "Done.",
		"tool_name_4": "finish",
		"tool_args_4": {},
		"observation_4": "Completed."
	},
	"lm_usage": {
		"openrouter/some-model": {
			"prompt_tokens": 1000,
			"completion_tokens": 200,
			"prompt_tokens_details": {"cached_tokens": 400},
			"cost_details": {
				"upstream_inference_prompt_cost": 0.001,
				"upstream_inference_completions_cost": 0.0005
			}
		}
	}
}`

func decode(t *testing.T) trajectory.Record {
	t.Helper()

	var r trajectory.Record
	require.NoError(t, json.Unmarshal([]byte(record), &r))

	return r
}

func TestDecodeFlatLayout(t *testing.T) {
	r := decode(t)

	require.Len(t, r.Steps, 5)
	assert.Equal(t, "list_tables", r.Steps[0].ToolName)
	assert.Equal(t, "DESCRIBE order_items", r.Steps[1].SQL())
	assert.True(t, r.Steps[2].Failed())
	assert.False(t, r.Steps[3].Failed())
	assert.Equal(t, trajectory.ToolFinish, r.Steps[4].ToolName)
	assert.Equal(t, "openrouter/some-model", r.ModelName())
}

func TestStepsRoundTrip(t *testing.T) {
	r := decode(t)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back trajectory.Record
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, r.SQLs(), back.SQLs())
	assert.Len(t, back.Steps, len(r.Steps))
}

func TestUnparsableArgs(t *testing.T) {
	var steps trajectory.Steps
	require.NoError(t, json.Unmarshal([]byte(`{"thought_0":"x","tool_name_0":"execute_sql","tool_args_0":"not json"}`), &steps))

	require.Len(t, steps, 1)
	assert.Nil(t, steps[0].ToolArgs)
	assert.Equal(t, "not json", steps[0].RawArgs)
	assert.Empty(t, steps[0].SQL())
}

func TestLastAnalyticalSQL(t *testing.T) {
	r := decode(t)

	assert.Len(t, r.SQLs(), 3)
	assert.Equal(t, "SELECT 1", r.LastAnalyticalSQL())

	onlyExplore := trajectory.Record{Steps: trajectory.Steps{
		{ToolName: trajectory.ToolExecuteSQL, ToolArgs: map[string]any{"sql": "SHOW TABLES"}},
		{ToolName: trajectory.ToolExecuteSQL, ToolArgs: map[string]any{"sql": "DESCRIBE stores"}},
	}}
	assert.Equal(t, "DESCRIBE stores", onlyExplore.LastAnalyticalSQL())

	assert.Empty(t, trajectory.Record{}.LastAnalyticalSQL())
}

func TestMarkdown(t *testing.T) {
	r := decode(t)
	r.Steps[3].Observation = strings.Repeat("row\n", 40) + "row"

	now := time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)
	md := r.Markdown(now)

	assert.True(t, strings.HasPrefix(md, "# Agent Trajectory\n\n**Model**: `openrouter/some-model`  \n**Iterations**: 5  \n**Generated**: 2025-11-03 09:30:00\n"))
	assert.Contains(t, md, "### Step 3\n\n**Thought**: Aggregate revenue.")
	assert.Contains(t, md, "**sql**:\n```sql\nSELECT store_name")
	assert.Contains(t, md, "**sql**: `SELECT 1`")
	assert.Contains(t, md, "*... (11 more lines)*")
	assert.Contains(t, md, "**Tool**: `finish`\n\n---")
	assert.NotContains(t, md, "Completed.")

	assert.Contains(t, md, "| Non-cached prompt tokens | 600 |")
	assert.Contains(t, md, "| Non-cached total | 800 |")
	assert.Contains(t, md, "| Cost (non-cached) | $0.001100 |")
}

func TestSaveAndLoadDir(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(record), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cohort_retention.json"), []byte(`{"answer":"(No response)","error":"timeout"}`), 0o644))

	records, err := trajectory.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "timeout", records["cohort_retention"].Error)

	path, err := records["top_stores_by_revenue"].Save(filepath.Join(dir, "md"), "top_stores_by_revenue", time.Now())
	require.NoError(t, err)
	assert.FileExists(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.json"), []byte(`{}`), 0o644))
	_, err = trajectory.LoadDir(dir)
	require.ErrorIs(t, err, trajectory.ErrNoRecord)
}
