package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/qcommerce-evals/business/querybank"
	"github.com/ardanlabs/qcommerce-evals/business/runstore"
	"github.com/ardanlabs/qcommerce-evals/business/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRoot(&app{})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()

	out, err := execute(t, args...)
	require.NoError(t, err, out)

	return out
}

func TestWorkflow(t *testing.T) {
	dir := t.TempDir()
	trajDir := filepath.Join(dir, "trajectories")

	t.Setenv("QC_DB_PATH", filepath.Join(dir, "qc.duckdb"))
	t.Setenv("QC_EVAL_DIR", filepath.Join(dir, "evals"))
	t.Setenv("QC_TRAJECTORY_DIR", trajDir)
	t.Setenv("QC_LOG_LEVEL", "error")
	t.Setenv("QC_STORE", "")

	mustExecute(t, "dataset", "seed")

	out := mustExecute(t, "dataset", "check")
	assert.Contains(t, out, "invariants hold")

	out = mustExecute(t, "queries", "list")
	for _, q := range querybank.All() {
		assert.Contains(t, out, q.ID)
	}

	out = mustExecute(t, "queries", "run", "top_brands_by_quantity", "--rows", "3")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 5)
	assert.True(t, strings.HasSuffix(lines[4], "total rows)"))

	out = mustExecute(t, "queries", "show", "satisfaction_by_store")
	assert.Contains(t, out, "No reference SQL")

	_, err := execute(t, "queries", "show", "nope")
	require.ErrorIs(t, err, querybank.ErrNotFound)

	out = mustExecute(t, "eval", "save")
	assert.Contains(t, out, "Saved 12 examples")

	require.NoError(t, os.MkdirAll(trajDir, 0o755))
	for _, q := range querybank.Answerable() {
		rec := trajectory.Record{
			ExampleID: q.ID,
			Question:  q.Question,
			Answer:    "done",
			Steps: trajectory.Steps{
				{Thought: "query", ToolName: trajectory.ToolExecuteSQL, ToolArgs: map[string]any{"sql": q.SQL}, Observation: "ok"},
				{Thought: "finish", ToolName: trajectory.ToolFinish, Observation: "Completed."},
			},
		}

		data, err := json.Marshal(rec)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(trajDir, q.ID+".json"), data, 0o644))
	}

	page := filepath.Join(dir, "compare.html")

	out = mustExecute(t, "eval", "run", "--agent", "reference", "--html", page)
	assert.Contains(t, out, "Running eval on 12 examples with reference")
	assert.FileExists(t, page)

	runs, err := filepath.Glob(filepath.Join(dir, "evals", "runs", "*.json"))
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = execute(t, "eval", "runs")
	require.ErrorIs(t, err, runstore.ErrDisabled)

	out = mustExecute(t, "trajectory", "render", filepath.Join(trajDir, "cohort_retention.json"))
	assert.Contains(t, out, "# Agent Trajectory")

	out = mustExecute(t, "config")
	assert.Contains(t, out, `"dataset"`)

	out = mustExecute(t, "version")
	assert.Contains(t, out, "qcbench develop")
}
