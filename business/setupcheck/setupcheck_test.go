package setupcheck_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/qcommerce-evals/business/dataset"
	"github.com/ardanlabs/qcommerce-evals/business/dataset/dstest"
	"github.com/ardanlabs/qcommerce-evals/business/setupcheck"
	"github.com/ardanlabs/qcommerce-evals/foundation/logger"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func writeDotenv(t *testing.T, dir string, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(body), 0o600))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	writeDotenv(t, dir, `# keys
export OPENAI_API_KEY="sk-file"
ANTHROPIC_API_KEY='ant-file'
GEMINI_API_KEY=
LANGFUSE_HOST=https://cloud.langfuse.com
`)

	env, err := setupcheck.LoadEnv(dir, []string{"OPENAI_API_KEY=sk-process", "PATH=/bin"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ".env"), env.DotenvPath)
	assert.Equal(t, "sk-process", env.Get("OPENAI_API_KEY"))
	assert.Equal(t, "via environment", env.Source("OPENAI_API_KEY"))
	assert.Equal(t, "ant-file", env.Get("ANTHROPIC_API_KEY"))
	assert.Equal(t, "via .env", env.Source("ANTHROPIC_API_KEY"))
	assert.Empty(t, env.Get("GEMINI_API_KEY"))

	env, err = setupcheck.LoadEnv(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, env.DotenvPath)
}

func TestKeyChecks(t *testing.T) {
	env, err := setupcheck.LoadEnv(t.TempDir(), nil)
	require.NoError(t, err)

	r := setupcheck.LLMKeys(env)
	assert.True(t, r.Failed())
	assert.Equal(t, "No LLM API key found", r.Message)

	r = setupcheck.LangfuseKeys(env)
	assert.True(t, r.Warned())
	assert.Equal(t, "No Langfuse keys found", r.Message)

	env, err = setupcheck.LoadEnv(t.TempDir(), []string{
		"GEMINI_API_KEY=g",
		"OPENROUTER_API_KEY=or",
		"LANGFUSE_PUBLIC_KEY=pk",
	})
	require.NoError(t, err)

	r = setupcheck.LLMKeys(env)
	assert.True(t, r.Passed)
	assert.Equal(t, "Found: OPENROUTER_API_KEY (via environment)", r.Message)
	assert.Equal(t, []string{"Also found: GEMINI_API_KEY"}, r.Extra)

	r = setupcheck.LangfuseKeys(env)
	assert.True(t, r.Warned())
	assert.Equal(t, "Missing: LANGFUSE_SECRET_KEY, LANGFUSE_HOST", r.Message)
}

func fakeRunner(missing ...string) setupcheck.Runner {
	return func(ctx context.Context, name string, args ...string) (string, error) {
		for _, m := range missing {
			if m == name {
				return "Command not found: " + name, errors.New("not found")
			}
		}
		return name + " version 1.0", nil
	}
}

func TestTool(t *testing.T) {
	r := setupcheck.Tool(t.Context(), fakeRunner(), "Git", "install", "git", "--version")
	assert.True(t, r.Passed)
	assert.Equal(t, "git version 1.0", r.Message)

	r = setupcheck.Tool(t.Context(), fakeRunner("duckdb"), "DuckDB", "install", "duckdb", "--version")
	assert.True(t, r.Failed())
	assert.Equal(t, "Command not found: duckdb", r.Message)
}

func TestDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qc.duckdb")

	r := setupcheck.Dataset(t.Context(), path)
	assert.True(t, r.Failed())
	assert.Contains(t, r.Message, "not found")

	db, _, err := dataset.Seed(t.Context(), logger.Discard(), path, dstest.Seed)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	r = setupcheck.Dataset(t.Context(), path)
	assert.True(t, r.Passed, r.Message)
	assert.Contains(t, r.Message, "4 tables")
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeDotenv(t, dir, "OPENROUTER_API_KEY=or\n")

	var out bytes.Buffer
	results, failed, err := setupcheck.Run(t.Context(), &out, setupcheck.Options{
		Root:        dir,
		DatasetPath: filepath.Join(dir, "missing.duckdb"),
		Run:         fakeRunner("duckdb"),
	})
	require.NoError(t, err)
	require.Len(t, results, 6)
	assert.True(t, failed)

	text := out.String()
	assert.Contains(t, text, "Found .env file: ")
	assert.Contains(t, text, "✔ PASS  git version 1.0")
	assert.Contains(t, text, "✘ FAIL  Command not found: duckdb")
	assert.Contains(t, text, "⚠ WARN  No Langfuse keys found")
	assert.Contains(t, text, "Summary: 3 of 6 checks passed (1 warning, 2 failures)")
	assert.Contains(t, text, "Must fix before workshop:")
	assert.NotContains(t, text, "\x1b[")

	var clean bytes.Buffer
	_, failed, err = setupcheck.Run(t.Context(), &clean, setupcheck.Options{
		Root:        t.TempDir(),
		DatasetPath: filepath.Join(dir, "missing.duckdb"),
		Environ:     []string{"OPENAI_API_KEY=x"},
		Run:         fakeRunner(),
	})
	require.NoError(t, err)
	assert.True(t, failed)
	assert.True(t, strings.Contains(clean.String(), "No .env file found"))
}
