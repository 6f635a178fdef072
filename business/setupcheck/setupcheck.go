// Package setupcheck validates that a workstation has everything needed to
// run the workshop: tools on the PATH, the dataset, and API keys.
package setupcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardanlabs/qcommerce-evals/business/dataset"
	"github.com/ardanlabs/qcommerce-evals/foundation/sqldb"
	"github.com/joho/godotenv"
)

// Result is the outcome of one check. A failed check that is not critical
// is reported as a warning.
type Result struct {
	Name     string
	Passed   bool
	Message  string
	Hint     string
	Critical bool
	Extra    []string
}

// Failed reports whether the check failed and blocks the workshop.
func (r Result) Failed() bool {
	return !r.Passed && r.Critical
}

// Warned reports whether the check failed without blocking the workshop.
func (r Result) Warned() bool {
	return !r.Passed && !r.Critical
}

// =============================================================================

// Env is the process environment merged with a .env file. Process values
// win over file values.
type Env struct {
	DotenvPath string
	vars       map[string]string
	fromFile   map[string]bool
}

// LoadEnv reads root/.env when present and merges it under environ, which
// holds KEY=VALUE entries as returned by os.Environ.
func LoadEnv(root string, environ []string) (Env, error) {
	env := Env{
		vars:     make(map[string]string),
		fromFile: make(map[string]bool),
	}

	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env.vars[k] = v
		}
	}

	path := filepath.Join(root, ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return env, nil
		}
		return Env{}, fmt.Errorf("stat .env: %w", err)
	}

	file, err := godotenv.Read(path)
	if err != nil {
		return Env{}, fmt.Errorf("read .env: %w", err)
	}

	env.DotenvPath = path

	for k, v := range file {
		if _, exists := env.vars[k]; exists || v == "" {
			continue
		}
		env.vars[k] = v
		env.fromFile[k] = true
	}

	return env, nil
}

// Get returns the trimmed value of key.
func (e Env) Get(key string) string {
	return strings.TrimSpace(e.vars[key])
}

// Source describes where key was found.
func (e Env) Source(key string) string {
	if e.fromFile[key] {
		return "via .env"
	}
	return "via environment"
}

// =============================================================================

// Runner runs a command and returns the first line of its output.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// ExecRunner runs commands from the PATH with a ten second timeout.
func ExecRunner(ctx context.Context, name string, args ...string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Sprintf("Command not found: %s", name), err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	text := strings.TrimSpace(string(out))

	if ctx.Err() != nil {
		return fmt.Sprintf("Command timed out: %s %s", name, strings.Join(args, " ")), ctx.Err()
	}

	if first, _, ok := strings.Cut(text, "\n"); ok {
		text = first
	}

	return text, err
}

// Tool checks that a command runs.
func Tool(ctx context.Context, run Runner, name string, hint string, command string, args ...string) Result {
	out, err := run(ctx, command, args...)
	if err != nil {
		if out == "" {
			out = err.Error()
		}
		return Result{Name: name, Message: out, Hint: hint, Critical: true}
	}

	return Result{Name: name, Passed: true, Message: out, Critical: true}
}

// Dataset checks that the snapshot exists and holds every table.
func Dataset(ctx context.Context, path string) Result {
	const name = "Dataset"
	const hint = "Run 'qcbench dataset download' or 'qcbench dataset seed'"

	fail := func(msg string) Result {
		return Result{Name: name, Message: msg, Hint: hint, Critical: true}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(fmt.Sprintf("%s not found", path))
	}

	db, err := dataset.Open(path)
	if err != nil {
		return fail(fmt.Sprintf("%s is not readable: %s", path, err))
	}
	defer db.Close()

	if err := sqldb.StatusCheck(ctx, db); err != nil {
		return fail(fmt.Sprintf("%s does not answer queries: %s", path, err))
	}

	tables, err := dataset.ListTables(ctx, db)
	if err != nil {
		return fail(fmt.Sprintf("%s: %s", path, err))
	}

	have := make(map[string]bool, len(tables))
	for _, t := range tables {
		have[t] = true
	}

	var missing []string
	for _, t := range dataset.Tables {
		if !have[t] {
			missing = append(missing, t)
		}
	}

	if len(missing) > 0 {
		return fail(fmt.Sprintf("%s is missing tables: %s", path, strings.Join(missing, ", ")))
	}

	return Result{
		Name:     name,
		Passed:   true,
		Message:  fmt.Sprintf("%s (%.1f MB, %d tables)", path, float64(info.Size())/(1<<20), len(tables)),
		Critical: true,
	}
}

// LLMKeyNames lists the accepted model provider keys, preferred first.
var LLMKeyNames = []struct {
	Key   string
	Label string
}{
	{"OPENROUTER_API_KEY", "OpenRouter (preferred)"},
	{"OPENAI_API_KEY", "OpenAI"},
	{"ANTHROPIC_API_KEY", "Anthropic"},
	{"GEMINI_API_KEY", "Gemini"},
}

// LLMKeys checks that at least one model provider key is set.
func LLMKeys(env Env) Result {
	const name = "LLM API key"

	var found []string
	for _, k := range LLMKeyNames {
		if env.Get(k.Key) != "" {
			found = append(found, k.Key)
		}
	}

	if len(found) == 0 {
		return Result{
			Name:     name,
			Message:  "No LLM API key found",
			Hint:     "Set one of: OPENROUTER_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY\nSet the key in a .env file in the project root, or export it in your shell.",
			Critical: true,
		}
	}

	res := Result{
		Name:     name,
		Passed:   true,
		Message:  fmt.Sprintf("Found: %s (%s)", found[0], env.Source(found[0])),
		Critical: true,
	}

	for _, k := range found[1:] {
		res.Extra = append(res.Extra, "Also found: "+k)
	}

	return res
}

// LangfuseKeyNames lists the tracing keys.
var LangfuseKeyNames = []string{"LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY", "LANGFUSE_HOST"}

// LangfuseKeys checks the tracing keys. Missing keys only warn.
func LangfuseKeys(env Env) Result {
	const name = "Langfuse keys"

	var present, missing []string
	for _, k := range LangfuseKeyNames {
		if env.Get(k) != "" {
			present = append(present, fmt.Sprintf("%s (%s)", k, env.Source(k)))
			continue
		}
		missing = append(missing, k)
	}

	if len(missing) == 0 {
		return Result{Name: name, Passed: true, Message: "All set: " + strings.Join(present, ", ")}
	}

	msg := "No Langfuse keys found"
	if len(present) > 0 {
		msg = "Missing: " + strings.Join(missing, ", ")
	}

	return Result{
		Name:    name,
		Message: msg,
		Hint:    "Set up Langfuse: https://langfuse.com/docs/observability/get-started",
	}
}

// =============================================================================

// Options configures a full validation.
type Options struct {
	Root        string
	DatasetPath string
	Environ     []string
	Run         Runner
}

// Check is one named validation step.
type Check struct {
	Label string
	Run   func(ctx context.Context) Result
}

// Checks returns the validation steps in the order they are reported.
func Checks(env Env, opts Options) []Check {
	run := opts.Run
	if run == nil {
		run = ExecRunner
	}

	return []Check{
		{"Git", func(ctx context.Context) Result {
			return Tool(ctx, run, "Git", "Install Git: https://git-scm.com/install/", "git", "--version")
		}},
		{"Go", func(ctx context.Context) Result {
			return Tool(ctx, run, "Go", "Install Go: https://go.dev/doc/install", "go", "version")
		}},
		{"DuckDB", func(ctx context.Context) Result {
			return Tool(ctx, run, "DuckDB", "Install DuckDB CLI: https://duckdb.org/install/?environment=cli", "duckdb", "--version")
		}},
		{"Dataset", func(ctx context.Context) Result {
			return Dataset(ctx, opts.DatasetPath)
		}},
		{"LLM API key", func(ctx context.Context) Result {
			return LLMKeys(env)
		}},
		{"Langfuse keys", func(ctx context.Context) Result {
			return LangfuseKeys(env)
		}},
	}
}
