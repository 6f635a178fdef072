// Package trajectory reads the recorded runs of a ReAct style agent: the
// thought, tool call and observation of every step plus token usage. The
// evaluator scores these records and they can be rendered as Markdown for
// review.
package trajectory

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ardanlabs/qcommerce-evals/business/sqlcheck"
)

// ToolExecuteSQL is the tool agents use to run SQL against the dataset.
const ToolExecuteSQL = "execute_sql"

// ToolFinish ends the agent loop.
const ToolFinish = "finish"

// SQLErrorPrefix starts every observation of a failed execute_sql call.
const SQLErrorPrefix = "SQL Error:"

// ErrNoRecord is returned when a record file holds no usable run.
var ErrNoRecord = errors.New("no trajectory record")

// Step is one iteration of the agent loop.
type Step struct {
	Thought     string
	ToolName    string
	ToolArgs    map[string]any
	RawArgs     string
	Observation string
}

// SQL returns the sql argument of an execute_sql step.
func (s Step) SQL() string {
	if s.ToolName != ToolExecuteSQL {
		return ""
	}

	sql, _ := s.ToolArgs["sql"].(string)
	return sql
}

// Failed reports whether an execute_sql step returned an error.
func (s Step) Failed() bool {
	return s.ToolName == ToolExecuteSQL && strings.HasPrefix(s.Observation, SQLErrorPrefix)
}

// Steps is the ordered list of agent iterations. In JSON it uses the flat
// layout ReAct agents emit: thought_0, tool_name_0, tool_args_0,
// observation_0, thought_1 and so on.
type Steps []Step

// UnmarshalJSON decodes the flat layout. Tool arguments may be an object or
// a JSON encoded string.
func (s *Steps) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("trajectory: %w", err)
	}

	var steps Steps

	for i := 0; ; i++ {
		n := strconv.Itoa(i)

		_, hasThought := flat["thought_"+n]
		_, hasTool := flat["tool_name_"+n]
		_, hasObs := flat["observation_"+n]
		if !hasThought && !hasTool && !hasObs {
			break
		}

		step := Step{
			Thought:     text(flat["thought_"+n]),
			ToolName:    text(flat["tool_name_"+n]),
			Observation: text(flat["observation_"+n]),
		}

		step.ToolArgs, step.RawArgs = args(flat["tool_args_"+n])

		steps = append(steps, step)
	}

	*s = steps
	return nil
}

// MarshalJSON encodes the flat layout.
func (s Steps) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(s)*4)

	for i, step := range s {
		n := strconv.Itoa(i)

		flat["thought_"+n] = step.Thought
		flat["tool_name_"+n] = step.ToolName
		flat["observation_"+n] = step.Observation

		switch {
		case step.ToolArgs != nil:
			flat["tool_args_"+n] = step.ToolArgs
		case step.RawArgs != "":
			flat["tool_args_"+n] = step.RawArgs
		default:
			flat["tool_args_"+n] = map[string]any{}
		}
	}

	return json.Marshal(flat)
}

// text returns a JSON string as is and any other value in compact JSON.
func text(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}

func args(raw json.RawMessage) (map[string]any, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ""
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m, ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, string(raw)
	}

	if err := json.Unmarshal([]byte(s), &m); err == nil {
		return m, ""
	}

	return nil, s
}

// =============================================================================

// TokenDetails breaks down prompt tokens.
type TokenDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// CostDetails is the upstream provider cost split.
type CostDetails struct {
	PromptCost     *float64 `json:"upstream_inference_prompt_cost,omitempty"`
	CompletionCost *float64 `json:"upstream_inference_completions_cost,omitempty"`
}

// Usage is the token usage reported for one model.
type Usage struct {
	PromptTokens        int           `json:"prompt_tokens"`
	CompletionTokens    int           `json:"completion_tokens"`
	PromptTokensDetails *TokenDetails `json:"prompt_tokens_details,omitempty"`
	CostDetails         *CostDetails  `json:"cost_details,omitempty"`
	Cost                *float64      `json:"cost,omitempty"`
}

// CachedTokens returns the cached prompt tokens, zero when not reported.
func (u Usage) CachedTokens() int {
	if u.PromptTokensDetails == nil {
		return 0
	}

	return u.PromptTokensDetails.CachedTokens
}

// Record is one recorded agent run for an evaluation example. Error is set
// when the agent failed before producing an answer.
type Record struct {
	ExampleID   string           `json:"example_id"`
	Question    string           `json:"question,omitempty"`
	Answer      string           `json:"answer"`
	Model       string           `json:"model,omitempty"`
	Error       string           `json:"error,omitempty"`
	ElapsedSecs float64          `json:"elapsed_secs"`
	Steps       Steps            `json:"trajectory"`
	Usage       map[string]Usage `json:"lm_usage,omitempty"`
}

// SQLs returns the SQL of every execute_sql step in order.
func (r Record) SQLs() []string {
	var sqls []string
	for _, s := range r.Steps {
		if sql := s.SQL(); sql != "" {
			sqls = append(sqls, sql)
		}
	}

	return sqls
}

// LastAnalyticalSQL returns the last SQL that is not schema exploration,
// falling back to the last SQL of any kind. It returns an empty string when
// the agent ran no SQL.
func (r Record) LastAnalyticalSQL() string {
	sqls := r.SQLs()

	for _, sql := range slices.Backward(sqls) {
		if !sqlcheck.IsExploratory(sql) {
			return sql
		}
	}

	if len(sqls) == 0 {
		return ""
	}

	return sqls[len(sqls)-1]
}

// ModelName returns the model that produced the run. Without an explicit
// model it uses the first usage entry by name.
func (r Record) ModelName() string {
	if r.Model != "" {
		return r.Model
	}

	names := slices.Sorted(maps.Keys(r.Usage))
	if len(names) == 0 {
		return ""
	}

	return names[0]
}

// =============================================================================

// Load reads one record file. A record without an example id takes the file
// name without its extension.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", path, err)
	}

	if r.ExampleID == "" {
		r.ExampleID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if len(r.Steps) == 0 && r.Answer == "" && r.Error == "" {
		return Record{}, fmt.Errorf("%s: %w", path, ErrNoRecord)
	}

	return r, nil
}

// LoadDir reads every *.json record in dir keyed by example id.
func LoadDir(dir string) (map[string]Record, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}

	records := make(map[string]Record, len(paths))

	for _, path := range paths {
		r, err := Load(path)
		if err != nil {
			return nil, err
		}

		if _, exists := records[r.ExampleID]; exists {
			return nil, fmt.Errorf("%s: duplicate record for example %q", path, r.ExampleID)
		}

		records[r.ExampleID] = r
	}

	return records, nil
}
