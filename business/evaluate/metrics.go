package evaluate

import (
	"context"
	"fmt"

	"github.com/ardanlabs/qcommerce-evals/business/resultset"
	"github.com/ardanlabs/qcommerce-evals/business/sqlcheck"
	"github.com/ardanlabs/qcommerce-evals/business/trajectory"
	"github.com/jmoiron/sqlx"
)

// noResponse is the answer an agent reports when it gave up.
const noResponse = "(No response)"

// SQLValidity is the fraction of execute_sql calls that did not return an
// error. A run without SQL scores 1.
func SQLValidity(r trajectory.Record) float64 {
	var total, failed int

	for _, s := range r.Steps {
		if s.ToolName != trajectory.ToolExecuteSQL {
			continue
		}

		total++
		if s.Failed() {
			failed++
		}
	}

	if total == 0 {
		return 1
	}

	return float64(total-failed) / float64(total)
}

// ToolEfficiency rewards short runs: up to 4 steps scores 1, up to 7 scores
// 0.5 and anything longer 0.25.
func ToolEfficiency(r trajectory.Record) float64 {
	switch n := len(r.Steps); {
	case n <= 4:
		return 1
	case n <= 7:
		return 0.5
	default:
		return 0.25
	}
}

// ErrorRecovery scores 1 when no SQL failed, 0.75 when SQL failed but the
// agent still produced an answer, and 0 otherwise.
func ErrorRecovery(r trajectory.Record) float64 {
	for _, s := range r.Steps {
		if s.Failed() {
			if r.Answer != "" && r.Answer != noResponse {
				return 0.75
			}
			return 0
		}
	}

	return 1
}

// =============================================================================

// Quality is the answer quality of a run.
type Quality struct {
	Score      float64               `json:"score"`
	Reasoning  string                `json:"reasoning"`
	AgentCSV   string                `json:"agent_csv,omitempty"`
	Comparison *resultset.Comparison `json:"comparison,omitempty"`
}

// AnswerQuality runs the agent's SQL read-only and compares its result with
// the expected answer. An impossible question has no answer to match, so
// any SQL offered for one scores 0.
func AnswerQuality(ctx context.Context, db sqlx.QueryerContext, agentSQL string, ex Example, opts resultset.Options) Quality {
	switch {
	case agentSQL == "":
		return Quality{Reasoning: "No analytical SQL found"}
	case ex.Impossible:
		return Quality{Reasoning: "Impossible question, agent attempted SQL instead of refusing"}
	}

	sql := sqlcheck.StripFences(agentSQL)

	if err := sqlcheck.ReadOnly(sql); err != nil {
		return Quality{Reasoning: fmt.Sprintf("SQL execution error: %s", err)}
	}

	actual, err := resultset.Query(ctx, db, sql)
	if err != nil {
		return Quality{Reasoning: fmt.Sprintf("SQL execution error: %s", err)}
	}

	q := Quality{AgentCSV: actual.CSV()}

	expected, err := resultset.ParseCSV(ex.ExpectedAnswer)
	if err != nil {
		q.Reasoning = fmt.Sprintf("Expected answer unreadable: %s", err)
		return q
	}

	cmp := resultset.Compare(expected, actual, opts)

	q.Score = cmp.Score
	q.Reasoning = cmp.Reasoning()
	q.Comparison = &cmp

	return q
}
