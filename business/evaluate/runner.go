package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/ardanlabs/qcommerce-evals/business/resultset"
	"github.com/ardanlabs/qcommerce-evals/business/sqlcheck"
	"github.com/ardanlabs/qcommerce-evals/business/trajectory"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

// Result is the score of one example.
type Result struct {
	ID              string  `json:"id" bson:"id"`
	Difficulty      string  `json:"difficulty" bson:"difficulty"`
	AnswerQuality   float64 `json:"answer_quality_score" bson:"answer_quality_score"`
	AnswerReasoning string  `json:"answer_quality_reasoning" bson:"answer_quality_reasoning"`
	SQLValidity     float64 `json:"sql_validity" bson:"sql_validity"`
	ToolEfficiency  float64 `json:"tool_efficiency" bson:"tool_efficiency"`
	ErrorRecovery   float64 `json:"error_recovery" bson:"error_recovery"`
	AgentSQL        string  `json:"agent_sql,omitempty" bson:"agent_sql,omitempty"`
	AgentCSV        string  `json:"agent_csv,omitempty" bson:"agent_csv,omitempty"`
	Answer          string  `json:"answer" bson:"answer"`
	ElapsedSecs     float64 `json:"elapsed_secs" bson:"elapsed_secs"`
	AgentError      bool    `json:"agent_error" bson:"agent_error"`

	// MissingTables lists expected tables the agent's SQL never read. It is
	// empty when the SQL could not be parsed.
	MissingTables []string `json:"missing_tables,omitempty" bson:"missing_tables,omitempty"`
}

// Summary averages the scores of a run.
type Summary struct {
	Examples       int     `json:"examples" bson:"examples"`
	Matched        int     `json:"matched" bson:"matched"`
	AnswerQuality  float64 `json:"answer_quality_score" bson:"answer_quality_score"`
	SQLValidity    float64 `json:"sql_validity" bson:"sql_validity"`
	ToolEfficiency float64 `json:"tool_efficiency" bson:"tool_efficiency"`
	ErrorRecovery  float64 `json:"error_recovery" bson:"error_recovery"`
	TotalSecs      float64 `json:"total_secs" bson:"total_secs"`
}

// Run is a complete evaluation of one agent over a dataset.
type Run struct {
	ID        string    `json:"run_id" bson:"run_id"`
	Agent     string    `json:"agent" bson:"agent"`
	StartedAt time.Time `json:"started_at" bson:"started_at"`
	Results   []Result  `json:"results" bson:"results"`
	Summary   Summary   `json:"summary" bson:"summary"`
}

// Summarize computes the averages over results.
func Summarize(results []Result) Summary {
	s := Summary{Examples: len(results)}
	if len(results) == 0 {
		return s
	}

	for _, r := range results {
		s.AnswerQuality += r.AnswerQuality
		s.SQLValidity += r.SQLValidity
		s.ToolEfficiency += r.ToolEfficiency
		s.ErrorRecovery += r.ErrorRecovery
		s.TotalSecs += r.ElapsedSecs

		if r.AnswerQuality >= 1 {
			s.Matched++
		}
	}

	n := float64(len(results))
	s.AnswerQuality /= n
	s.SQLValidity /= n
	s.ToolEfficiency /= n
	s.ErrorRecovery /= n

	return s
}

// =============================================================================

// Evaluate scores one recorded run. A nil record means the agent never
// produced a run for the example.
func Evaluate(ctx context.Context, db sqlx.QueryerContext, ex Example, rec *trajectory.Record, opts resultset.Options) Result {
	res := Result{
		ID:         ex.ID,
		Difficulty: ex.Difficulty,
	}

	switch {
	case rec == nil:
		return agentError(res, "no trajectory recorded")
	case rec.Error != "":
		res.ElapsedSecs = round1(rec.ElapsedSecs)
		return agentError(res, rec.Error)
	}

	res.Answer = clip(rec.Answer, 200)
	res.ElapsedSecs = round1(rec.ElapsedSecs)
	res.AgentSQL = rec.LastAnalyticalSQL()

	if ex.Impossible && res.AgentSQL == "" {
		res.AnswerQuality = 1
		res.AnswerReasoning = "Impossible question, agent correctly refused"
		res.SQLValidity = 1
		res.ToolEfficiency = 1
		res.ErrorRecovery = 1
		return res
	}

	q := AnswerQuality(ctx, db, res.AgentSQL, ex, opts)

	res.AnswerQuality = q.Score
	res.AnswerReasoning = q.Reasoning
	res.AgentCSV = q.AgentCSV
	res.MissingTables = missingTables(res.AgentSQL, ex.ExpectedTables)
	res.SQLValidity = SQLValidity(*rec)
	res.ToolEfficiency = ToolEfficiency(*rec)
	res.ErrorRecovery = ErrorRecovery(*rec)

	return res
}

func missingTables(sql string, expected []string) []string {
	if sql == "" || len(expected) == 0 {
		return nil
	}

	tables, err := sqlcheck.Tables(sqlcheck.StripFences(sql))
	if err != nil {
		return nil
	}

	var missing []string
	for _, t := range expected {
		if !slices.Contains(tables, strings.ToLower(t)) {
			missing = append(missing, t)
		}
	}

	return missing
}

func agentError(res Result, msg string) Result {
	res.AgentError = true
	res.AnswerReasoning = "Agent error: " + msg
	res.Answer = clip(msg, 200)
	return res
}

// =============================================================================

// Runner evaluates a dataset against recorded runs.
type Runner struct {
	log         *slog.Logger
	db          sqlx.QueryerContext
	opts        resultset.Options
	concurrency int
	now         func() time.Time
}

// NewRunner constructs a runner that evaluates up to concurrency examples at
// a time.
func NewRunner(log *slog.Logger, db sqlx.QueryerContext, opts resultset.Options, concurrency int) *Runner {
	return &Runner{
		log:         log,
		db:          db,
		opts:        opts,
		concurrency: max(concurrency, 1),
		now:         time.Now,
	}
}

// Run evaluates every example against the record with the same id. Results
// keep the dataset order regardless of completion order.
func (r *Runner) Run(ctx context.Context, agent string, examples []Example, records map[string]trajectory.Record) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Agent:     agent,
		StartedAt: r.now().UTC(),
		Results:   make([]Result, len(examples)),
	}

	r.log.Info("eval started", "run_id", run.ID, "agent", agent, "examples", len(examples), "concurrency", r.concurrency)

	sem := make(chan bool, r.concurrency)

	var g errgroup.Group

	for i, ex := range examples {
		g.Go(func() error {
			sem <- true
			defer func() {
				<-sem
			}()

			if err := ctx.Err(); err != nil {
				return fmt.Errorf("example %s: %w", ex.ID, err)
			}

			var rec *trajectory.Record
			if tr, ok := records[ex.ID]; ok {
				rec = &tr
			}

			res := Evaluate(ctx, r.db, ex, rec, r.opts)
			run.Results[i] = res

			record(res)

			r.log.Info("example scored",
				"id", res.ID,
				"difficulty", res.Difficulty,
				"answer_quality", res.AnswerQuality,
				"sql_validity", res.SQLValidity,
				"tool_efficiency", res.ToolEfficiency,
				"error_recovery", res.ErrorRecovery,
			)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Run{}, fmt.Errorf("run: %w", err)
	}

	run.Summary = Summarize(run.Results)
	runsTotal.Inc()

	r.log.Info("eval finished", "run_id", run.ID, "answer_quality", run.Summary.AnswerQuality, "matched", run.Summary.Matched)

	return run, nil
}

// =============================================================================

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n])
}
