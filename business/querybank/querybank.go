// Package querybank holds the reference queries used as ground truth when
// grading an agent's SQL. Every query is literal SQL with no parameters and
// runs against the immutable snapshot, so the same query always produces
// the same ordered result.
package querybank

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ardanlabs/qcommerce-evals/business/resultset"
	"github.com/ardanlabs/qcommerce-evals/business/sqlcheck"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// Set of errors returned by the bank.
var (
	ErrNotFound   = errors.New("query not found")
	ErrImpossible = errors.New("question cannot be answered from the dataset")
)

// Windows and thresholds the reference SQL uses as literals.
const (
	ReferenceMonthStart = "2025-11-01"
	FollowUpMonthStart  = "2025-12-01"
	FollowUpMonthEnd    = "2026-01-01"
	HighValueThreshold  = 5000
)

// Difficulty grades how hard a question is for an agent.
type Difficulty string

// Set of difficulties.
const (
	Easy       Difficulty = "easy"
	Medium     Difficulty = "medium"
	Hard       Difficulty = "hard"
	Impossible Difficulty = "impossible"
)

// Query is one entry in the bank.
type Query struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Difficulty Difficulty `json:"difficulty"`
	Tables     []string   `json:"tables"`
	SQL        string     `json:"sql,omitempty"`
}

// Impossible reports whether the question has no answer in the dataset. An
// agent is expected to decline rather than produce SQL.
func (q Query) Impossible() bool {
	return q.Difficulty == Impossible
}

// =============================================================================

var bank = []Query{
	{
		ID:         "weekly_revenue_trend",
		Question:   "For each store, show weekly delivered revenue with a 4-week moving average and week-over-week growth percentage.",
		Difficulty: Hard,
		Tables:     []string{"order_items", "stores"},
	},
	{
		ID:         "sla_by_distance_bucket",
		Question:   "How does delivery SLA performance vary by distance? Bucket delivered orders by distance and show average actual and committed delivery minutes and the SLA breach rate.",
		Difficulty: Hard,
		Tables:     []string{"order_items"},
	},
	{
		ID:         "cohort_retention",
		Question:   "Group consumers into monthly cohorts by their first delivered order and show what percentage of each cohort ordered again in each of the following three months.",
		Difficulty: Hard,
		Tables:     []string{"order_items"},
	},
	{
		ID:         "high_value_churn",
		Question:   "Which consumers spent at least 5000 on delivered orders in November 2025 but placed no orders in December 2025? Include their demographics and nearest store.",
		Difficulty: Hard,
		Tables:     []string{"order_items", "consumers", "stores"},
	},
	{
		ID:         "cancellation_time_of_day",
		Question:   "For each store, break down cancelled orders by time of day and cancellation reason, as a percentage of that store's cancellations.",
		Difficulty: Hard,
		Tables:     []string{"order_items", "stores"},
	},
	{
		ID:         "basket_cooccurrence",
		Question:   "Which pairs of product sub-categories are most often bought together in the same delivered order? Show the top 20 pairs.",
		Difficulty: Hard,
		Tables:     []string{"order_items", "products"},
	},
	{
		ID:         "top_stores_by_revenue",
		Question:   "Rank stores by total delivered revenue and show how many delivered orders each had.",
		Difficulty: Easy,
		Tables:     []string{"order_items", "stores"},
	},
	{
		ID:         "category_revenue_share",
		Question:   "What share of delivered revenue does each product category contribute?",
		Difficulty: Medium,
		Tables:     []string{"order_items", "products"},
	},
	{
		ID:         "cancellation_rate_by_store",
		Question:   "What is the order cancellation rate of each store?",
		Difficulty: Medium,
		Tables:     []string{"order_items", "stores"},
	},
	{
		ID:         "order_value_by_age_band",
		Question:   "What is the average delivered order value for each consumer age band?",
		Difficulty: Medium,
		Tables:     []string{"order_items", "consumers"},
	},
	{
		ID:         "top_brands_by_quantity",
		Question:   "Which 10 brands sold the most units in delivered orders?",
		Difficulty: Easy,
		Tables:     []string{"order_items", "products"},
	},
	{
		ID:         "satisfaction_by_store",
		Question:   "What is the average customer satisfaction rating for each store in November 2025?",
		Difficulty: Impossible,
	},
}

func init() {
	for i, q := range bank {
		if q.Impossible() {
			continue
		}

		b, err := sqlFiles.ReadFile("sql/" + q.ID + ".sql")
		if err != nil {
			panic(fmt.Sprintf("querybank: %s: %s", q.ID, err))
		}

		bank[i].SQL = strings.TrimSpace(string(b))
	}
}

// All returns every entry in bank order.
func All() []Query {
	return clone(bank)
}

// Answerable returns the entries that have reference SQL.
func Answerable() []Query {
	var qs []Query
	for _, q := range bank {
		if !q.Impossible() {
			qs = append(qs, q)
		}
	}

	return clone(qs)
}

// Lookup returns the entry with the given id.
func Lookup(id string) (Query, error) {
	for _, q := range bank {
		if q.ID == id {
			q.Tables = slices.Clone(q.Tables)
			return q, nil
		}
	}

	return Query{}, fmt.Errorf("%q: %w", id, ErrNotFound)
}

// Run looks up and executes the entry with the given id.
func Run(ctx context.Context, db sqlx.QueryerContext, id string) (resultset.Table, error) {
	q, err := Lookup(id)
	if err != nil {
		return resultset.Table{}, err
	}

	return Execute(ctx, db, q)
}

// maxAttempts bounds how often Execute runs a statement that keeps failing
// with a transient error.
const maxAttempts = 3

// Execute runs the reference SQL of q. Failures are classified by sqlcheck;
// a schema mismatch means the snapshot does not match the bank. Transient
// failures such as I/O errors are retried.
func Execute(ctx context.Context, db sqlx.QueryerContext, q Query) (resultset.Table, error) {
	if q.Impossible() {
		return resultset.Table{}, fmt.Errorf("%s: %w", q.ID, ErrImpossible)
	}

	for attempt := 1; ; attempt++ {
		start := time.Now()

		tbl, err := resultset.Query(ctx, db, q.SQL)

		observe(q.ID, start, err)

		if err == nil {
			return tbl, nil
		}

		var qe *sqlcheck.QueryError
		errors.As(sqlcheck.ClassifyError(q.SQL, err), &qe)

		if attempt == maxAttempts || !qe.Retryable() || ctx.Err() != nil {
			return resultset.Table{}, fmt.Errorf("%s: %w", q.ID, qe)
		}
	}
}

// =============================================================================

// Verification is the outcome of running one entry several times.
type Verification struct {
	ID          string `json:"id"`
	Rows        int    `json:"rows"`
	Fingerprint string `json:"fingerprint"`
	Stable      bool   `json:"stable"`
	Err         error  `json:"-"`
}

// Verify runs every answerable entry the given number of times with at most
// limit queries in flight and reports whether each produced identical
// results every time. Query failures are reported per entry; the returned
// error is only set when the context ends.
func Verify(ctx context.Context, db sqlx.QueryerContext, runs int, limit int) ([]Verification, error) {
	qs := Answerable()
	runs = max(runs, 1)

	prints := make([][]string, len(qs))
	rows := make([]int, len(qs))
	errs := make([][]error, len(qs))

	for i := range qs {
		prints[i] = make([]string, runs)
		errs[i] = make([]error, runs)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))

	for i, q := range qs {
		for r := range runs {
			g.Go(func() error {
				tbl, err := Execute(ctx, db, q)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					errs[i][r] = err
					return nil
				}

				prints[i][r] = tbl.Fingerprint()
				if r == 0 {
					rows[i] = len(tbl.Rows)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	out := make([]Verification, len(qs))
	for i, q := range qs {
		v := Verification{
			ID:          q.ID,
			Rows:        rows[i],
			Fingerprint: prints[i][0],
			Err:         errors.Join(errs[i]...),
		}

		v.Stable = v.Err == nil
		for _, p := range prints[i][1:] {
			if p != v.Fingerprint {
				v.Stable = false
			}
		}

		out[i] = v
	}

	return out, nil
}

func clone(qs []Query) []Query {
	out := slices.Clone(qs)
	for i := range out {
		out[i].Tables = slices.Clone(out[i].Tables)
	}

	return out
}
