package runstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/ardanlabs/qcommerce-evals/business/evaluate"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/postgres.sql
var postgresSchema string

// pool is the part of *pgxpool.Pool the store uses, so tests can substitute
// a mock.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps runs in the eval_runs and eval_results tables.
type Postgres struct {
	pool  pool
	close func()
}

// OpenPostgres connects a pool to the database at url.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &Postgres{pool: p, close: p.Close}, nil
}

// NewPostgres constructs a store over an existing pool.
func NewPostgres(p pool) *Postgres {
	return &Postgres{pool: p, close: func() {}}
}

// Migrate creates the tables when they don't exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

// Close releases the pool.
func (s *Postgres) Close(ctx context.Context) error {
	s.close()
	return nil
}

// Save writes the run and its results in one transaction.
func (s *Postgres) Save(ctx context.Context, run evaluate.Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := saveRun(ctx, tx, run); err != nil {
		if errRb := tx.Rollback(ctx); errRb != nil {
			return fmt.Errorf("rollback: %w: %w", errRb, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func saveRun(ctx context.Context, tx pgx.Tx, run evaluate.Run) error {
	const insertRun = `
	INSERT INTO eval_runs
		(run_id, agent, started_at, examples, matched, answer_quality, sql_validity,
		 tool_efficiency, error_recovery, total_secs)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	sum := run.Summary

	if _, err := tx.Exec(ctx, insertRun,
		run.ID, run.Agent, run.StartedAt, sum.Examples, sum.Matched, sum.AnswerQuality,
		sum.SQLValidity, sum.ToolEfficiency, sum.ErrorRecovery, sum.TotalSecs,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	const insertResult = `
	INSERT INTO eval_results
		(run_id, position, example_id, difficulty, answer_quality, answer_reasoning, sql_validity,
		 tool_efficiency, error_recovery, agent_sql, agent_csv, answer, elapsed_secs, agent_error, missing_tables)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	for i, r := range run.Results {
		if _, err := tx.Exec(ctx, insertResult,
			run.ID, i, r.ID, r.Difficulty, r.AnswerQuality, r.AnswerReasoning, r.SQLValidity,
			r.ToolEfficiency, r.ErrorRecovery, r.AgentSQL, r.AgentCSV, r.Answer, r.ElapsedSecs, r.AgentError,
			textArray(r.MissingTables),
		); err != nil {
			return fmt.Errorf("insert result %s: %w", r.ID, err)
		}
	}

	return nil
}

const selectRun = `
	SELECT
		run_id, agent, started_at, examples, matched, answer_quality, sql_validity,
		tool_efficiency, error_recovery, total_secs
	FROM
		eval_runs`

func scanRun(row pgx.Row) (evaluate.Run, error) {
	var run evaluate.Run
	sum := &run.Summary

	err := row.Scan(&run.ID, &run.Agent, &run.StartedAt, &sum.Examples, &sum.Matched, &sum.AnswerQuality,
		&sum.SQLValidity, &sum.ToolEfficiency, &sum.ErrorRecovery, &sum.TotalSecs)

	return run, err
}

// Get returns the run with its results in dataset order.
func (s *Postgres) Get(ctx context.Context, id string) (evaluate.Run, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, selectRun+` WHERE run_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return evaluate.Run{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return evaluate.Run{}, fmt.Errorf("select run: %w", err)
	}

	const selectResults = `
	SELECT
		example_id, difficulty, answer_quality, answer_reasoning, sql_validity, tool_efficiency,
		error_recovery, agent_sql, agent_csv, answer, elapsed_secs, agent_error, missing_tables
	FROM
		eval_results
	WHERE
		run_id = $1
	ORDER BY
		position`

	rows, err := s.pool.Query(ctx, selectResults, id)
	if err != nil {
		return evaluate.Run{}, fmt.Errorf("select results: %w", err)
	}
	defer rows.Close()

	run.Results = []evaluate.Result{}

	for rows.Next() {
		var r evaluate.Result
		var missing []string
		if err := rows.Scan(&r.ID, &r.Difficulty, &r.AnswerQuality, &r.AnswerReasoning, &r.SQLValidity,
			&r.ToolEfficiency, &r.ErrorRecovery, &r.AgentSQL, &r.AgentCSV, &r.Answer, &r.ElapsedSecs, &r.AgentError, &missing); err != nil {
			return evaluate.Run{}, fmt.Errorf("scan result: %w", err)
		}
		if len(missing) > 0 {
			r.MissingTables = missing
		}
		run.Results = append(run.Results, r)
	}

	if err := rows.Err(); err != nil {
		return evaluate.Run{}, fmt.Errorf("results: %w", err)
	}

	return run, nil
}

// List returns the most recent runs first, without their results.
func (s *Postgres) List(ctx context.Context, limit int) ([]evaluate.Run, error) {
	rows, err := s.pool.Query(ctx, selectRun+` ORDER BY started_at DESC LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer rows.Close()

	var runs []evaluate.Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}

	return runs, nil
}

// textArray keeps a nil slice from being written as NULL.
func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
