package runstore_test

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ardanlabs/qcommerce-evals/business/evaluate"
	"github.com/ardanlabs/qcommerce-evals/business/runstore"
	"github.com/ardanlabs/qcommerce-evals/foundation/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runCols = []string{
	"run_id", "agent", "started_at", "examples", "matched", "answer_quality",
	"sql_validity", "tool_efficiency", "error_recovery", "total_secs",
}

var resultCols = []string{
	"example_id", "difficulty", "answer_quality", "answer_reasoning", "sql_validity", "tool_efficiency",
	"error_recovery", "agent_sql", "agent_csv", "answer", "elapsed_secs", "agent_error", "missing_tables",
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}

func sampleRun() evaluate.Run {
	results := []evaluate.Result{
		{
			ID:              "cohort_retention",
			Difficulty:      "hard",
			AnswerQuality:   1,
			AnswerReasoning: "Results match",
			SQLValidity:     1,
			ToolEfficiency:  1,
			ErrorRecovery:   1,
			AgentSQL:        "SELECT 1",
			AgentCSV:        "a\n1",
			Answer:          "done",
			ElapsedSecs:     3.2,
			MissingTables:   []string{"stores"},
		},
		{
			ID:              "satisfaction_by_store",
			Difficulty:      "impossible",
			AnswerReasoning: "Agent error: timeout",
			Answer:          "timeout",
			AgentError:      true,
		},
	}

	return evaluate.Run{
		ID:        uuid.NewString(),
		Agent:     "react",
		StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Results:   results,
		Summary:   evaluate.Summarize(results),
	}
}

func TestOpenDisabled(t *testing.T) {
	_, err := runstore.Open(t.Context(), config.StoreConfig{})
	require.ErrorIs(t, err, runstore.ErrDisabled)

	_, err = runstore.Open(t.Context(), config.StoreConfig{Driver: "sqlite"})
	require.Error(t, err)
}

func TestPostgresMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS eval_runs").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, runstore.NewPostgres(mock).Migrate(t.Context()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSave(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := sampleRun()
	sum := run.Summary

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO eval_runs").
		WithArgs(run.ID, run.Agent, run.StartedAt, sum.Examples, sum.Matched, sum.AnswerQuality,
			sum.SQLValidity, sum.ToolEfficiency, sum.ErrorRecovery, sum.TotalSecs).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	for i, r := range run.Results {
		mock.ExpectExec("INSERT INTO eval_results").
			WithArgs(run.ID, i, r.ID, r.Difficulty, r.AnswerQuality, r.AnswerReasoning, r.SQLValidity,
				r.ToolEfficiency, r.ErrorRecovery, r.AgentSQL, r.AgentCSV, r.Answer, r.ElapsedSecs, r.AgentError,
				orEmpty(r.MissingTables)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, runstore.NewPostgres(mock).Save(t.Context(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := sampleRun()
	failure := errors.New("duplicate key")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO eval_runs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO eval_results").
		WillReturnError(failure)
	mock.ExpectRollback()

	err = runstore.NewPostgres(mock).Save(t.Context(), run)
	require.ErrorIs(t, err, failure)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := sampleRun()
	sum := want.Summary

	mock.ExpectQuery("eval_runs WHERE run_id").
		WithArgs(want.ID).
		WillReturnRows(mock.NewRows(runCols).AddRow(
			want.ID, want.Agent, want.StartedAt, sum.Examples, sum.Matched, sum.AnswerQuality,
			sum.SQLValidity, sum.ToolEfficiency, sum.ErrorRecovery, sum.TotalSecs))

	rows := mock.NewRows(resultCols)
	for _, r := range want.Results {
		rows.AddRow(r.ID, r.Difficulty, r.AnswerQuality, r.AnswerReasoning, r.SQLValidity, r.ToolEfficiency,
			r.ErrorRecovery, r.AgentSQL, r.AgentCSV, r.Answer, r.ElapsedSecs, r.AgentError, orEmpty(r.MissingTables))
	}
	mock.ExpectQuery("eval_results").
		WithArgs(want.ID).
		WillReturnRows(rows)

	got, err := runstore.NewPostgres(mock).Get(t.Context(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("eval_runs WHERE run_id").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err = runstore.NewPostgres(mock).Get(t.Context(), "nope")
	require.ErrorIs(t, err, runstore.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	newer := sampleRun()
	newer.StartedAt = newer.StartedAt.Add(time.Hour)
	older := sampleRun()

	rows := mock.NewRows(runCols)
	for _, r := range []evaluate.Run{newer, older} {
		s := r.Summary
		rows.AddRow(r.ID, r.Agent, r.StartedAt, s.Examples, s.Matched, s.AnswerQuality,
			s.SQLValidity, s.ToolEfficiency, s.ErrorRecovery, s.TotalSecs)
	}

	mock.ExpectQuery("ORDER BY started_at DESC LIMIT").
		WithArgs(5).
		WillReturnRows(rows)

	got, err := runstore.NewPostgres(mock).List(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.Summary, got[1].Summary)
	assert.Nil(t, got[0].Results)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListDefaultLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for _, limit := range []int{0, -1} {
		mock.ExpectQuery("ORDER BY started_at DESC LIMIT").
			WithArgs(runstore.DefaultListLimit).
			WillReturnRows(mock.NewRows(runCols))

		got, err := runstore.NewPostgres(mock).List(t.Context(), limit)
		require.NoError(t, err)
		assert.Empty(t, got)
	}

	require.NoError(t, mock.ExpectationsWereMet())
}

// The round trips below need a live server and are skipped unless one is
// configured.

func roundTrip(t *testing.T, cfg config.StoreConfig) {
	store, err := runstore.Open(t.Context(), cfg)
	require.NoError(t, err)
	defer store.Close(t.Context())

	run := sampleRun()
	require.NoError(t, store.Save(t.Context(), run))

	got, err := store.Get(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Summary, got.Summary)
	assert.Len(t, got.Results, len(run.Results))
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, run.Results[0].MissingTables, got.Results[0].MissingTables)
	assert.Nil(t, got.Results[1].MissingTables)

	for range runstore.DefaultListLimit {
		next := sampleRun()
		require.NoError(t, store.Save(t.Context(), next))
	}

	list, err := store.List(t.Context(), 100)
	require.NoError(t, err)
	assert.Greater(t, len(list), runstore.DefaultListLimit)

	list, err = store.List(t.Context(), 0)
	require.NoError(t, err)
	assert.Len(t, list, runstore.DefaultListLimit)

	_, err = store.Get(t.Context(), uuid.NewString())
	require.ErrorIs(t, err, runstore.ErrNotFound)
}

func TestPostgresRoundTrip(t *testing.T) {
	url := os.Getenv("QC_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("QC_TEST_POSTGRES_URL not set")
	}

	roundTrip(t, config.StoreConfig{Driver: "postgres", PostgresURL: url})
}

func TestMongoRoundTrip(t *testing.T) {
	url := os.Getenv("QC_TEST_MONGO_URL")
	if url == "" {
		t.Skip("QC_TEST_MONGO_URL not set")
	}

	roundTrip(t, config.StoreConfig{
		Driver:        "mongo",
		MongoURL:      url,
		MongoUser:     os.Getenv("QC_TEST_MONGO_USER"),
		MongoPassword: os.Getenv("QC_TEST_MONGO_PASSWORD"),
		MongoDatabase: "qcbench_test",
	})
}
