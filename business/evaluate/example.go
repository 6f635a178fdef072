// Package evaluate scores recorded agent runs against the reference query
// bank. Each example carries the question, the reference SQL and its
// expected CSV; each run is graded with automatic trajectory metrics and an
// answer quality score from comparing result tables.
package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ardanlabs/qcommerce-evals/business/querybank"
	"github.com/jmoiron/sqlx"
)

// Directory layout under an evaluation directory.
const (
	DatasetFile = "dataset.json"
	AnswerCSVs  = "eval_answer_csvs"
	AnswerSQLs  = "eval_answer_sqls"
)

// Example is one evaluation case.
type Example struct {
	ID             string   `json:"id"`
	Question       string   `json:"question"`
	ExpectedTables []string `json:"expected_tables"`
	ExpectedAnswer string   `json:"expected_answer"`
	ReferenceSQL   string   `json:"reference_sql"`
	Difficulty     string   `json:"difficulty"`
	Impossible     bool     `json:"impossible"`
}

// SaveExample runs the reference SQL of q and writes the SQL and the CSV
// answer under dir. Impossible questions write nothing.
func SaveExample(ctx context.Context, db sqlx.QueryerContext, dir string, q querybank.Query) (Example, error) {
	ex, err := NewExample(ctx, db, q)
	if err != nil {
		return Example{}, err
	}

	if ex.Impossible {
		return ex, nil
	}

	if err := writeFile(filepath.Join(dir, AnswerSQLs, q.ID+".sql"), q.SQL); err != nil {
		return Example{}, err
	}

	if err := writeFile(filepath.Join(dir, AnswerCSVs, q.ID+".csv"), ex.ExpectedAnswer); err != nil {
		return Example{}, err
	}

	return ex, nil
}

// NewExample builds the example for q, running its reference SQL for the
// expected answer.
func NewExample(ctx context.Context, db sqlx.QueryerContext, q querybank.Query) (Example, error) {
	ex := Example{
		ID:             q.ID,
		Question:       q.Question,
		ExpectedTables: q.Tables,
		ReferenceSQL:   q.SQL,
		Difficulty:     string(q.Difficulty),
		Impossible:     q.Impossible(),
	}

	if ex.ExpectedTables == nil {
		ex.ExpectedTables = []string{}
	}

	if q.Impossible() {
		return ex, nil
	}

	tbl, err := querybank.Execute(ctx, db, q)
	if err != nil {
		return Example{}, fmt.Errorf("execute: %w", err)
	}

	ex.ExpectedAnswer = tbl.CSV()

	return ex, nil
}

// SaveBank saves every bank entry and writes the dataset file.
func SaveBank(ctx context.Context, log *slog.Logger, db sqlx.QueryerContext, dir string) ([]Example, error) {
	var examples []Example

	for _, q := range querybank.All() {
		ex, err := SaveExample(ctx, db, dir, q)
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", q.ID, err)
		}

		log.Info("saved example", "id", ex.ID, "difficulty", ex.Difficulty, "impossible", ex.Impossible)
		examples = append(examples, ex)
	}

	if err := WriteDataset(dir, examples); err != nil {
		return nil, err
	}

	return examples, nil
}

// WriteDataset writes the examples to dir/dataset.json.
func WriteDataset(dir string, examples []Example) error {
	data, err := json.MarshalIndent(examples, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	return writeFile(filepath.Join(dir, DatasetFile), string(data)+"\n")
}

// LoadDataset reads dir/dataset.json. Examples saved without an inline
// answer or SQL pick them up from the answer directories.
func LoadDataset(dir string) ([]Example, error) {
	data, err := os.ReadFile(filepath.Join(dir, DatasetFile))
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var examples []Example
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	seen := make(map[string]bool, len(examples))

	for i, ex := range examples {
		if ex.ID == "" {
			return nil, fmt.Errorf("example %d: missing id", i)
		}

		if seen[ex.ID] {
			return nil, fmt.Errorf("example %s: duplicate id", ex.ID)
		}
		seen[ex.ID] = true

		if ex.Impossible {
			continue
		}

		if ex.ReferenceSQL == "" {
			if examples[i].ReferenceSQL, err = readOptional(filepath.Join(dir, AnswerSQLs, ex.ID+".sql")); err != nil {
				return nil, err
			}
		}

		if ex.ExpectedAnswer == "" {
			if examples[i].ExpectedAnswer, err = readOptional(filepath.Join(dir, AnswerCSVs, ex.ID+".csv")); err != nil {
				return nil, err
			}
		}
	}

	return examples, nil
}

// BankDataset builds the examples straight from the bank without touching
// the disk.
func BankDataset(ctx context.Context, db sqlx.QueryerContext) ([]Example, error) {
	var examples []Example

	for _, q := range querybank.All() {
		ex, err := NewExample(ctx, db, q)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", q.ID, err)
		}
		examples = append(examples, ex)
	}

	return examples, nil
}

// =============================================================================

func writeFile(path string, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read: %w", err)
	}

	return string(data), nil
}
