// Package resultset provides the tabular result of a query along with the
// CSV form used to store expected answers and the tolerant comparison used
// to score an agent's answer against them.
package resultset

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/jmoiron/sqlx"
)

// Column is a result column and the type name the database reported.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is an ordered result set. Cells hold nil, int64, float64, string,
// bool or time.Time.
type Table struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ColumnNames returns the column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}

	return names
}

// Head returns a copy holding at most n rows.
func (t Table) Head(n int) Table {
	if n < 0 || n >= len(t.Rows) {
		return t
	}

	return Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// =============================================================================

// Query executes the query and reads the full result.
func Query(ctx context.Context, db sqlx.QueryerContext, query string, args ...any) (Table, error) {
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return Table{}, err
	}
	defer rows.Close()

	return Scan(rows)
}

// Scan reads every remaining row and normalizes the driver values.
func Scan(rows *sqlx.Rows) (Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return Table{}, fmt.Errorf("column types: %w", err)
	}

	t := Table{
		Columns: make([]Column, len(types)),
		Rows:    [][]any{},
	}

	for i, ct := range types {
		t.Columns[i] = Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return Table{}, fmt.Errorf("scan: %w", err)
		}

		for i, v := range values {
			values[i] = Normalize(v)
		}

		t.Rows = append(t.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("rows: %w", err)
	}

	return t, nil
}

// Normalize maps a driver value onto the small set of cell types a Table
// holds.
func Normalize(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case int64:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return float64(v)
		}
		return int64(v)
	case float32:
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
		return f
	case float64:
		return v
	case *big.Int:
		if v.IsInt64() {
			return v.Int64()
		}
		f, _ := new(big.Float).SetInt(v).Float64()
		return f
	case duckdb.Decimal:
		return v.Float64()
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return v
	case time.Time:
		return v.UTC()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
