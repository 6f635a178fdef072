package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Column describes a table column as reported by the catalog.
type Column struct {
	Name     string `db:"column_name" json:"name"`
	Type     string `db:"data_type" json:"type"`
	Nullable string `db:"is_nullable" json:"nullable"`
}

// ListTables returns the tables in the main schema ordered by name.
func ListTables(ctx context.Context, db *sqlx.DB) ([]string, error) {
	const q = `
	SELECT
		table_name
	FROM
		information_schema.tables
	WHERE
		table_schema = 'main'
	ORDER BY
		table_name`

	var tables []string
	if err := db.SelectContext(ctx, &tables, q); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	return tables, nil
}

// Describe returns the columns of table in declaration order.
func Describe(ctx context.Context, db *sqlx.DB, table string) ([]Column, error) {
	const q = `
	SELECT
		column_name,
		data_type,
		is_nullable
	FROM
		information_schema.columns
	WHERE
		table_schema = 'main' AND table_name = ?
	ORDER BY
		ordinal_position`

	var cols []Column
	if err := db.SelectContext(ctx, &cols, q, table); err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("describe %s: %w", table, ErrNotLoaded)
	}

	return cols, nil
}

// SchemaContext renders every table with its row count, columns and, for
// low cardinality text columns, the distinct values. Agents receive it as
// grounding before writing SQL.
func SchemaContext(ctx context.Context, db *sqlx.DB) (string, error) {
	tables, err := ListTables(ctx, db)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	for _, table := range tables {
		cols, err := Describe(ctx, db, table)
		if err != nil {
			return "", err
		}

		var rows int64
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&rows); err != nil {
			return "", fmt.Errorf("count %s: %w", table, err)
		}

		fmt.Fprintf(&b, "Table: %s (%d rows)\n", table, rows)

		for _, c := range cols {
			fmt.Fprintf(&b, "  - %s %s", c.Name, c.Type)

			if c.Type == "VARCHAR" {
				values, err := distinctValues(ctx, db, table, c.Name, 8)
				if err != nil {
					return "", err
				}
				if len(values) > 0 {
					fmt.Fprintf(&b, " values: %s", strings.Join(values, ", "))
				}
			}

			b.WriteString("\n")
		}

		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

// distinctValues returns the sorted distinct values of a column, or nothing
// when there are more than limit of them.
func distinctValues(ctx context.Context, db *sqlx.DB, table string, column string, limit int) ([]string, error) {
	q := fmt.Sprintf(`SELECT DISTINCT %q FROM %q WHERE %q IS NOT NULL ORDER BY 1 LIMIT %d`, column, table, column, limit+1)

	var values []string
	if err := db.SelectContext(ctx, &values, q); err != nil {
		return nil, fmt.Errorf("distinct %s.%s: %w", table, column, err)
	}

	if len(values) > limit {
		return nil, nil
	}

	return values, nil
}
