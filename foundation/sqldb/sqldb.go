// Package sqldb provides support for access to the DuckDB analytics file.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/jmoiron/sqlx"
)

func init() {
	sqlx.BindDriver("duckdb", sqlx.QUESTION)
}

// Set of error variables for CRUD operations.
var (
	ErrDBNotFound = errors.New("database file not found")
)

// Config is the required properties to use the database.
type Config struct {
	Path         string
	ReadOnly     bool
	MaxOpenConns int

	// NoExternalAccess stops statements from reaching the file system or
	// the network: read_csv, read_text, COPY, ATTACH and extension loading.
	NoExternalAccess bool
}

// Open knows how to open a database connection based on the configuration.
// An empty path or ":memory:" opens an in-memory database that lives as
// long as the returned handle.
func Open(cfg Config) (*sqlx.DB, error) {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}

	q := make(url.Values)

	if path != "" && cfg.ReadOnly {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", cfg.Path, ErrDBNotFound)
		}
		q.Set("access_mode", "READ_ONLY")
	}

	if cfg.NoExternalAccess {
		q.Set("enable_external_access", "false")
	}

	dsn := path
	if len(q) > 0 {
		dsn += "?" + q.Encode()
	}

	connector, err := duckdb.NewConnector(dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}

	db := sqlx.NewDb(sql.OpenDB(connector), "duckdb")

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return db, nil
}

// StatusCheck returns nil if it can successfully talk to the database. It
// returns a non-nil error otherwise.
func StatusCheck(ctx context.Context, db *sqlx.DB) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second)
		defer cancel()
	}

	var pingError error
	for attempts := 1; ; attempts++ {
		pingError = db.PingContext(ctx)
		if pingError == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	const q = `SELECT TRUE`
	var tmp bool
	return db.QueryRowContext(ctx, q).Scan(&tmp)
}

// ExecContext runs the script inside a single transaction. DuckDB accepts
// several statements in one Exec call.
func ExecContext(ctx context.Context, db *sqlx.DB, script string) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	defer func() {
		if errTx := tx.Rollback(); errTx != nil {
			if errors.Is(errTx, sql.ErrTxDone) {
				return
			}

			err = fmt.Errorf("rollback: %w", errTx)
		}
	}()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// NamedExecContext is a helper function to execute a named insert or update.
// A slice of structs in data produces one multi-row statement.
func NamedExecContext(ctx context.Context, db sqlx.ExtContext, query string, data any) error {
	if _, err := sqlx.NamedExecContext(ctx, db, query, data); err != nil {
		return fmt.Errorf("named exec: %w", err)
	}

	return nil
}

// TableExists reports whether the named table is present in the main schema.
func TableExists(ctx context.Context, db *sqlx.DB, table string) (bool, error) {
	const q = `
	SELECT
		COUNT(*)
	FROM
		information_schema.tables
	WHERE
		table_name = ?`

	var n int64
	if err := db.QueryRowContext(ctx, q, table).Scan(&n); err != nil {
		return false, fmt.Errorf("check table: %w", err)
	}

	return n > 0, nil
}
