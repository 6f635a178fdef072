package sqlcheck

import (
	"context"
	"errors"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
)

// Set of error categories for statements run against the snapshot.
var (
	// ErrSyntax is a malformed statement. It is rejected outright and
	// retrying the same text cannot succeed.
	ErrSyntax = errors.New("syntax error")

	// ErrSchemaDrift is a reference to a table or column the snapshot does
	// not have. It is fatal for a reference query.
	ErrSchemaDrift = errors.New("schema mismatch")

	// ErrExecution covers every other failure while running a statement.
	ErrExecution = errors.New("execution error")
)

// QueryError is a failed statement with its category.
type QueryError struct {
	Category error
	SQL      string
	Err      error
}

// ClassifyError wraps a statement failure with its category. It returns nil
// for a nil error.
func ClassifyError(sql string, err error) error {
	if err == nil {
		return nil
	}

	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}

	return &QueryError{Category: category(err), SQL: sql, Err: err}
}

// Error implements the error interface.
func (qe *QueryError) Error() string {
	return qe.Category.Error() + ": " + qe.Err.Error()
}

// Unwrap exposes both the category and the driver error to errors.Is.
func (qe *QueryError) Unwrap() []error {
	return []error{qe.Category, qe.Err}
}

// Retryable reports whether running the same statement again could succeed.
func (qe *QueryError) Retryable() bool {
	if qe.Category != ErrExecution {
		return false
	}

	var de *duckdb.Error
	if errors.As(qe.Err, &de) {
		switch de.Type {
		case duckdb.ErrorTypeInterrupt, duckdb.ErrorTypeIO, duckdb.ErrorTypeTransaction, duckdb.ErrorTypeOutOfMemory:
			return true
		}
		return false
	}

	return errors.Is(qe.Err, context.DeadlineExceeded)
}

// Message returns the driver message without the category prefix, the
// text an agent sees after "SQL Error: ".
func (qe *QueryError) Message() string {
	return qe.Err.Error()
}

func category(err error) error {
	if errors.Is(err, ErrNotReadOnly) || errors.Is(err, ErrEmpty) {
		return ErrSyntax
	}

	var de *duckdb.Error
	if errors.As(err, &de) {
		switch de.Type {
		case duckdb.ErrorTypeParser, duckdb.ErrorTypeSyntax:
			return ErrSyntax
		case duckdb.ErrorTypeCatalog, duckdb.ErrorTypeBinder:
			return ErrSchemaDrift
		}
		return ErrExecution
	}

	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "Parser Error"), strings.HasPrefix(msg, "Syntax Error"):
		return ErrSyntax
	case strings.HasPrefix(msg, "Catalog Error"), strings.HasPrefix(msg, "Binder Error"):
		return ErrSchemaDrift
	}

	return ErrExecution
}
