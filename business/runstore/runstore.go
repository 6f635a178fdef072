// Package runstore persists evaluation runs so agents can be compared over
// time. Runs are kept in Postgres or MongoDB.
package runstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/qcommerce-evals/business/evaluate"
	"github.com/ardanlabs/qcommerce-evals/foundation/config"
)

// Set of errors returned by the stores.
var (
	ErrNotFound = errors.New("run not found")
	ErrDisabled = errors.New("no run store configured")
)

// DefaultListLimit is how many runs List returns when asked for zero or
// fewer.
const DefaultListLimit = 20

// Store saves and reads evaluation runs. List returns the most recent runs
// first and applies DefaultListLimit to a limit of zero or less.
type Store interface {
	Save(ctx context.Context, run evaluate.Run) error
	Get(ctx context.Context, id string) (evaluate.Run, error)
	List(ctx context.Context, limit int) ([]evaluate.Run, error)
	Close(ctx context.Context) error
}

// Open connects to the configured store. Postgres tables are created when
// missing. An empty driver returns ErrDisabled.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, ErrDisabled

	case "postgres":
		pg, err := OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}

		if err := pg.Migrate(ctx); err != nil {
			pg.Close(ctx)
			return nil, err
		}

		return pg, nil

	case "mongo":
		return OpenMongo(ctx, cfg.MongoURL, cfg.MongoUser, cfg.MongoPassword, cfg.MongoDatabase)
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}

	return limit
}
