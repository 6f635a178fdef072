// Package dstest provides support for tests that need a loaded snapshot.
package dstest

import (
	"testing"

	"github.com/ardanlabs/qcommerce-evals/business/dataset"
	"github.com/ardanlabs/qcommerce-evals/foundation/logger"
	"github.com/jmoiron/sqlx"
)

// Seed is the fixture seed used by every test in the module.
const Seed = 20251101

// New returns an in-memory database loaded with the synthetic snapshot and
// the fixture it was built from. The database is closed when the test ends.
func New(t testing.TB) (*sqlx.DB, dataset.Fixture) {
	t.Helper()

	db, fx, err := dataset.Seed(t.Context(), logger.Discard(), ":memory:", Seed)
	if err != nil {
		t.Fatalf("seeding dataset: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db, fx
}
