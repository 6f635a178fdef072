package dataset_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/qcommerce-evals/business/dataset"
	"github.com/ardanlabs/qcommerce-evals/business/dataset/dstest"
	"github.com/ardanlabs/qcommerce-evals/foundation/logger"
	"github.com/ardanlabs/qcommerce-evals/foundation/sqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeterministic(t *testing.T) {
	a := dataset.Generate(7)
	b := dataset.Generate(7)
	c := dataset.Generate(8)

	require.Equal(t, a, b)
	require.NotEqual(t, a.Lines, c.Lines)
}

func TestGenerateInvariants(t *testing.T) {
	fx := dataset.Generate(dstest.Seed)

	type order struct {
		status   string
		distance float64
		placed   int64
	}
	orders := make(map[string]order)

	for _, l := range fx.Lines {
		require.False(t, l.OrderPlacedAt.Before(dataset.PeriodStart), l.OrderID)
		require.True(t, l.OrderPlacedAt.Before(dataset.PeriodEnd), l.OrderID)

		if o, ok := orders[l.OrderID]; ok {
			require.Equal(t, o.status, l.OrderStatus, l.OrderID)
			require.Equal(t, o.distance, l.DistanceKM, l.OrderID)
			require.Equal(t, o.placed, l.OrderPlacedAt.Unix(), l.OrderID)
		}
		orders[l.OrderID] = order{l.OrderStatus, l.DistanceKM, l.OrderPlacedAt.Unix()}

		switch l.OrderStatus {
		case dataset.StatusDelivered:
			require.Positive(t, l.ActualDeliverySecs)
			require.Positive(t, l.CommittedDeliverySecs)
			require.Empty(t, l.CancellationReason)
		case dataset.StatusCancelled:
			require.Zero(t, l.ActualDeliverySecs)
			require.NotEmpty(t, l.CancellationReason)
		default:
			require.Zero(t, l.CommittedDeliverySecs)
			require.Empty(t, l.CancellationReason)
		}
	}

	assert.Greater(t, fx.OrderCount(dataset.StatusDelivered), fx.OrderCount(dataset.StatusCancelled))
	assert.Equal(t, len(orders), fx.OrderCount(""))
}

func TestSeedAndCheck(t *testing.T) {
	db, fx := dstest.New(t)

	violations, err := dataset.Check(t.Context(), db)
	require.NoError(t, err)
	require.Empty(t, violations)

	var lines int
	require.NoError(t, db.GetContext(t.Context(), &lines, `SELECT COUNT(*) FROM order_items`))
	require.Equal(t, len(fx.Lines), lines)

	var nullReasons int
	require.NoError(t, db.GetContext(t.Context(), &nullReasons,
		`SELECT COUNT(*) FROM order_items WHERE order_status = 'delivered' AND cancellation_reason IS NULL`))
	require.Positive(t, nullReasons)
}

func TestCheckFindsViolations(t *testing.T) {
	db, _ := dstest.New(t)

	_, err := db.ExecContext(t.Context(), `
		UPDATE order_items SET cancellation_reason = 'payment_failed'
		WHERE order_id = (SELECT MIN(order_id) FROM order_items WHERE order_status = 'delivered')`)
	require.NoError(t, err)

	violations, err := dataset.Check(t.Context(), db)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "cancellation reason only on cancelled orders", violations[0].Invariant)
}

func TestCheckNotLoaded(t *testing.T) {
	db, err := sqldb.Open(sqldb.Config{})
	require.NoError(t, err)
	defer db.Close()

	_, err = dataset.Check(t.Context(), db)
	require.ErrorIs(t, err, dataset.ErrNotLoaded)
}

func TestSeedRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qc.duckdb")

	db, _, err := dataset.Seed(t.Context(), logger.Discard(), path, 1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, _, err = dataset.Seed(t.Context(), logger.Discard(), path, 1)
	require.Error(t, err)

	ro, err := dataset.Open(path)
	require.NoError(t, err)
	defer ro.Close()

	violations, err := dataset.Check(t.Context(), ro)
	require.NoError(t, err)
	require.Empty(t, violations)

	_, err = ro.ExecContext(t.Context(), "DELETE FROM order_items")
	require.Error(t, err)

	_, err = ro.ExecContext(t.Context(), "SELECT content FROM read_text('"+path+"')")
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	db, _ := dstest.New(t)

	tables, err := dataset.ListTables(t.Context(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"consumers", "order_items", "products", "stores"}, tables)

	cols, err := dataset.Describe(t.Context(), db, "stores")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "store_id", cols[0].Name)
	assert.Equal(t, "INTEGER", cols[0].Type)

	_, err = dataset.Describe(t.Context(), db, "ratings")
	require.ErrorIs(t, err, dataset.ErrNotLoaded)

	ctxText, err := dataset.SchemaContext(t.Context(), db)
	require.NoError(t, err)
	assert.Contains(t, ctxText, "Table: order_items (")
	assert.Contains(t, ctxText, "order_status VARCHAR values: cancelled, delivered, returned")
	assert.True(t, strings.HasSuffix(ctxText, "\n"))
}
