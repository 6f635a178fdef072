package dataset

import (
	"context"
	"fmt"

	"github.com/ardanlabs/qcommerce-evals/foundation/sqldb"
	"github.com/jmoiron/sqlx"
)

// Invariant is a property of the snapshot the reference queries rely on,
// expressed as a query counting the rows that break it.
type Invariant struct {
	Name  string
	Query string
}

// Violation reports an invariant with offending rows.
type Violation struct {
	Invariant string
	Rows      int64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %d offending rows", v.Invariant, v.Rows)
}

// Invariants lists the checks run by Check.
var Invariants = []Invariant{
	{
		Name: "order_status constant per order",
		Query: `
		SELECT COUNT(*) FROM (
			SELECT order_id FROM order_items
			GROUP BY order_id
			HAVING COUNT(DISTINCT order_status) > 1
		)`,
	},
	{
		Name: "order_placed_at constant per order",
		Query: `
		SELECT COUNT(*) FROM (
			SELECT order_id FROM order_items
			GROUP BY order_id
			HAVING COUNT(DISTINCT order_placed_at) > 1
		)`,
	},
	{
		Name: "delivery durations only on delivered orders",
		Query: `
		SELECT COUNT(*) FROM order_items
		WHERE order_status <> 'delivered'
		  AND (actual_delivery_secs IS NOT NULL OR committed_delivery_secs IS NOT NULL)`,
	},
	{
		Name: "delivered orders carry delivery durations",
		Query: `
		SELECT COUNT(*) FROM order_items
		WHERE order_status = 'delivered'
		  AND (actual_delivery_secs IS NULL OR committed_delivery_secs IS NULL)`,
	},
	{
		Name: "cancellation reason only on cancelled orders",
		Query: `
		SELECT COUNT(*) FROM order_items
		WHERE order_status <> 'cancelled'
		  AND cancellation_reason IS NOT NULL`,
	},
	{
		Name: "distance_km present on every line",
		Query: `
		SELECT COUNT(*) FROM order_items
		WHERE distance_km IS NULL`,
	},
	{
		Name: "distance_km constant per order",
		Query: `
		SELECT COUNT(*) FROM (
			SELECT order_id FROM order_items
			GROUP BY order_id
			HAVING COUNT(DISTINCT distance_km) > 1
		)`,
	},
	{
		Name: "order lines reference known products",
		Query: `
		SELECT COUNT(*) FROM order_items o
		WHERE NOT EXISTS (SELECT 1 FROM products p WHERE p.product_id = o.product_id)`,
	},
	{
		Name: "order lines reference known stores",
		Query: `
		SELECT COUNT(*) FROM order_items o
		WHERE NOT EXISTS (SELECT 1 FROM stores s WHERE s.store_id = o.store_id)`,
	},
}

// Check runs every invariant and returns the ones that fail. It returns
// ErrNotLoaded when the snapshot tables are missing.
func Check(ctx context.Context, db *sqlx.DB) ([]Violation, error) {
	for _, table := range Tables {
		ok, err := sqldb.TableExists(ctx, db, table)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, fmt.Errorf("table %s: %w", table, ErrNotLoaded)
		}
	}

	var violations []Violation

	for _, inv := range Invariants {
		var n int64
		if err := db.QueryRowContext(ctx, inv.Query).Scan(&n); err != nil {
			return nil, fmt.Errorf("invariant %q: %w", inv.Name, err)
		}

		if n > 0 {
			violations = append(violations, Violation{Invariant: inv.Name, Rows: n})
		}
	}

	return violations, nil
}
