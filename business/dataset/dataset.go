// Package dataset provides support for the quick-commerce analytics snapshot:
// its schema, a deterministic synthetic copy for offline work, and the
// invariant checks the reference queries rely on.
package dataset

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ardanlabs/qcommerce-evals/foundation/sqldb"
	"github.com/jmoiron/sqlx"
)

//go:embed sql/schema.sql
var schemaSQL string

// Set of order statuses found in the snapshot.
const (
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
	StatusReturned  = "returned"
)

// Tables lists the snapshot tables in load order.
var Tables = []string{"stores", "products", "consumers", "order_items"}

// ErrNotLoaded is returned when the snapshot tables are missing.
var ErrNotLoaded = errors.New("dataset not loaded")

// =============================================================================

// Store is a dark store serving an area of the city.
type Store struct {
	StoreID   int    `db:"store_id"`
	StoreName string `db:"store_name"`
	Area      string `db:"area"`
}

// Consumer is a shopper and the store closest to them.
type Consumer struct {
	ConsumerID     int    `db:"consumer_id"`
	Gender         string `db:"gender"`
	Age            int    `db:"age"`
	NearestStoreID int    `db:"nearest_store_id"`
}

// Product is a catalogue entry.
type Product struct {
	ProductID   int     `db:"product_id"`
	ProductName string  `db:"product_name"`
	Category    string  `db:"category"`
	SubCategory string  `db:"sub_category"`
	Brand       string  `db:"brand"`
	UnitPrice   float64 `db:"-"`
}

// OrderLine is one product within an order. Order level attributes repeat
// on every line of the order. Zero delivery seconds and an empty reason are
// stored as NULL.
type OrderLine struct {
	OrderID               string    `db:"order_id"`
	LineNo                int       `db:"line_no"`
	ConsumerID            int       `db:"consumer_id"`
	StoreID               int       `db:"store_id"`
	ProductID             int       `db:"product_id"`
	OrderPlacedAt         time.Time `db:"order_placed_at"`
	OrderStatus           string    `db:"order_status"`
	Quantity              int       `db:"quantity"`
	Discount              float64   `db:"discount"`
	ItemTotal             float64   `db:"item_total"`
	CommittedDeliverySecs int       `db:"committed_delivery_secs"`
	ActualDeliverySecs    int       `db:"actual_delivery_secs"`
	DistanceKM            float64   `db:"distance_km"`
	CancellationReason    string    `db:"cancellation_reason"`
}

// =============================================================================

// Open opens the snapshot file read-only with no access to other files or
// the network, so agent SQL run against it can only read the snapshot.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqldb.Open(sqldb.Config{Path: path, ReadOnly: true, NoExternalAccess: true})
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}

	return db, nil
}

// CreateSchema creates the snapshot tables if they don't already exist.
func CreateSchema(ctx context.Context, db *sqlx.DB) error {
	if err := sqldb.ExecContext(ctx, db, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Load inserts the fixture in one transaction.
func Load(ctx context.Context, db *sqlx.DB, fx Fixture) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	defer func() {
		if errTx := tx.Rollback(); errTx != nil && !errors.Is(errTx, sql.ErrTxDone) {
			err = fmt.Errorf("rollback: %w", errTx)
		}
	}()

	const insertStores = `
	INSERT INTO stores
		(store_id, store_name, area)
	VALUES
		(:store_id, :store_name, :area)`

	if err := insertChunks(ctx, tx, insertStores, fx.Stores); err != nil {
		return fmt.Errorf("stores: %w", err)
	}

	const insertProducts = `
	INSERT INTO products
		(product_id, product_name, category, sub_category, brand)
	VALUES
		(:product_id, :product_name, :category, :sub_category, :brand)`

	if err := insertChunks(ctx, tx, insertProducts, fx.Products); err != nil {
		return fmt.Errorf("products: %w", err)
	}

	const insertConsumers = `
	INSERT INTO consumers
		(consumer_id, gender, age, nearest_store_id)
	VALUES
		(:consumer_id, :gender, :age, :nearest_store_id)`

	if err := insertChunks(ctx, tx, insertConsumers, fx.Consumers); err != nil {
		return fmt.Errorf("consumers: %w", err)
	}

	const insertLines = `
	INSERT INTO order_items
		(order_id, line_no, consumer_id, store_id, product_id, order_placed_at, order_status,
		 quantity, discount, item_total, committed_delivery_secs, actual_delivery_secs,
		 distance_km, cancellation_reason)
	VALUES
		(:order_id, :line_no, :consumer_id, :store_id, :product_id, :order_placed_at, :order_status,
		 :quantity, :discount, :item_total, NULLIF(:committed_delivery_secs, 0), NULLIF(:actual_delivery_secs, 0),
		 :distance_km, NULLIF(:cancellation_reason, ''))`

	if err := insertChunks(ctx, tx, insertLines, fx.Lines); err != nil {
		return fmt.Errorf("order_items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// Seed builds a snapshot at path from the synthetic fixture for the given
// seed. An empty path or ":memory:" builds it in memory. The returned handle
// is writable; callers that evaluate should reopen the file with Open.
func Seed(ctx context.Context, log *slog.Logger, path string, seed uint64) (*sqlx.DB, Fixture, error) {
	db, err := sqldb.Open(sqldb.Config{Path: path})
	if err != nil {
		return nil, Fixture{}, fmt.Errorf("open: %w", err)
	}

	exists, err := sqldb.TableExists(ctx, db, "order_items")
	if err != nil {
		db.Close()
		return nil, Fixture{}, fmt.Errorf("check: %w", err)
	}

	if exists {
		db.Close()
		return nil, Fixture{}, fmt.Errorf("seed %s: order_items already exists", path)
	}

	if err := CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, Fixture{}, err
	}

	t := time.Now()
	fx := Generate(seed)

	if err := Load(ctx, db, fx); err != nil {
		db.Close()
		return nil, Fixture{}, fmt.Errorf("load: %w", err)
	}

	log.Info("dataset seeded",
		"path", path,
		"seed", seed,
		"stores", len(fx.Stores),
		"products", len(fx.Products),
		"consumers", len(fx.Consumers),
		"order_lines", len(fx.Lines),
		"took", time.Since(t).Round(time.Millisecond),
	)

	return db, fx, nil
}

// =============================================================================

const chunkSize = 200

func insertChunks[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T) error {
	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))
		if err := sqldb.NamedExecContext(ctx, tx, query, rows[start:end]); err != nil {
			return fmt.Errorf("rows %d-%d: %w", start, end, err)
		}
	}

	return nil
}
