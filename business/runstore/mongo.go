package runstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/qcommerce-evals/business/evaluate"
	"github.com/ardanlabs/qcommerce-evals/foundation/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	runsCollection = "eval_runs"
	runIDIndex     = "run_id_unique"
)

// Mongo keeps each run as one document in the eval_runs collection.
type Mongo struct {
	client *mongo.Client
	col    *mongo.Collection
}

// OpenMongo connects and makes sure the collection and its unique run id
// index exist.
func OpenMongo(ctx context.Context, host string, user string, password string, database string) (*Mongo, error) {
	client, err := mongodb.Connect(ctx, host, user, password)
	if err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}

	col, err := mongodb.CreateCollection(ctx, client.Database(database), runsCollection)
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: %w", err)
	}

	if err := mongodb.CreateUniqueIndex(ctx, col, runIDIndex, "run_id"); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: %w", err)
	}

	return &Mongo{client: client, col: col}, nil
}

// Close disconnects the client.
func (s *Mongo) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Save inserts the run.
func (s *Mongo) Save(ctx context.Context, run evaluate.Run) error {
	if _, err := s.col.InsertOne(ctx, run); err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	return nil
}

// Get returns the run with its results.
func (s *Mongo) Get(ctx context.Context, id string) (evaluate.Run, error) {
	var run evaluate.Run

	err := s.col.FindOne(ctx, bson.D{{Key: "run_id", Value: id}}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return evaluate.Run{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return evaluate.Run{}, fmt.Errorf("find: %w", err)
	}

	return run, nil
}

// List returns the most recent runs first, without their results.
func (s *Mongo) List(ctx context.Context, limit int) ([]evaluate.Run, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(listLimit(limit))).
		SetProjection(bson.D{{Key: "results", Value: 0}})

	cur, err := s.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cur.Close(ctx)

	var runs []evaluate.Run
	if err := cur.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	return runs, nil
}
