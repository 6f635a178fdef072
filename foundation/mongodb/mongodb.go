// Package mongodb provides support for access a mongo database.
package mongodb

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Index represents information about an index.
type Index struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
}

// Connect attempts to connect to a mongo db instance. Credentials are only
// applied when a user name is provided.
func Connect(ctx context.Context, host string, userName string, password string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, clientOptions(host, userName, password))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}

	return client, nil
}

// clientOptions applies the URI as given. A single host that names no
// replica set and no connection mode is connected to directly, so a lone
// development server answers even when it reports a replica set.
func clientOptions(uri string, userName string, password string) *options.ClientOptions {
	opts := options.Client().ApplyURI(uri)

	if !strings.HasPrefix(uri, "mongodb+srv://") && len(opts.Hosts) == 1 && opts.ReplicaSet == nil && opts.Direct == nil {
		opts.SetDirect(true)
	}

	if userName != "" {
		opts.SetAuth(options.Credential{
			Username: userName,
			Password: password,
		})
	}

	return opts
}

// CreateCollection will create the specified collection in the specified
// database if it doesn't already exist.
func CreateCollection(ctx context.Context, db *mongo.Database, collectionName string) (*mongo.Collection, error) {
	names, err := db.ListCollectionNames(ctx, bson.D{bson.E{Key: "name", Value: collectionName}})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	if len(names) == 0 {
		if err := db.CreateCollection(ctx, collectionName); err != nil {
			return nil, fmt.Errorf("create collections: %w", err)
		}
	}

	return db.Collection(collectionName), nil
}

// CreateUniqueIndex makes sure a unique ascending index exists on the field.
func CreateUniqueIndex(ctx context.Context, col *mongo.Collection, indexName string, field string) error {
	indexes, err := lookupIndex(ctx, col, indexName)
	if err != nil {
		return fmt.Errorf("lookupIndex: %w", err)
	}

	if len(indexes) > 0 {
		return nil
	}

	model := mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetName(indexName).SetUnique(true),
	}

	if _, err := col.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("createIndex: %w", err)
	}

	return nil
}

// =============================================================================

func lookupIndex(ctx context.Context, col *mongo.Collection, indexName string) ([]Index, error) {
	cur, err := col.Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	defer cur.Close(ctx)

	var all []Index
	if err := cur.All(ctx, &all); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	var indexes []Index
	for _, idx := range all {
		if idx.Name == indexName {
			indexes = append(indexes, idx)
		}
	}

	return indexes, nil
}
