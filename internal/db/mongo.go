package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the primary node
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)
	fmt.Println("Successfully connected to MongoDB!")

	return client, db, nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	fmt.Println("MongoDB connection closed.")
	return nil
}

// EnsureIndexes creates the unique indexes the services rely on:
// review upserts keyed on their natural pair, and the conversation triple
// that turns a first-contact race into a duplicate-key error we retry as a
// lookup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)

	indexes := map[string]mongo.IndexModel{
		"item_reviews": {
			Keys:    bson.D{{Key: "item_id", Value: 1}, {Key: "reviewer_id", Value: 1}},
			Options: unique,
		},
		"user_reviews": {
			Keys:    bson.D{{Key: "reviewer_id", Value: 1}, {Key: "reviewed_user_id", Value: 1}},
			Options: unique,
		},
		"conversations": {
			Keys:    bson.D{{Key: "item_id", Value: 1}, {Key: "user_a", Value: 1}, {Key: "user_b", Value: 1}},
			Options: unique,
		},
		"users": {
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: unique,
		},
	}

	for collection, model := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to ensure index on %s: %w", collection, err)
		}
	}

	// Non-unique lookup indexes
	lookups := map[string]bson.D{
		"messages":     {{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
		"transactions": {{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		"items":        {{Key: "owner_id", Value: 1}},
	}
	for collection, keys := range lookups {
		if _, err := db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys}); err != nil {
			return fmt.Errorf("failed to ensure index on %s: %w", collection, err)
		}
	}

	// Text index backing the item search query
	textIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "title", Value: "text"}, {Key: "body", Value: "text"}},
	}
	if _, err := db.Collection("items").Indexes().CreateOne(ctx, textIndex); err != nil {
		return fmt.Errorf("failed to ensure text index on items: %w", err)
	}

	return nil
}
