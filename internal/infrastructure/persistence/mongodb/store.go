// Package mongodb implements the billing repositories on MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	studentsCollection = "students"
	invoicesCollection = "invoices"
)

// Config holds MongoDB connection settings
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Store owns the client and the billing collections
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Connect dials MongoDB and verifies the connection with a ping
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("MongoDB connection established", zap.String("database", cfg.Database))
	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

// EnsureIndexes creates the uniqueness indexes the repositories rely on.
// Invoice codes are unique only among documents that carry one.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	studentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "studentCode", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "fullName", Value: 1}}},
	}
	if _, err := s.db.Collection(studentsCollection).Indexes().CreateMany(ctx, studentIndexes); err != nil {
		return fmt.Errorf("failed to create student indexes: %w", err)
	}

	invoiceIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "invoiceCode", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"invoiceCode": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "studentId", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	if _, err := s.db.Collection(invoicesCollection).Indexes().CreateMany(ctx, invoiceIndexes); err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}

	s.logger.Info("MongoDB indexes ensured")
	return nil
}

// Ping checks the primary is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	s.logger.Info("Closing MongoDB connection")
	return s.client.Disconnect(ctx)
}

func (s *Store) students() *mongo.Collection {
	return s.db.Collection(studentsCollection)
}

func (s *Store) invoices() *mongo.Collection {
	return s.db.Collection(invoicesCollection)
}
