/*
Package storage provides the persistent storage layer of sswap-node, backed
by MongoDB.

# Collections

  - transactions:    one document per swap (onramp or offramp), keyed by the
    public reference. All status transitions go through
    ConditionalUpdate so that concurrent writers can never
    apply the same transition twice.
  - price_snapshots: per-token price observations kept for the history
    endpoints, pruned automatically via a TTL index.

# Concurrency

The store is the only synchronization point between the API handlers, the
chain indexer, the transaction watchers and the webhook handlers. None of
them hold in-process locks around settlement decisions: whoever wins the
conditional update owns the transition, everyone else observes the already
advanced document and backs off.
*/
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sswap/sswap-node/log"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrNoTransition is returned by ConditionalUpdate when no document
	// matched the (reference, status) pair: either the reference is unknown
	// or another writer already moved the record past the expected status.
	ErrNoTransition = errors.New("no matching transition")
)

const (
	transactionsCol   = "transactions"
	priceSnapshotsCol = "price_snapshots"

	defaultDatabase = "sswap"
	connectTimeout  = 10 * time.Second

	// price snapshots are dropped by mongo after this long
	snapshotRetention = 7 * 24 * time.Hour
)

// Options configures a Storage instance.
type Options struct {
	URI      string
	Database string // defaults to "sswap"
}

// Storage manages swap transactions and price snapshots.
type Storage struct {
	client       *mongo.Client
	transactions *mongo.Collection
	snapshots    *mongo.Collection
}

// New connects to MongoDB, verifies the connection and ensures the index
// set. The context bounds only the initial connection handshake.
func New(ctx context.Context, opts Options) (*Storage, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if opts.Database == "" {
		opts.Database = defaultDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(opts.Database)
	s := &Storage{
		client:       client,
		transactions: db.Collection(transactionsCol),
		snapshots:    db.Collection(priceSnapshotsCol),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongodb indexes: %w", err)
	}

	log.Infow("storage ready", "database", opts.Database)
	return s, nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) {
	if err := s.client.Disconnect(ctx); err != nil {
		log.Warnw("failed to disconnect storage", "error", err)
	}
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.transactions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "direction", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "senderAddress", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "chainTxId", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "createdAt", Value: -1}},
		},
		{
			// reaper scan: pending records past their deadline
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}},
		},
	})
	if err != nil {
		return err
	}
	_, err = s.snapshots.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "token", Value: 1}, {Key: "fetchedAt", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "fetchedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(snapshotRetention.Seconds())),
		},
	})
	return err
}
