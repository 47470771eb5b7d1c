package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sswap/sswap-node/types"
)

// CreateTransaction inserts a fresh swap record. The reference must be
// unique, ErrAlreadyExists is returned otherwise.
func (s *Storage) CreateTransaction(ctx context.Context, tx *types.Transaction) error {
	if tx.Reference == "" {
		return fmt.Errorf("transaction reference is required")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if _, err := s.transactions.InsertOne(ctx, tx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("reference %s: %w", tx.Reference, ErrAlreadyExists)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// Transaction fetches a swap record by its public reference.
func (s *Storage) Transaction(ctx context.Context, reference string) (*types.Transaction, error) {
	var tx types.Transaction
	err := s.transactions.FindOne(ctx, bson.M{"reference": reference}).Decode(&tx)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("reference %s: %w", reference, ErrNotFound)
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &tx, nil
}

// TransactionByChainTxID fetches a swap record by the chain transaction that
// funded or settled it.
func (s *Storage) TransactionByChainTxID(ctx context.Context, chainTxID string) (*types.Transaction, error) {
	var tx types.Transaction
	err := s.transactions.FindOne(ctx, bson.M{"chainTxId": chainTxID}).Decode(&tx)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("chain tx %s: %w", chainTxID, ErrNotFound)
		}
		return nil, fmt.Errorf("find transaction by chain tx: %w", err)
	}
	return &tx, nil
}

// TransactionUpdate is the set of fields a status transition may write
// alongside the new status. Zero-valued fields are left untouched; Meta
// entries are merged key by key, never replacing the whole map.
type TransactionUpdate struct {
	Status             types.TxStatus
	ChainTxID          string
	PayoutProviderTxID string
	SenderAddress      string
	ConfirmedAt        *time.Time
	Meta               map[string]any
}

func (u *TransactionUpdate) setDocument() (bson.M, error) {
	if !u.Status.Valid() {
		return nil, fmt.Errorf("invalid target status %q", u.Status)
	}
	set := bson.M{"status": u.Status}
	if u.ChainTxID != "" {
		set["chainTxId"] = u.ChainTxID
	}
	if u.PayoutProviderTxID != "" {
		set["payoutProviderTxId"] = u.PayoutProviderTxID
	}
	if u.SenderAddress != "" {
		set["senderAddress"] = u.SenderAddress
	}
	if u.ConfirmedAt != nil {
		set["confirmedAt"] = *u.ConfirmedAt
	}
	for k, v := range u.Meta {
		set["meta."+k] = v
	}
	return set, nil
}

// ConditionalUpdate atomically advances the record with the given reference
// from the expected status to the update's target status. It is the single
// primitive every settlement decision races on: the filter matches only
// while the document still holds the expected status, so exactly one of any
// number of concurrent callers observes a non-nil result.
//
// Returns the document as it looks after the update, or ErrNoTransition when
// nothing matched (unknown reference or already advanced).
func (s *Storage) ConditionalUpdate(ctx context.Context, reference string, expected types.TxStatus, update TransactionUpdate) (*types.Transaction, error) {
	set, err := update.setDocument()
	if err != nil {
		return nil, err
	}
	filter := bson.M{"reference": reference, "status": expected}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var tx types.Transaction
	err = s.transactions.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&tx)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("reference %s from %s to %s: %w",
				reference, expected, update.Status, ErrNoTransition)
		}
		return nil, fmt.Errorf("conditional update: %w", err)
	}
	return &tx, nil
}

// FailExpired conditionally fails every pending record whose deadline has
// passed. Each document is matched on its status, so a record that advances
// concurrently is left alone. Returns the number of records failed.
func (s *Storage) FailExpired(ctx context.Context, now time.Time, reason string) (int64, error) {
	filter := bson.M{
		"status":    types.TxStatusPending,
		"expiresAt": bson.M{"$lt": now},
	}
	update := bson.M{"$set": bson.M{
		"status":                          types.TxStatusFailed,
		"meta." + types.MetaFailureReason: reason,
	}}
	res, err := s.transactions.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("fail expired: %w", err)
	}
	return res.ModifiedCount, nil
}

// TransactionFilter narrows List queries. Zero fields are ignored.
type TransactionFilter struct {
	Address   string // matches sender or recipient
	Direction types.Direction
	Status    types.TxStatus
	Token     types.TokenSymbol
	Limit     int64
	Offset    int64
}

// ListTransactions returns swap records matching the filter, newest first.
func (s *Storage) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*types.Transaction, error) {
	query := bson.M{}
	if filter.Address != "" {
		query["$or"] = bson.A{
			bson.M{"senderAddress": filter.Address},
			bson.M{"recipientAddress": filter.Address},
		}
	}
	if filter.Direction != "" {
		query["direction"] = filter.Direction
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Token != "" {
		query["token"] = filter.Token
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cur, err := s.transactions.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	var txs []*types.Transaction
	if err := cur.All(ctx, &txs); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return txs, nil
}

// TxStats is one aggregation bucket of the transactions collection.
type TxStats struct {
	Direction types.Direction `bson:"direction" json:"direction"`
	Status    types.TxStatus  `bson:"status"    json:"status"`
	Count     int64           `bson:"count"     json:"count"`
	VolumeNGN int64           `bson:"volumeNgn" json:"volumeNgn"`
}

// Stats aggregates transaction counts and NGN volume grouped by direction
// and status.
func (s *Storage) Stats(ctx context.Context) ([]TxStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":       bson.M{"direction": "$direction", "status": "$status"},
			"count":     bson.M{"$sum": 1},
			"volumeNgn": bson.M{"$sum": "$ngnAmount"},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":       0,
			"direction": "$_id.direction",
			"status":    "$_id.status",
			"count":     1,
			"volumeNgn": 1,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "direction", Value: 1}, {Key: "status", Value: 1}}}},
	}
	cur, err := s.transactions.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	var stats []TxStats
	if err := cur.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}
