package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sswap/sswap-node/types"
)

// InsertPriceSnapshots persists one observation per token. Best effort for
// callers: the oracle keeps serving from memory even when this fails.
func (s *Storage) InsertPriceSnapshots(ctx context.Context, snapshots []types.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	docs := make([]any, len(snapshots))
	for i := range snapshots {
		if snapshots[i].FetchedAt.IsZero() {
			snapshots[i].FetchedAt = time.Now().UTC()
		}
		docs[i] = snapshots[i]
	}
	if _, err := s.snapshots.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert price snapshots: %w", err)
	}
	return nil
}

// PriceHistory returns snapshots for one token since the given time, oldest
// first, capped at 2000 points.
func (s *Storage) PriceHistory(ctx context.Context, token types.TokenSymbol, since time.Time) ([]types.PriceSnapshot, error) {
	filter := bson.M{
		"token":     token,
		"fetchedAt": bson.M{"$gte": since},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "fetchedAt", Value: 1}}).
		SetLimit(2000)

	cur, err := s.snapshots.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	var out []types.PriceSnapshot
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode price history: %w", err)
	}
	return out, nil
}
