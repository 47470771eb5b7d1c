package storage

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/sswap/sswap-node/types"
	"github.com/sswap/sswap-node/util"
)

// testStorage connects to the MongoDB given by MONGODB_URI, using a random
// database name so parallel runs never collide. Tests are skipped when no
// instance is available.
func testStorage(t *testing.T) *Storage {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	ctx := context.Background()
	s, err := New(ctx, Options{URI: uri, Database: "sswap_test_" + util.RandomHex(4)})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func testTransaction() *types.Transaction {
	return &types.Transaction{
		Reference:     types.NewReference(types.DirectionOfframp),
		Token:         types.TokenSTX,
		Direction:     types.DirectionOfframp,
		TokenAmount:   types.MustDecimal("100"),
		NGNAmount:     64900,
		FeeNGN:        100,
		RateAtTime:    types.MustDecimal("650"),
		SenderAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7",
		Status:        types.TxStatusPending,
		BankDetails: &types.BankDetails{
			AccountNumber: "0123456789",
			BankCode:      "50211",
			AccountName:   "ADA OBI",
		},
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
}

func TestReferenceIndex(t *testing.T) {
	c := qt.New(t)
	s := testStorage(t)
	ctx := context.Background()

	cursor, err := s.transactions.Indexes().List(ctx)
	c.Assert(err, qt.IsNil)
	var indexes []struct {
		Key    map[string]any `bson:"key"`
		Unique bool           `bson:"unique"`
		Sparse bool           `bson:"sparse"`
	}
	c.Assert(cursor.All(ctx, &indexes), qt.IsNil)

	found := false
	for _, idx := range indexes {
		if _, ok := idx.Key["reference"]; !ok {
			continue
		}
		found = true
		c.Assert(idx.Unique, qt.IsTrue)
		c.Assert(idx.Sparse, qt.IsTrue)
	}
	c.Assert(found, qt.IsTrue, qt.Commentf("reference index must exist"))
}

func TestCreateAndFetchTransaction(t *testing.T) {
	c := qt.New(t)
	s := testStorage(t)
	ctx := context.Background()

	tx := testTransaction()
	c.Assert(s.CreateTransaction(ctx, tx), qt.IsNil)
	c.Assert(s.CreateTransaction(ctx, tx), qt.ErrorIs, ErrAlreadyExists)

	got, err := s.Transaction(ctx, tx.Reference)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, types.TxStatusPending)
	c.Assert(got.TokenAmount.String(), qt.Equals, "100")
	c.Assert(got.BankDetails.AccountName, qt.Equals, "ADA OBI")

	_, err = s.Transaction(ctx, "SSWAP_OFFRAMP_UNKNOWN_DEADBEEF")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestConditionalUpdate(t *testing.T) {
	c := qt.New(t)
	s := testStorage(t)
	ctx := context.Background()

	tx := testTransaction()
	c.Assert(s.CreateTransaction(ctx, tx), qt.IsNil)

	updated, err := s.ConditionalUpdate(ctx, tx.Reference, types.TxStatusPending, TransactionUpdate{
		Status:    types.TxStatusProcessing,
		ChainTxID: "0xabc123",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(updated.Status, qt.Equals, types.TxStatusProcessing)
	c.Assert(updated.ChainTxID, qt.Equals, "0xabc123")

	// a second transition from pending must fail, the record moved on
	_, err = s.ConditionalUpdate(ctx, tx.Reference, types.TxStatusPending, TransactionUpdate{
		Status: types.TxStatusProcessing,
	})
	c.Assert(err, qt.ErrorIs, ErrNoTransition)

	// unknown reference behaves the same way
	_, err = s.ConditionalUpdate(ctx, "SSWAP_OFFRAMP_NOPE_DEADBEEF", types.TxStatusPending, TransactionUpdate{
		Status: types.TxStatusProcessing,
	})
	c.Assert(err, qt.ErrorIs, ErrNoTransition)
}

func TestConditionalUpdateRace(t *testing.T) {
	c := qt.New(t)
	s := testStorage(t)
	ctx := context.Background()

	tx := testTransaction()
	c.Assert(s.CreateTransaction(ctx, tx), qt.IsNil)

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConditionalUpdate(ctx, tx.Reference, types.TxStatusPending, TransactionUpdate{
				Status: types.TxStatusProcessing,
			})
			if err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	c.Assert(count, qt.Equals, 1, qt.Commentf("exactly one racer must win the transition"))
}

func TestFailExpired(t *testing.T) {
	c := qt.New(t)
	s := testStorage(t)
	ctx := context.Background()

	expired := testTransaction()
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	c.Assert(s.CreateTransaction(ctx, expired), qt.IsNil)

	alive := testTransaction()
	c.Assert(s.CreateTransaction(ctx, alive), qt.IsNil)

	n, err := s.FailExpired(ctx, time.Now(), "offramp expired")
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, int64(1))

	got, err := s.Transaction(ctx, expired.Reference)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, types.TxStatusFailed)
	c.Assert(got.Meta.String(types.MetaFailureReason), qt.Equals, "offramp expired")

	got, err = s.Transaction(ctx, alive.Reference)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, types.TxStatusPending)
}

func TestListTransactions(t *testing.T) {
	c := qt.New(t)
	s := testStorage(t)
	ctx := context.Background()

	first := testTransaction()
	c.Assert(s.CreateTransaction(ctx, first), qt.IsNil)

	second := testTransaction()
	second.Token = types.TokenUSDC
	second.SenderAddress = "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE"
	c.Assert(s.CreateTransaction(ctx, second), qt.IsNil)

	all, err := s.ListTransactions(ctx, TransactionFilter{})
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 2)

	bySender, err := s.ListTransactions(ctx, TransactionFilter{Address: first.SenderAddress})
	c.Assert(err, qt.IsNil)
	c.Assert(bySender, qt.HasLen, 1)
	c.Assert(bySender[0].Reference, qt.Equals, first.Reference)

	byToken, err := s.ListTransactions(ctx, TransactionFilter{Token: types.TokenUSDC})
	c.Assert(err, qt.IsNil)
	c.Assert(byToken, qt.HasLen, 1)
	c.Assert(byToken[0].Reference, qt.Equals, second.Reference)
}
