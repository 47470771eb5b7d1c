package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/sswap/sswap-node/engine"
	"github.com/sswap/sswap-node/lenco"
	"github.com/sswap/sswap-node/liquidity"
	"github.com/sswap/sswap-node/onramp"
	"github.com/sswap/sswap-node/storage"
	"github.com/sswap/sswap-node/types"
)

const testInternalKey = "test-internal-key"

// envelope mirrors both response envelopes so a single decode covers success
// and failure bodies.
type envelope struct {
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data"`
	Message     string          `json:"message"`
	Code        string          `json:"code"`
	MaxOrderNGN *int64          `json:"maxOrderNgn"`
}

type fakeOfframp struct {
	quote      *engine.OfframpQuote
	quoteErr   error
	init       *engine.OfframpInstructions
	initErr    error
	already    bool
	notifyErr  error
	outcome    engine.ConfirmOutcome
	confirmErr error
	webhookErr error
	tx         *types.Transaction
	statusErr  error
	history    []*types.Transaction
	guard      *fakeGuard

	lastFilter storage.TransactionFilter
}

func (f *fakeOfframp) Quote(context.Context, types.TokenSymbol, types.Decimal) (*engine.OfframpQuote, error) {
	return f.quote, f.quoteErr
}

func (f *fakeOfframp) InitializeOfframp(context.Context, engine.InitOfframpRequest) (*engine.OfframpInstructions, error) {
	return f.init, f.initErr
}

func (f *fakeOfframp) NotifyTxBroadcast(context.Context, string, string) (bool, error) {
	return f.already, f.notifyErr
}

func (f *fakeOfframp) ConfirmReceipt(context.Context, engine.ConfirmRequest) (engine.ConfirmOutcome, error) {
	return f.outcome, f.confirmErr
}

func (f *fakeOfframp) HandlePayoutWebhook(context.Context, []byte, string) error {
	return f.webhookErr
}

func (f *fakeOfframp) Status(context.Context, string) (*types.Transaction, error) {
	return f.tx, f.statusErr
}

func (f *fakeOfframp) History(_ context.Context, filter storage.TransactionFilter) ([]*types.Transaction, error) {
	f.lastFilter = filter
	return f.history, nil
}

func (f *fakeOfframp) Guard() engine.Liquidity { return f.guard }
func (f *fakeOfframp) DepositAddress() string  { return "SP2PLATFORM0000000000000000000" }

type fakeGuard struct {
	max     int64
	buffer  int64
	unknown bool
}

func (f *fakeGuard) Check(_ context.Context, requiredNGN int64) liquidity.Result {
	switch {
	case f.unknown:
		return liquidity.Result{State: liquidity.StateUnknown}
	case requiredNGN > f.max:
		return liquidity.Result{
			State:        liquidity.StateInsufficient,
			AvailableNGN: f.max + f.buffer,
			ShortfallNGN: requiredNGN - f.max,
		}
	default:
		return liquidity.Result{State: liquidity.StateOk, AvailableNGN: f.max + f.buffer}
	}
}

func (f *fakeGuard) MaxOrderNGN(context.Context) (int64, bool) {
	if f.unknown {
		return 0, false
	}
	return f.max, true
}

func (f *fakeGuard) BufferNGN() int64 { return f.buffer }
func (f *fakeGuard) Invalidate()      {}

type fakePrices struct {
	data      *types.PriceData
	freshness types.CacheFreshness
	history   []types.PriceSnapshot
	refreshed int
}

func (f *fakePrices) Current(context.Context) (*types.PriceData, types.CacheFreshness) {
	return f.data, f.freshness
}

func (f *fakePrices) Refresh(context.Context) (*types.PriceData, error) {
	f.refreshed++
	return f.data, nil
}

func (f *fakePrices) History(context.Context, types.TokenSymbol, int) ([]types.PriceSnapshot, error) {
	return f.history, nil
}

type fakeBanks struct {
	banks      []lenco.Bank
	resolved   *lenco.ResolvedAccount
	resolveErr error
}

func (f *fakeBanks) Banks(context.Context) ([]lenco.Bank, error) { return f.banks, nil }

func (f *fakeBanks) ResolveAccount(context.Context, string, string) (*lenco.ResolvedAccount, error) {
	return f.resolved, f.resolveErr
}

type fakeTxStore struct {
	tx        *types.Transaction
	txErr     error
	list      []*types.Transaction
	stats     []storage.TxStats
	updateErr error

	lastExpected types.TxStatus
	lastUpdate   storage.TransactionUpdate
}

func (f *fakeTxStore) Transaction(context.Context, string) (*types.Transaction, error) {
	return f.tx, f.txErr
}

func (f *fakeTxStore) ConditionalUpdate(_ context.Context, _ string, expected types.TxStatus, update storage.TransactionUpdate) (*types.Transaction, error) {
	f.lastExpected = expected
	f.lastUpdate = update
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.tx, nil
}

func (f *fakeTxStore) ListTransactions(context.Context, storage.TransactionFilter) ([]*types.Transaction, error) {
	return f.list, nil
}

func (f *fakeTxStore) Stats(context.Context) ([]storage.TxStats, error) {
	return f.stats, nil
}

type testEnv struct {
	api     *API
	offramp *fakeOfframp
	prices  *fakePrices
	banks   *fakeBanks
	store   *fakeTxStore
}

func newTestAPI(c *qt.C) *testEnv {
	env := &testEnv{
		offramp: &fakeOfframp{guard: &fakeGuard{max: 15_000, buffer: 5_000}},
		prices: &fakePrices{
			data: &types.PriceData{
				Tokens: map[types.TokenSymbol]types.TokenPrice{
					types.TokenSTX: {NGN: types.MustDecimal("1847.35")},
				},
				USDToNGN: types.MustDecimal("1540"),
			},
			freshness: types.CacheFresh,
		},
		banks: &fakeBanks{banks: []lenco.Bank{{Code: "058", Name: "GTBank"}}},
		store: &fakeTxStore{},
	}
	a, err := NewRouter(&APIConfig{
		InternalAPIKey: testInternalKey,
		Offramp:        env.offramp,
		Prices:         env.prices,
		Banks:          env.banks,
		Store:          env.store,
	})
	c.Assert(err, qt.IsNil)
	env.api = a
	return env
}

// do runs a request through the router and decodes the envelope.
func do(c *qt.C, a *API, method, path string, body any, headers map[string]string) (int, envelope) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		c.Assert(err, qt.IsNil)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && json.Valid(rec.Body.Bytes()) {
		c.Assert(json.Unmarshal(rec.Body.Bytes(), &env), qt.IsNil)
	}
	return rec.Code, env
}

func internalHeaders() map[string]string {
	return map[string]string{InternalKeyHeader: testInternalKey}
}

func TestHealthEndpoint(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)

	code, resp := do(c, env.api, http.MethodGet, HealthEndpoint, nil, nil)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(resp.Success, qt.IsTrue)

	var health healthResponse
	c.Assert(json.Unmarshal(resp.Data, &health), qt.IsNil)
	c.Assert(health.Status, qt.Equals, "ok")
	c.Assert(health.Env, qt.Equals, "development")
}

func TestOfframpRate(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)
	env.offramp.quote = &engine.OfframpQuote{
		Token:     types.TokenSTX,
		NGNAmount: 184_635,
		FeeNGN:    100,
	}

	code, resp := do(c, env.api, http.MethodGet, OfframpRateEndpoint+"?token=stx&tokenAmount=100", nil, nil)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(resp.Success, qt.IsTrue)

	var quote engine.OfframpQuote
	c.Assert(json.Unmarshal(resp.Data, &quote), qt.IsNil)
	c.Assert(quote.NGNAmount, qt.Equals, int64(184_635))

	// unsupported token
	code, resp = do(c, env.api, http.MethodGet, OfframpRateEndpoint+"?token=DOGE&tokenAmount=100", nil, nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	c.Assert(resp.Success, qt.IsFalse)
	c.Assert(resp.Message, qt.Contains, "unsupported token")

	// malformed amount
	code, _ = do(c, env.api, http.MethodGet, OfframpRateEndpoint+"?token=STX&tokenAmount=abc", nil, nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)
}

func TestLiquidityEndpoint(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)

	code, resp := do(c, env.api, http.MethodGet, LiquidityEndpoint, nil, nil)
	c.Assert(code, qt.Equals, http.StatusOK)

	var liq liquidityResponse
	c.Assert(json.Unmarshal(resp.Data, &liq), qt.IsNil)
	c.Assert(liq.Available, qt.IsTrue)
	c.Assert(liq.MaxOrderNGN, qt.Equals, int64(15_000))
	c.Assert(liq.MinBufferNGN, qt.Equals, int64(5_000))

	env.offramp.guard.unknown = true
	_, resp = do(c, env.api, http.MethodGet, LiquidityEndpoint, nil, nil)
	c.Assert(json.Unmarshal(resp.Data, &liq), qt.IsNil)
	c.Assert(liq.Available, qt.IsFalse)
	c.Assert(liq.MaxOrderNGN, qt.Equals, int64(0))
}

func TestInitializeOfframpInsufficientLiquidity(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)
	env.offramp.initErr = &engine.InsufficientLiquidityError{
		RequiredNGN: 20_000,
		MaxOrderNGN: 15_000,
		HasMax:      true,
	}

	code, resp := do(c, env.api, http.MethodPost, OfframpInitEndpoint, engine.InitOfframpRequest{
		Token:         types.TokenSTX,
		TokenAmount:   types.MustDecimal("11"),
		SenderAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7",
		BankCode:      "058",
		AccountNumber: "0123456789",
	}, nil)
	c.Assert(code, qt.Equals, http.StatusServiceUnavailable)
	c.Assert(resp.Success, qt.IsFalse)
	c.Assert(resp.Code, qt.Equals, "INSUFFICIENT_LIQUIDITY")
	c.Assert(resp.MaxOrderNGN, qt.IsNotNil)
	c.Assert(*resp.MaxOrderNGN, qt.Equals, int64(15_000))
}

func TestInitializeOfframpCreated(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)
	env.offramp.init = &engine.OfframpInstructions{
		Transaction:    &types.Transaction{Reference: "SSWAP_OFFRAMP_TEST_12345678", Status: types.TxStatusPending},
		DepositAddress: env.offramp.DepositAddress(),
		Memo:           "SSWAP_OFFRAMP_TEST_12345678",
	}

	code, resp := do(c, env.api, http.MethodPost, OfframpInitEndpoint, engine.InitOfframpRequest{}, nil)
	c.Assert(code, qt.Equals, http.StatusCreated)
	c.Assert(resp.Success, qt.IsTrue)

	var out engine.OfframpInstructions
	c.Assert(json.Unmarshal(resp.Data, &out), qt.IsNil)
	c.Assert(out.Memo, qt.Equals, "SSWAP_OFFRAMP_TEST_12345678")
}

func TestConfirmReceiptInternalKeyGate(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)
	env.offramp.outcome = engine.OutcomePayoutInitiated
	body := engine.ConfirmRequest{Reference: "SSWAP_OFFRAMP_TEST_12345678"}

	// no key
	code, resp := do(c, env.api, http.MethodPost, ConfirmEndpoint, body, nil)
	c.Assert(code, qt.Equals, http.StatusUnauthorized)
	c.Assert(resp.Success, qt.IsFalse)

	// wrong key
	code, _ = do(c, env.api, http.MethodPost, ConfirmEndpoint, body,
		map[string]string{InternalKeyHeader: "nope"})
	c.Assert(code, qt.Equals, http.StatusUnauthorized)

	// right key
	code, resp = do(c, env.api, http.MethodPost, ConfirmEndpoint, body, internalHeaders())
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(resp.Success, qt.IsTrue)

	var out map[string]string
	c.Assert(json.Unmarshal(resp.Data, &out), qt.IsNil)
	c.Assert(out["outcome"], qt.Equals, string(engine.OutcomePayoutInitiated))
}

func TestInternalEndpointsDisabledWithoutKey(t *testing.T) {
	c := qt.New(t)
	env := &testEnv{
		offramp: &fakeOfframp{guard: &fakeGuard{}},
		prices:  &fakePrices{data: &types.PriceData{}},
		banks:   &fakeBanks{},
		store:   &fakeTxStore{},
	}
	a, err := NewRouter(&APIConfig{
		Offramp: env.offramp,
		Prices:  env.prices,
		Banks:   env.banks,
		Store:   env.store,
	})
	c.Assert(err, qt.IsNil)

	code, resp := do(c, a, http.MethodPost, ConfirmEndpoint, engine.ConfirmRequest{}, nil)
	c.Assert(code, qt.Equals, http.StatusServiceUnavailable)
	c.Assert(resp.Message, qt.Contains, "not configured")
}

func TestLencoWebhookSignatureRejected(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)
	env.offramp.webhookErr = engine.ErrInvalidSignature

	code, resp := do(c, env.api, http.MethodPost, LencoWebhookEndpoint,
		map[string]any{"event": "transfer.completed"},
		map[string]string{LencoSignatureHeader: "bad"})
	c.Assert(code, qt.Equals, http.StatusUnauthorized)
	c.Assert(resp.Success, qt.IsFalse)
}

func TestOfframpStatusNotFound(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)
	env.offramp.statusErr = storage.ErrNotFound

	code, resp := do(c, env.api, http.MethodGet, "/api/offramp/status/SSWAP_OFFRAMP_MISSING_00000000", nil, nil)
	c.Assert(code, qt.Equals, http.StatusNotFound)
	c.Assert(resp.Message, qt.Contains, "not found")
}

func TestVerifyAccount(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)
	env.banks.resolved = &lenco.ResolvedAccount{
		AccountNumber: "0123456789",
		AccountName:   "ADA LOVELACE",
		BankCode:      "058",
	}

	code, resp := do(c, env.api, http.MethodPost, VerifyAccountEndpoint,
		verifyAccountRequest{BankCode: "058", AccountNumber: "0123456789"}, nil)
	c.Assert(code, qt.Equals, http.StatusOK)

	var account lenco.ResolvedAccount
	c.Assert(json.Unmarshal(resp.Data, &account), qt.IsNil)
	c.Assert(account.AccountName, qt.Equals, "ADA LOVELACE")

	env.banks.resolveErr = lenco.ErrBankVerification
	code, resp = do(c, env.api, http.MethodPost, VerifyAccountEndpoint,
		verifyAccountRequest{BankCode: "058", AccountNumber: "0000000000"}, nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	c.Assert(resp.Message, qt.Contains, "verification failed")
}

func TestHistoryFilterParsing(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)

	code, _ := do(c, env.api, http.MethodGet,
		OfframpHistory+"?address=SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7&status=confirmed&token=stx&limit=10&page=3", nil, nil)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(env.offramp.lastFilter.Direction, qt.Equals, types.DirectionOfframp)
	c.Assert(env.offramp.lastFilter.Status, qt.Equals, types.TxStatusConfirmed)
	c.Assert(env.offramp.lastFilter.Token, qt.Equals, types.TokenSTX)
	c.Assert(env.offramp.lastFilter.Limit, qt.Equals, int64(10))
	c.Assert(env.offramp.lastFilter.Offset, qt.Equals, int64(20))
}

func TestOnrampRoutesAbsentWhenNotConfigured(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c) // Onramp is nil

	code, _ := do(c, env.api, http.MethodGet, OnrampRateEndpoint+"?token=STX&tokenAmount=1", nil, nil)
	c.Assert(code, qt.Equals, http.StatusNotFound)
}

type fakeOnramp struct {
	quote *onramp.OnrampQuote
	init  *onramp.OnrampInstructions
}

func (f *fakeOnramp) Quote(context.Context, types.TokenSymbol, types.Decimal) (*onramp.OnrampQuote, error) {
	return f.quote, nil
}

func (f *fakeOnramp) Initialize(context.Context, onramp.InitOnrampRequest) (*onramp.OnrampInstructions, error) {
	return f.init, nil
}

func (f *fakeOnramp) HandlePaymentWebhook(context.Context, []byte, string) error { return nil }

func (f *fakeOnramp) Status(context.Context, string) (*types.Transaction, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeOnramp) History(context.Context, storage.TransactionFilter) ([]*types.Transaction, error) {
	return nil, nil
}

func TestOnrampRoutesWhenConfigured(t *testing.T) {
	c := qt.New(t)
	ramp := &fakeOnramp{
		quote: &onramp.OnrampQuote{Token: types.TokenSTX, NGNAmount: 184_835, FeeNGN: 100},
		init: &onramp.OnrampInstructions{
			Transaction: &types.Transaction{Reference: "SSWAP_ONRAMP_TEST_12345678"},
			CheckoutURL: "https://checkout.example/pay/abc",
			NGNAmount:   184_835,
		},
	}
	a, err := NewRouter(&APIConfig{
		InternalAPIKey: testInternalKey,
		Offramp:        &fakeOfframp{guard: &fakeGuard{}},
		Onramp:         ramp,
		Prices:         &fakePrices{data: &types.PriceData{}},
		Banks:          &fakeBanks{},
		Store:          &fakeTxStore{},
	})
	c.Assert(err, qt.IsNil)

	code, resp := do(c, a, http.MethodGet, OnrampRateEndpoint+"?token=STX&tokenAmount=100", nil, nil)
	c.Assert(code, qt.Equals, http.StatusOK)

	var quote onramp.OnrampQuote
	c.Assert(json.Unmarshal(resp.Data, &quote), qt.IsNil)
	c.Assert(quote.NGNAmount, qt.Equals, int64(184_835))

	code, resp = do(c, a, http.MethodPost, OnrampInitEndpoint, onramp.InitOnrampRequest{}, nil)
	c.Assert(code, qt.Equals, http.StatusCreated)

	var out onramp.OnrampInstructions
	c.Assert(json.Unmarshal(resp.Data, &out), qt.IsNil)
	c.Assert(out.CheckoutURL, qt.Equals, "https://checkout.example/pay/abc")
}

func TestPricesEndpoints(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)

	code, resp := do(c, env.api, http.MethodGet, PricesEndpoint, nil, nil)
	c.Assert(code, qt.Equals, http.StatusOK)

	var prices pricesResponse
	c.Assert(json.Unmarshal(resp.Data, &prices), qt.IsNil)
	c.Assert(prices.Freshness, qt.Equals, types.CacheFreshName)

	code, _ = do(c, env.api, http.MethodGet, "/api/prices/stx", nil, nil)
	c.Assert(code, qt.Equals, http.StatusOK)

	code, _ = do(c, env.api, http.MethodGet, "/api/prices/DOGE", nil, nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	// refresh is internal-gated
	code, _ = do(c, env.api, http.MethodPost, PricesRefreshEndpoint, nil, nil)
	c.Assert(code, qt.Equals, http.StatusUnauthorized)

	code, _ = do(c, env.api, http.MethodPost, PricesRefreshEndpoint, nil, internalHeaders())
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(env.prices.refreshed, qt.Equals, 1)
}

func TestPriceHistoryBounds(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)

	code, _ := do(c, env.api, http.MethodGet, "/api/prices/STX/history?hours=200", nil, nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	code, _ = do(c, env.api, http.MethodGet, "/api/prices/STX/history?hours=48", nil, nil)
	c.Assert(code, qt.Equals, http.StatusOK)
}

func TestOverrideStatus(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)
	env.store.tx = &types.Transaction{Reference: "SSWAP_OFFRAMP_TEST_12345678", Status: types.TxStatusConfirmed}

	path := "/api/transactions/SSWAP_OFFRAMP_TEST_12345678/status"
	body := overrideStatusRequest{
		From:   types.TxStatusFailed,
		To:     types.TxStatusConfirmed,
		Reason: "payout confirmed manually with provider support",
	}

	// gated
	code, _ := do(c, env.api, http.MethodPatch, path, body, nil)
	c.Assert(code, qt.Equals, http.StatusUnauthorized)

	code, resp := do(c, env.api, http.MethodPatch, path, body, internalHeaders())
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(resp.Success, qt.IsTrue)
	c.Assert(env.store.lastExpected, qt.Equals, types.TxStatusFailed)
	c.Assert(env.store.lastUpdate.Status, qt.Equals, types.TxStatusConfirmed)
	c.Assert(env.store.lastUpdate.Meta["manualOverride"], qt.Equals, true)

	// reason is mandatory
	code, _ = do(c, env.api, http.MethodPatch, path,
		overrideStatusRequest{From: types.TxStatusFailed, To: types.TxStatusConfirmed}, internalHeaders())
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	// lost race maps onto the conflict error
	env.store.updateErr = storage.ErrNoTransition
	code, resp = do(c, env.api, http.MethodPatch, path, body, internalHeaders())
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	c.Assert(resp.Message, qt.Contains, "conflicting")
}

func TestTransactionEndpoints(t *testing.T) {
	c := qt.New(t)
	env := newTestAPI(c)
	env.store.list = []*types.Transaction{
		{Reference: "SSWAP_OFFRAMP_A_00000001"},
		{Reference: "SSWAP_ONRAMP_B_00000002"},
	}
	env.store.stats = []storage.TxStats{
		{Direction: types.DirectionOfframp, Status: types.TxStatusConfirmed, Count: 3, VolumeNGN: 500_000},
	}

	code, resp := do(c, env.api, http.MethodGet, TransactionsEndpoint, nil, nil)
	c.Assert(code, qt.Equals, http.StatusOK)

	var list struct {
		Transactions []*types.Transaction `json:"transactions"`
		Count        int                  `json:"count"`
	}
	c.Assert(json.Unmarshal(resp.Data, &list), qt.IsNil)
	c.Assert(list.Count, qt.Equals, 2)

	code, resp = do(c, env.api, http.MethodGet, TransactionStatsEndpoint, nil, nil)
	c.Assert(code, qt.Equals, http.StatusOK)

	var stats struct {
		Stats []storage.TxStats `json:"stats"`
	}
	c.Assert(json.Unmarshal(resp.Data, &stats), qt.IsNil)
	c.Assert(stats.Stats, qt.HasLen, 1)
	c.Assert(stats.Stats[0].VolumeNGN, qt.Equals, int64(500_000))
}

func TestProductionMasksServerErrors(t *testing.T) {
	c := qt.New(t)
	defer func() { Production = false }()

	env := &testEnv{
		offramp: &fakeOfframp{guard: &fakeGuard{}, statusErr: context.DeadlineExceeded},
		prices:  &fakePrices{data: &types.PriceData{}},
		banks:   &fakeBanks{},
		store:   &fakeTxStore{},
	}
	a, err := NewRouter(&APIConfig{
		Environment: "production",
		Offramp:     env.offramp,
		Prices:      env.prices,
		Banks:       env.banks,
		Store:       env.store,
	})
	c.Assert(err, qt.IsNil)

	code, resp := do(c, a, http.MethodGet, "/api/offramp/status/SSWAP_OFFRAMP_X_00000000", nil, nil)
	c.Assert(code, qt.Equals, http.StatusInternalServerError)
	c.Assert(resp.Message, qt.Equals, "internal server error")
	c.Assert(resp.Message, qt.Not(qt.Contains), "deadline")
}
