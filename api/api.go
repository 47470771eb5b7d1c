/*
Package api is the HTTP surface of sswap-node. Every response travels in the
uniform envelope {success, data | message, code?}; handlers translate domain
sentinel errors into the numeric error catalog and never leak raw provider
messages in production.

The package talks to the engines through narrow interfaces so handlers can be
tested against fakes without a store or any upstream provider.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sswap/sswap-node/engine"
	"github.com/sswap/sswap-node/lenco"
	"github.com/sswap/sswap-node/log"
	"github.com/sswap/sswap-node/onramp"
	"github.com/sswap/sswap-node/storage"
	"github.com/sswap/sswap-node/types"
)

const (
	maxRequestBodyLog = 512     // Maximum length of request body to log
	maxWebhookBody    = 1 << 20 // Webhook bodies above 1 MiB are cut off
)

// Offramp is the settlement surface the API drives. *engine.Engine
// implements it.
type Offramp interface {
	Quote(ctx context.Context, token types.TokenSymbol, tokenAmount types.Decimal) (*engine.OfframpQuote, error)
	InitializeOfframp(ctx context.Context, req engine.InitOfframpRequest) (*engine.OfframpInstructions, error)
	NotifyTxBroadcast(ctx context.Context, reference, chainTxID string) (bool, error)
	ConfirmReceipt(ctx context.Context, req engine.ConfirmRequest) (engine.ConfirmOutcome, error)
	HandlePayoutWebhook(ctx context.Context, rawBody []byte, signature string) error
	Status(ctx context.Context, reference string) (*types.Transaction, error)
	History(ctx context.Context, filter storage.TransactionFilter) ([]*types.Transaction, error)
	Guard() engine.Liquidity
	DepositAddress() string
}

// Onramp is the fiat-in surface. *onramp.Engine implements it. May be nil
// when the onramp is not configured.
type Onramp interface {
	Quote(ctx context.Context, token types.TokenSymbol, tokenAmount types.Decimal) (*onramp.OnrampQuote, error)
	Initialize(ctx context.Context, req onramp.InitOnrampRequest) (*onramp.OnrampInstructions, error)
	HandlePaymentWebhook(ctx context.Context, rawBody []byte, signature string) error
	Status(ctx context.Context, reference string) (*types.Transaction, error)
	History(ctx context.Context, filter storage.TransactionFilter) ([]*types.Transaction, error)
}

// Prices is the oracle surface. *oracle.Oracle implements it.
type Prices interface {
	Current(ctx context.Context) (*types.PriceData, types.CacheFreshness)
	Refresh(ctx context.Context) (*types.PriceData, error)
	History(ctx context.Context, token types.TokenSymbol, hours int) ([]types.PriceSnapshot, error)
}

// Banks lists payable destination banks and resolves account names.
// *lenco.Client implements it.
type Banks interface {
	Banks(ctx context.Context) ([]lenco.Bank, error)
	ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*lenco.ResolvedAccount, error)
}

// Store is the read/admin persistence surface of the generic transaction
// endpoints. *storage.Storage implements it.
type Store interface {
	Transaction(ctx context.Context, reference string) (*types.Transaction, error)
	ConditionalUpdate(ctx context.Context, reference string, expected types.TxStatus, update storage.TransactionUpdate) (*types.Transaction, error)
	ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]*types.Transaction, error)
	Stats(ctx context.Context) ([]storage.TxStats, error)
}

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host           string
	Port           int
	AllowedOrigin  string // CORS origin, "*" when empty
	RateLimitMax   int    // concurrent in-flight requests, default 100
	InternalAPIKey string // gates confirm-receipt and admin endpoints
	Environment    string // "production" masks 5xx messages

	Offramp Offramp
	Onramp  Onramp // optional
	Prices  Prices
	Banks   Banks
	Store   Store
}

// API type represents the API HTTP server.
type API struct {
	router  *chi.Mux
	cfg     *APIConfig
	started time.Time
}

// New creates a new API instance with the given configuration and starts the
// HTTP server.
func New(conf *APIConfig) (*API, error) {
	a, err := NewRouter(conf)
	if err != nil {
		return nil, err
	}
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// NewRouter creates an API instance without binding a listener. Used by
// tests and by callers that manage the HTTP server themselves.
func NewRouter(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Offramp == nil || conf.Prices == nil || conf.Banks == nil || conf.Store == nil {
		return nil, fmt.Errorf("missing API dependencies")
	}
	Production = conf.Environment == "production"

	a := &API{cfg: conf, started: time.Now()}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", HealthEndpoint, "method", "GET")
	a.router.Get(HealthEndpoint, a.health)
	log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
	a.router.Get(MetricsEndpoint, promhttp.Handler().ServeHTTP)

	// price endpoints
	log.Infow("register handler", "endpoint", PricesEndpoint, "method", "GET")
	a.router.Get(PricesEndpoint, a.prices)
	log.Infow("register handler", "endpoint", PriceEndpoint, "method", "GET")
	a.router.Get(PriceEndpoint, a.price)
	log.Infow("register handler", "endpoint", PriceHistoryEndpoint, "method", "GET", "parameters", "hours")
	a.router.Get(PriceHistoryEndpoint, a.priceHistory)
	log.Infow("register handler", "endpoint", PricesRefreshEndpoint, "method", "POST")
	a.router.With(internalKeyMiddleware(a.cfg.InternalAPIKey)).
		Post(PricesRefreshEndpoint, a.refreshPrices)

	// offramp endpoints
	log.Infow("register handler", "endpoint", OfframpBanksEndpoint, "method", "GET")
	a.router.Get(OfframpBanksEndpoint, a.offrampBanks)
	log.Infow("register handler", "endpoint", OfframpRateEndpoint, "method", "GET", "parameters", "token,tokenAmount")
	a.router.Get(OfframpRateEndpoint, a.offrampRate)
	log.Infow("register handler", "endpoint", LiquidityEndpoint, "method", "GET")
	a.router.Get(LiquidityEndpoint, a.liquidity)
	log.Infow("register handler", "endpoint", VerifyAccountEndpoint, "method", "POST")
	a.router.Post(VerifyAccountEndpoint, a.verifyAccount)
	log.Infow("register handler", "endpoint", OfframpInitEndpoint, "method", "POST")
	a.router.Post(OfframpInitEndpoint, a.initializeOfframp)
	log.Infow("register handler", "endpoint", NotifyTxEndpoint, "method", "POST")
	a.router.Post(NotifyTxEndpoint, a.notifyTx)
	log.Infow("register handler", "endpoint", ConfirmEndpoint, "method", "POST")
	a.router.With(internalKeyMiddleware(a.cfg.InternalAPIKey)).
		Post(ConfirmEndpoint, a.confirmReceipt)
	log.Infow("register handler", "endpoint", LencoWebhookEndpoint, "method", "POST")
	a.router.Post(LencoWebhookEndpoint, a.lencoWebhook)
	log.Infow("register handler", "endpoint", OfframpStatusEndpoint, "method", "GET")
	a.router.Get(OfframpStatusEndpoint, a.offrampStatus)
	log.Infow("register handler", "endpoint", OfframpHistory, "method", "GET", "parameters", "address,status,token,limit,offset")
	a.router.Get(OfframpHistory, a.offrampHistory)

	// onramp endpoints (when configured)
	if a.cfg.Onramp != nil {
		log.Infow("register handler", "endpoint", OnrampRateEndpoint, "method", "GET", "parameters", "token,tokenAmount")
		a.router.Get(OnrampRateEndpoint, a.onrampRate)
		log.Infow("register handler", "endpoint", OnrampInitEndpoint, "method", "POST")
		a.router.Post(OnrampInitEndpoint, a.initializeOnramp)
		log.Infow("register handler", "endpoint", MonnifyWebhookEndpoint, "method", "POST")
		a.router.Post(MonnifyWebhookEndpoint, a.monnifyWebhook)
		log.Infow("register handler", "endpoint", OnrampStatusEndpoint, "method", "GET")
		a.router.Get(OnrampStatusEndpoint, a.onrampStatus)
		log.Infow("register handler", "endpoint", OnrampHistory, "method", "GET")
		a.router.Get(OnrampHistory, a.onrampHistory)
	}

	// generic transaction endpoints
	log.Infow("register handler", "endpoint", TransactionsEndpoint, "method", "GET")
	a.router.Get(TransactionsEndpoint, a.listTransactions)
	log.Infow("register handler", "endpoint", TransactionStatsEndpoint, "method", "GET")
	a.router.Get(TransactionStatsEndpoint, a.transactionStats)
	log.Infow("register handler", "endpoint", TransactionEndpoint, "method", "GET")
	a.router.Get(TransactionEndpoint, a.transaction)
	log.Infow("register handler", "endpoint", TransactionStatusEndpoint, "method", "PATCH")
	a.router.With(internalKeyMiddleware(a.cfg.InternalAPIKey)).
		Patch(TransactionStatusEndpoint, a.overrideStatus)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	origin := a.cfg.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	throttle := a.cfg.RateLimitMax
	if throttle <= 0 {
		throttle = 100
	}

	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", InternalKeyHeader, LencoSignatureHeader, MonnifySignatureHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(loggingMiddleware(maxRequestBodyLog))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(throttle))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}
