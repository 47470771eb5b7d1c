package api

// Route constants for the API endpoints

const (
	// Health and observability endpoints
	HealthEndpoint  = "/health"  // GET: liveness with version, env, uptime
	MetricsEndpoint = "/metrics" // GET: prometheus collectors

	// Price endpoints
	TokenURLParam         = "token"                                     // URL parameter for token symbol
	PricesEndpoint        = "/api/prices"                               // GET: composite snapshot
	PriceEndpoint         = PricesEndpoint + "/{" + TokenURLParam + "}" // GET: single token
	PriceHistoryEndpoint  = PriceEndpoint + "/history"                  // GET: snapshots, ?hours=1..168
	PricesRefreshEndpoint = PricesEndpoint + "/refresh"                 // POST: force refresh (internal)

	// Offramp endpoints
	ReferenceURLParam     = "reference"                                       // URL parameter for swap reference
	OfframpBanksEndpoint  = "/api/offramp/banks"                              // GET: supported banks, fintech first
	OfframpRateEndpoint   = "/api/offramp/rate"                               // GET: live quote, ?token=&tokenAmount=
	LiquidityEndpoint     = "/api/offramp/liquidity"                          // GET: order ceiling, never the raw balance
	VerifyAccountEndpoint = "/api/offramp/verify-account"                     // POST: resolve bank account name
	OfframpInitEndpoint   = "/api/offramp/initialize"                         // POST: create pending offramp
	NotifyTxEndpoint      = "/api/offramp/notify-tx"                          // POST: attach chain tx, spawn watcher
	ConfirmEndpoint       = "/api/offramp/confirm-receipt"                    // POST: internal, x-internal-key gated
	LencoWebhookEndpoint  = "/api/offramp/lenco-webhook"                      // POST: payout provider webhook
	OfframpStatusEndpoint = "/api/offramp/status/{" + ReferenceURLParam + "}" // GET: single lookup
	OfframpHistory        = "/api/offramp/history"                            // GET: paged, ?address=&status=&token=

	// Onramp endpoints
	OnrampRateEndpoint     = "/api/onramp/rate"                               // GET: live quote, fee added
	OnrampInitEndpoint     = "/api/onramp/initialize"                         // POST: create pending onramp + checkout
	MonnifyWebhookEndpoint = "/api/onramp/monnify-webhook"                    // POST: payment provider webhook
	OnrampStatusEndpoint   = "/api/onramp/status/{" + ReferenceURLParam + "}" // GET: single lookup
	OnrampHistory          = "/api/onramp/history"                            // GET: paged

	// Generic transaction endpoints
	TransactionsEndpoint      = "/api/transactions"                                   // GET: filtered list, POST: internal create
	TransactionEndpoint       = TransactionsEndpoint + "/{" + ReferenceURLParam + "}" // GET: single record
	TransactionStatusEndpoint = TransactionEndpoint + "/status"                       // PATCH: internal status override
	TransactionStatsEndpoint  = TransactionsEndpoint + "/stats"                       // GET: per direction/status totals
)

// Headers carrying authentication material.
const (
	InternalKeyHeader      = "x-internal-key"    // internal endpoint gate
	LencoSignatureHeader   = "x-lenco-signature" // payout webhook HMAC
	MonnifySignatureHeader = "monnify-signature" // payment webhook HMAC
)

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	HealthEndpoint,
	MetricsEndpoint,
	PricesEndpoint,
}
