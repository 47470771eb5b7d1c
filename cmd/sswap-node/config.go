package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/sswap/sswap-node/config"
	"github.com/sswap/sswap-node/internal"
)

const (
	defaultNetwork       = "mainnet"
	defaultAPIHost       = "0.0.0.0"
	defaultAPIPort       = 3000
	defaultLogLevel      = "info"
	defaultLogOutput     = "stdout"
	defaultFreshTTL      = time.Minute
	defaultStaleTTL      = 5 * time.Minute
	defaultPollInterval  = 20 * time.Second
	defaultReapInterval  = time.Minute
	defaultWatchInterval = 5 * time.Second
	defaultWatchAttempts = 120
	defaultFeeNGN        = 100
	defaultBufferNGN     = 5_000
	defaultExpiry        = 30 * time.Minute
	defaultRateLimit     = 100
)

// Version is the build version, set at build time with -ldflags
var Version = internal.Version

// Config holds the application configuration
type Config struct {
	Environment string `mapstructure:"environment"`
	Mongo       MongoConfig
	API         APIConfig
	Log         LogConfig
	Prices      PricesConfig
	Stacks      StacksConfig
	Lenco       LencoConfig
	Monnify     MonnifyConfig
	Offramp     OfframpConfig
	Indexer     IndexerConfig
}

// MongoConfig holds the document store connection settings
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// APIConfig holds the HTTP server settings
type APIConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Origin      string `mapstructure:"origin"`
	RateLimit   int    `mapstructure:"ratelimit"`
	InternalKey string `mapstructure:"internalkey"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// PricesConfig holds the oracle settings
type PricesConfig struct {
	URL         string        `mapstructure:"url"`
	FreshTTL    time.Duration `mapstructure:"freshttl"`
	StaleTTL    time.Duration `mapstructure:"stalettl"`
	BaseBackoff time.Duration `mapstructure:"basebackoff"`

	EmergencyUSDNGN string `mapstructure:"emergencyusdngn"`
	EmergencySTXUSD string `mapstructure:"emergencystxusd"`
	EmergencyUSDC   string `mapstructure:"emergencyusdcusd"`
}

// StacksConfig holds the chain endpoints and the platform account
type StacksConfig struct {
	Network          string `mapstructure:"network"`
	APIURL           string `mapstructure:"url"`
	PlatformAddress  string `mapstructure:"platformaddress"`
	USDCContractAddr string `mapstructure:"usdccontractaddr"`
	USDCContractName string `mapstructure:"usdccontractname"`
	SignerURL        string `mapstructure:"signerurl"`
	SignerKey        string `mapstructure:"signerkey"`
}

// USDCContractID assembles the full SIP-010 contract id, applying the
// network defaults where no override is configured.
func (sc StacksConfig) USDCContractID() string {
	addr, name := sc.USDCContractAddr, sc.USDCContractName
	if chain, ok := config.DefaultChainConfig[sc.Network]; ok {
		if addr == "" {
			addr = chain.USDCContractAddr
		}
		if name == "" {
			name = chain.USDCContractName
		}
	}
	if addr == "" || name == "" {
		return ""
	}
	return addr + "." + name
}

// ResolvedAPIURL returns the configured Stacks API endpoint, falling back to
// the network default.
func (sc StacksConfig) ResolvedAPIURL() string {
	if sc.APIURL != "" {
		return sc.APIURL
	}
	if chain, ok := config.DefaultChainConfig[sc.Network]; ok {
		return chain.APIURL
	}
	return ""
}

// LencoConfig holds the payout provider settings
type LencoConfig struct {
	URL           string `mapstructure:"url"`
	APIKey        string `mapstructure:"apikey"`
	AccountID     string `mapstructure:"accountid"`
	WebhookSecret string `mapstructure:"webhooksecret"`
	MinBalanceNGN int64  `mapstructure:"minbalancengn"`
}

// MonnifyConfig holds the onramp payment collector settings. All-empty
// disables the onramp surface.
type MonnifyConfig struct {
	URL          string `mapstructure:"url"`
	APIKey       string `mapstructure:"apikey"`
	SecretKey    string `mapstructure:"secretkey"`
	ContractCode string `mapstructure:"contractcode"`
}

// Configured reports whether the onramp can be enabled.
func (mc MonnifyConfig) Configured() bool {
	return mc.APIKey != "" && mc.SecretKey != "" && mc.ContractCode != ""
}

// OfframpConfig holds the settlement tuning knobs shared by both swap
// directions
type OfframpConfig struct {
	FeeNGN        int64         `mapstructure:"feengn"`
	MinToken      string        `mapstructure:"mintoken"`
	MaxToken      string        `mapstructure:"maxtoken"`
	Expiry        time.Duration `mapstructure:"expiry"`
	AmountPolicy  string        `mapstructure:"amountpolicy"`
	WatchInterval time.Duration `mapstructure:"watchinterval"`
	WatchAttempts int           `mapstructure:"watchattempts"`
	ReapInterval  time.Duration `mapstructure:"reapinterval"`
}

// IndexerConfig holds the deposit scanner settings
type IndexerConfig struct {
	PollInterval time.Duration `mapstructure:"pollinterval"`
	PageSize     int           `mapstructure:"pagesize"`
}

// loadConfig loads configuration from flags, environment variables, and
// defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("mongo.database", "sswap")
	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("api.ratelimit", defaultRateLimit)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("prices.freshttl", defaultFreshTTL)
	v.SetDefault("prices.stalettl", defaultStaleTTL)
	v.SetDefault("stacks.network", defaultNetwork)
	v.SetDefault("lenco.minbalancengn", defaultBufferNGN)
	v.SetDefault("offramp.feengn", defaultFeeNGN)
	v.SetDefault("offramp.expiry", defaultExpiry)
	v.SetDefault("offramp.watchinterval", defaultWatchInterval)
	v.SetDefault("offramp.watchattempts", defaultWatchAttempts)
	v.SetDefault("offramp.reapinterval", defaultReapInterval)
	v.SetDefault("indexer.pollinterval", defaultPollInterval)

	flag.String("environment", "development", "deployment environment (development, production)")
	flag.String("mongo.uri", "", "MongoDB connection URI (required, MONGODB_URI)")
	flag.String("mongo.database", "sswap", "MongoDB database name")
	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port (PORT)")
	flag.String("api.origin", "", "allowed CORS origin (ALLOWED_ORIGIN), * when empty")
	flag.Int("api.ratelimit", defaultRateLimit, "maximum concurrent in-flight requests (RATE_LIMIT_MAX)")
	flag.String("api.internalkey", "", "secret gating confirm-receipt and admin endpoints (INTERNAL_API_KEY)")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.String("prices.url", "", "price source base URL (COINGECKO_API_URL)")
	flag.Duration("prices.freshttl", defaultFreshTTL, "price cache fresh TTL (PRICE_CACHE_TTL_MS)")
	flag.Duration("prices.stalettl", defaultStaleTTL, "price cache stale TTL (PRICE_STALE_TTL_MS)")
	flag.Duration("prices.basebackoff", 30*time.Second, "first backoff step after a price source 429 (PRICE_BASE_BACKOFF_MS)")
	flag.String("prices.emergencyusdngn", "", "emergency USD to NGN rate (EMERGENCY_USD_NGN)")
	flag.String("prices.emergencystxusd", "", "emergency STX price in USD (EMERGENCY_STX_USD)")
	flag.String("prices.emergencyusdcusd", "", "emergency USDC price in USD (EMERGENCY_USDC_USD)")
	flag.StringP("stacks.network", "n", defaultNetwork, fmt.Sprintf("Stacks network %v (STACKS_NETWORK)", config.AvailableNetworks))
	flag.String("stacks.url", "", "Stacks extended API URL, overrides the network default (STACKS_API_URL)")
	flag.String("stacks.platformaddress", "", "platform deposit address (PLATFORM_STX_ADDRESS)")
	flag.String("stacks.usdccontractaddr", "", "USDC contract principal, overrides the network default (USDC_CONTRACT_ADDRESS)")
	flag.String("stacks.usdccontractname", "", "USDC contract name, overrides the network default (USDC_CONTRACT_NAME)")
	flag.String("stacks.signerurl", "", "platform signer sidecar URL, enables onramp token sends")
	flag.String("stacks.signerkey", "", "platform signer sidecar auth key")
	flag.String("lenco.url", "", "Lenco API base URL")
	flag.String("lenco.apikey", "", "Lenco API key (LENCO_API_KEY)")
	flag.String("lenco.accountid", "", "Lenco platform account id (LENCO_ACCOUNT_ID)")
	flag.String("lenco.webhooksecret", "", "Lenco webhook HMAC secret (LENCO_WEBHOOK_SECRET)")
	flag.Int64("lenco.minbalancengn", defaultBufferNGN, "NGN float that must remain after covering an order (LENCO_MIN_BALANCE_NGN)")
	flag.String("monnify.url", "", "Monnify API base URL")
	flag.String("monnify.apikey", "", "Monnify API key (MONNIFY_API_KEY)")
	flag.String("monnify.secretkey", "", "Monnify secret key (MONNIFY_SECRET_KEY)")
	flag.String("monnify.contractcode", "", "Monnify contract code (MONNIFY_CONTRACT_CODE)")
	flag.Int64("offramp.feengn", defaultFeeNGN, "flat service fee in NGN (OFFRAMP_FLAT_FEE_NGN)")
	flag.String("offramp.mintoken", "", "smallest accepted order in whole tokens (OFFRAMP_MIN_TOKEN)")
	flag.String("offramp.maxtoken", "", "largest accepted order in whole tokens (OFFRAMP_MAX_TOKEN)")
	flag.Duration("offramp.expiry", defaultExpiry, "deposit and payment deadline")
	flag.String("offramp.amountpolicy", "flag", "delivered-amount mismatch policy (flag or reject)")
	flag.Duration("offramp.watchinterval", defaultWatchInterval, "deposit watcher poll period")
	flag.Int("offramp.watchattempts", defaultWatchAttempts, "deposit watcher iterations before giving up")
	flag.Duration("offramp.reapinterval", defaultReapInterval, "expired offramp sweep period")
	flag.Duration("indexer.pollinterval", defaultPollInterval, "chain scan period (INDEXER_POLL_INTERVAL_MS)")
	flag.Int("indexer.pagesize", 0, "transactions fetched per principal per scan")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sswap-node v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: sswap-node [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, SSWAP_MONGO_URI or SSWAP_LENCO_APIKEY\n")
		fmt.Fprintf(os.Stderr, "  The unprefixed variable names of the hosted deployment (shown in\n")
		fmt.Fprintf(os.Stderr, "  parentheses above) are also honored.\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Offramp-only node against mainnet\n")
		fmt.Fprintf(os.Stderr, "  sswap-node --mongo.uri=mongodb://localhost:27017 --lenco.apikey=... \\\n")
		fmt.Fprintf(os.Stderr, "    --lenco.accountid=... --stacks.platformaddress=SP2... --api.internalkey=...\n\n")
		fmt.Fprintf(os.Stderr, "  # Enable the onramp too\n")
		fmt.Fprintf(os.Stderr, "  sswap-node ... --monnify.apikey=... --monnify.secretkey=... \\\n")
		fmt.Fprintf(os.Stderr, "    --monnify.contractcode=... --stacks.signerurl=http://127.0.0.1:8801 --stacks.signerkey=...\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("SSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}
	if err := applyMillisecondEnv(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, nil
}

// bindLegacyEnv binds the unprefixed environment variable names of the
// original hosted deployment as aliases. The SSWAP_ prefixed form wins when
// both are set.
func bindLegacyEnv(v *viper.Viper) {
	for key, env := range map[string]string{
		"mongo.uri":               "MONGODB_URI",
		"api.port":                "PORT",
		"api.origin":              "ALLOWED_ORIGIN",
		"api.ratelimit":           "RATE_LIMIT_MAX",
		"api.internalkey":         "INTERNAL_API_KEY",
		"prices.url":              "COINGECKO_API_URL",
		"prices.emergencyusdngn":  "EMERGENCY_USD_NGN",
		"prices.emergencystxusd":  "EMERGENCY_STX_USD",
		"prices.emergencyusdcusd": "EMERGENCY_USDC_USD",
		"stacks.network":          "STACKS_NETWORK",
		"stacks.url":              "STACKS_API_URL",
		"stacks.platformaddress":  "PLATFORM_STX_ADDRESS",
		"stacks.usdccontractaddr": "USDC_CONTRACT_ADDRESS",
		"stacks.usdccontractname": "USDC_CONTRACT_NAME",
		"lenco.apikey":            "LENCO_API_KEY",
		"lenco.accountid":         "LENCO_ACCOUNT_ID",
		"lenco.webhooksecret":     "LENCO_WEBHOOK_SECRET",
		"lenco.minbalancengn":     "LENCO_MIN_BALANCE_NGN",
		"monnify.apikey":          "MONNIFY_API_KEY",
		"monnify.secretkey":       "MONNIFY_SECRET_KEY",
		"monnify.contractcode":    "MONNIFY_CONTRACT_CODE",
		"offramp.feengn":          "OFFRAMP_FLAT_FEE_NGN",
		"offramp.mintoken":        "OFFRAMP_MIN_TOKEN",
		"offramp.maxtoken":        "OFFRAMP_MAX_TOKEN",
	} {
		// only errors on an empty key
		_ = v.BindEnv(key, env)
	}
}

// applyMillisecondEnv maps the millisecond-granularity variables of the
// original hosted deployment onto the duration keys. The native flags take
// Go duration syntax, so these integers are converted explicitly.
func applyMillisecondEnv(v *viper.Viper) error {
	for env, key := range map[string]string{
		"PRICE_CACHE_TTL_MS":       "prices.freshttl",
		"PRICE_STALE_TTL_MS":       "prices.stalettl",
		"PRICE_BASE_BACKOFF_MS":    "prices.basebackoff",
		"INDEXER_POLL_INTERVAL_MS": "indexer.pollinterval",
	} {
		raw := os.Getenv(env)
		if raw == "" {
			continue
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid %s %q: expected positive milliseconds", env, raw)
		}
		v.Set(key, time.Duration(ms)*time.Millisecond)
	}
	return nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Mongo.URI == "" {
		return fmt.Errorf("mongo URI is required (use --mongo.uri or SSWAP_MONGO_URI)")
	}

	validNetwork := false
	for _, n := range config.AvailableNetworks {
		if cfg.Stacks.Network == n {
			validNetwork = true
			break
		}
	}
	if !validNetwork {
		return fmt.Errorf("invalid network %s, available networks: %v", cfg.Stacks.Network, config.AvailableNetworks)
	}

	if cfg.Lenco.APIKey == "" || cfg.Lenco.AccountID == "" {
		return fmt.Errorf("lenco API key and account id are required for payouts")
	}
	if cfg.Stacks.PlatformAddress == "" {
		return fmt.Errorf("platform Stacks address is required (use --stacks.platformaddress or SSWAP_STACKS_PLATFORMADDRESS)")
	}
	if cfg.Stacks.USDCContractID() == "" {
		return fmt.Errorf("no USDC contract configured for network %s", cfg.Stacks.Network)
	}
	if cfg.Monnify.Configured() && cfg.Stacks.SignerURL == "" {
		return fmt.Errorf("onramp requires the platform signer sidecar (use --stacks.signerurl)")
	}

	return nil
}
