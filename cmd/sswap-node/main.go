package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sswap/sswap-node/api"
	"github.com/sswap/sswap-node/engine"
	"github.com/sswap/sswap-node/indexer"
	"github.com/sswap/sswap-node/lenco"
	"github.com/sswap/sswap-node/liquidity"
	"github.com/sswap/sswap-node/log"
	"github.com/sswap/sswap-node/onramp"
	"github.com/sswap/sswap-node/oracle"
	"github.com/sswap/sswap-node/service"
	"github.com/sswap/sswap-node/stacks"
	"github.com/sswap/sswap-node/stacks/signer"
	"github.com/sswap/sswap-node/storage"
	"github.com/sswap/sswap-node/types"
)

// Services holds all the running services
type Services struct {
	Storage   *storage.Storage
	Refresher *service.PriceRefresher
	Reaper    *engine.Reaper
	Indexer   *indexer.Indexer
	API       *service.APIService
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting sswap-node", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}
	usdcContract := cfg.Stacks.USDCContractID()

	log.Infow("initializing storage", "database", cfg.Mongo.Database)
	store, err := storage.New(ctx, storage.Options{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	services.Storage = store

	prices := oracle.New(oracle.Config{
		APIURL:            cfg.Prices.URL,
		FreshTTL:          cfg.Prices.FreshTTL,
		StaleTTL:          cfg.Prices.StaleTTL,
		BaseBackoff:       cfg.Prices.BaseBackoff,
		EmergencyUSDToNGN: emergencyDecimal(cfg.Prices.EmergencyUSDNGN),
		EmergencySTXUSD:   emergencyDecimal(cfg.Prices.EmergencySTXUSD),
		EmergencyUSDCUSD:  emergencyDecimal(cfg.Prices.EmergencyUSDC),
	}, store)

	payouts := lenco.New(lenco.Config{
		BaseURL:       cfg.Lenco.URL,
		APIKey:        cfg.Lenco.APIKey,
		AccountID:     cfg.Lenco.AccountID,
		WebhookSecret: cfg.Lenco.WebhookSecret,
	})
	guard := liquidity.New(payouts, cfg.Lenco.MinBalanceNGN)

	log.Infow("initializing chain client",
		"network", cfg.Stacks.Network,
		"api", cfg.Stacks.ResolvedAPIURL(),
		"usdcContract", usdcContract)
	chain := stacks.New(stacks.Config{APIURL: cfg.Stacks.ResolvedAPIURL()})

	settlement := engine.New(engine.Config{
		DepositAddress: cfg.Stacks.PlatformAddress,
		USDCContractID: usdcContract,
		FeeNGN:         cfg.Offramp.FeeNGN,
		MinToken:       emergencyDecimal(cfg.Offramp.MinToken),
		MaxToken:       emergencyDecimal(cfg.Offramp.MaxToken),
		Expiry:         cfg.Offramp.Expiry,
		AmountPolicy:   cfg.Offramp.AmountPolicy,
		WatchInterval:  cfg.Offramp.WatchInterval,
		WatchAttempts:  cfg.Offramp.WatchAttempts,
	}, store, prices, payouts, chain, guard)

	apiConfig := &api.APIConfig{
		Host:           cfg.API.Host,
		Port:           cfg.API.Port,
		AllowedOrigin:  cfg.API.Origin,
		RateLimitMax:   cfg.API.RateLimit,
		InternalAPIKey: cfg.API.InternalKey,
		Environment:    cfg.Environment,
		Offramp:        settlement,
		Prices:         prices,
		Banks:          payouts,
		Store:          store,
	}

	if cfg.Monnify.Configured() {
		wallet, err := signer.New(signer.Config{
			BaseURL: cfg.Stacks.SignerURL,
			AuthKey: cfg.Stacks.SignerKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize signer client: %w", err)
		}
		payments := onramp.NewMonnifyClient(onramp.MonnifyConfig{
			BaseURL:      cfg.Monnify.URL,
			APIKey:       cfg.Monnify.APIKey,
			SecretKey:    cfg.Monnify.SecretKey,
			ContractCode: cfg.Monnify.ContractCode,
		})
		apiConfig.Onramp = onramp.New(onramp.Config{
			USDCContractID: usdcContract,
			FeeNGN:         cfg.Offramp.FeeNGN,
			MinToken:       emergencyDecimal(cfg.Offramp.MinToken),
			MaxToken:       emergencyDecimal(cfg.Offramp.MaxToken),
			Expiry:         cfg.Offramp.Expiry,
		}, store, prices, payments, wallet, chain)
		log.Info("onramp enabled")
	} else {
		log.Info("onramp disabled, Monnify credentials not configured")
	}

	log.Infow("starting price refresher", "interval", cfg.Prices.FreshTTL.String())
	services.Refresher = service.NewPriceRefresher(prices, cfg.Prices.FreshTTL)
	if err := services.Refresher.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start price refresher: %w", err)
	}

	log.Infow("starting expiry reaper", "interval", cfg.Offramp.ReapInterval.String())
	services.Reaper = engine.NewReaper(store, cfg.Offramp.ReapInterval)
	if err := services.Reaper.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start expiry reaper: %w", err)
	}

	log.Infow("starting deposit indexer",
		"platformAddress", cfg.Stacks.PlatformAddress,
		"pollInterval", cfg.Indexer.PollInterval.String())
	services.Indexer, err = indexer.New(indexer.Config{
		PlatformAddress: cfg.Stacks.PlatformAddress,
		USDCContractID:  usdcContract,
		PollInterval:    cfg.Indexer.PollInterval,
		PageSize:        cfg.Indexer.PageSize,
	}, chain, settlement)
	if err != nil {
		return nil, fmt.Errorf("failed to create deposit indexer: %w", err)
	}
	if err := services.Indexer.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start deposit indexer: %w", err)
	}

	log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port)
	services.API = service.NewAPI(apiConfig, false)
	if err := services.API.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start API service: %w", err)
	}

	log.Info("sswap-node is running, ready to process swaps!")
	return services, nil
}

// shutdownServices gracefully shuts down all services
func shutdownServices(services *Services) {
	if services == nil {
		return
	}

	// Stop services in reverse order of startup
	if services.API != nil {
		services.API.Stop()
	}
	if services.Indexer != nil {
		services.Indexer.Stop()
	}
	if services.Reaper != nil {
		services.Reaper.Stop()
	}
	if services.Refresher != nil {
		services.Refresher.Stop()
	}
	if services.Storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		services.Storage.Close(ctx)
	}
}

// emergencyDecimal parses an optional decimal setting, empty or invalid
// values select the component default.
func emergencyDecimal(s string) types.Decimal {
	if s == "" {
		return types.Decimal{}
	}
	d, err := types.DecimalFromString(s)
	if err != nil {
		log.Warnw("ignoring invalid decimal setting", "value", s, "error", err)
		return types.Decimal{}
	}
	return d
}
