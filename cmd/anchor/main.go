package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kingdavid6336/stellar-anchor/internal/alert"
	"github.com/kingdavid6336/stellar-anchor/internal/chain"
	"github.com/kingdavid6336/stellar-anchor/internal/chain/bitcoin"
	"github.com/kingdavid6336/stellar-anchor/internal/chain/ratelimit"
	"github.com/kingdavid6336/stellar-anchor/internal/chain/stellar"
	"github.com/kingdavid6336/stellar-anchor/internal/config"
	"github.com/kingdavid6336/stellar-anchor/internal/horizon"
	"github.com/kingdavid6336/stellar-anchor/internal/policy"
	"github.com/kingdavid6336/stellar-anchor/internal/queue"
	"github.com/kingdavid6336/stellar-anchor/internal/rates"
	"github.com/kingdavid6336/stellar-anchor/internal/reconcile"
	"github.com/kingdavid6336/stellar-anchor/internal/store/postgres"
	"github.com/kingdavid6336/stellar-anchor/internal/tracing"
	"github.com/kingdavid6336/stellar-anchor/internal/worker"
)

const chainBitcoin = "bitcoin"

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var sinks []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		sinks = append(sinks, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		sinks = append(sinks, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(sinks) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, sinks...)
}

// buildWalletRegistry wires the Stellar adapter plus one external adapter per
// configured asset. Only bitcoin-backed assets are supported today; an asset
// naming an unknown chain is a deployment error.
func buildWalletRegistry(cfg *config.Config, assets *config.AssetRegistry, books bitcoin.AddressBook, accounts *horizon.Client, logger *slog.Logger) (*chain.Registry, error) {
	stellarAdapter := stellar.NewAdapter(accounts, cfg.Horizon.Account, assets, logger)
	registry := chain.NewRegistry(stellarAdapter)

	var btcAdapter *bitcoin.Adapter
	for _, code := range assets.Codes() {
		assetPolicy, err := assets.Get(code)
		if err != nil {
			return nil, err
		}
		switch assetPolicy.Chain {
		case chainBitcoin:
			if btcAdapter == nil {
				if cfg.Bitcoin.RPCURL == "" {
					return nil, fmt.Errorf("asset %q needs BTC_RPC_URL", code)
				}
				btcAdapter = bitcoin.NewAdapter(cfg.Bitcoin.RPCURL, books, logger)
				if cfg.Bitcoin.RPCRate > 0 {
					btcAdapter.SetRateLimiter(ratelimit.NewLimiter(cfg.Bitcoin.RPCRate, cfg.Bitcoin.RPCBurst, chainBitcoin))
				}
			}
			registry.RegisterExternal(code, btcAdapter)
		default:
			return nil, fmt.Errorf("asset %q references unsupported chain %q", code, assetPolicy.Chain)
		}
	}
	return registry, nil
}

func rateProviderIDs(assets *config.AssetRegistry) map[string]string {
	ids := make(map[string]string)
	for _, code := range assets.Codes() {
		assetPolicy, err := assets.Get(code)
		if err != nil {
			continue
		}
		if assetPolicy.RateProviderID != "" {
			ids[code] = assetPolicy.RateProviderID
		}
	}
	return ids
}

func runMetricsServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("metrics server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func main() {
	// Setup logger
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	assets, err := config.LoadAssets(cfg.Assets.Path)
	if err != nil {
		logger.Error("failed to load asset policies", "error", err, "path", cfg.Assets.Path)
		os.Exit(1)
	}

	logger.Info("starting anchor reconciler",
		"horizon", cfg.Horizon.URL,
		"account", cfg.Horizon.Account,
		"btc_rpc_configured", cfg.Bitcoin.RPCURL != "",
		"assets", assets.Codes(),
		"workers", cfg.Queue.Workers,
	)

	// Initialize OpenTelemetry tracing
	shutdownTracing, err := tracing.Init(context.Background(), "stellar-anchor", cfg.Tracing.OTLPEndpoint, cfg.Tracing.Insecure)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.OTLPEndpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.OTLPEndpoint)
	}

	// Connect to PostgreSQL
	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.RunMigrations(cfg.DB.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Create repositories
	ledger := postgres.NewTransactionRepo(db)
	mappings := postgres.NewMappingRepo(db)
	staging := postgres.NewStagingRepo(db)

	// Redis-backed job queue
	q, err := queue.NewRedis(queue.RedisConfig{
		URL:              cfg.Redis.URL,
		Namespace:        cfg.Queue.Namespace,
		BlockInterval:    cfg.Queue.BlockInterval,
		ScheduleInterval: cfg.Queue.ScheduleInterval,
		ClaimMinIdle:     cfg.Queue.ClaimMinIdle,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	alerter := buildAlerter(cfg, logger)

	accounts := horizon.NewClient(cfg.Horizon.URL, cfg.Horizon.Timeout, logger)

	wallets, err := buildWalletRegistry(cfg, assets, mappings, accounts, logger)
	if err != nil {
		logger.Error("failed to build wallet registry", "error", err)
		os.Exit(1)
	}

	rateSrc := rates.NewHTTPSource(cfg.Rates.URL, rateProviderIDs(assets), cfg.Rates.CacheTTL, cfg.Rates.Timeout, logger)

	engine := reconcile.NewEngine(reconcile.Deps{
		Wallets:  wallets,
		Rates:    rateSrc,
		Accounts: accounts,
		Assets:   assets,
		Policy:   policy.NewEngine(assets),
		Ledger:   ledger,
		Mappings: mappings,
		Staging:  staging,
		Forward:  q,
		JobOpts: queue.JobOptions{
			MaxAttempts:   cfg.Queue.MaxAttempts,
			RetryDelay:    cfg.Queue.RetryDelay,
			RetryDelayMax: cfg.Queue.RetryDelayMax,
		},
		Alerter: alerter,
		Logger:  logger,
	})

	pool := worker.NewPool(q, engine, cfg.Queue.Workers, alerter, logger)

	// Context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runMetricsServer(gCtx, cfg.Server.MetricsPort, logger)
	})

	g.Go(func() error {
		return pool.Run(gCtx)
	})

	// Signal handler
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("anchor reconciler exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("anchor reconciler shut down gracefully")
}
