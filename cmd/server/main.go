// Command server runs the swap layer HTTP API: wallet provisioning, tweet
// parsing and swap execution against a Uniswap V3 deployment.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	_ "github.com/lib/pq"

	app "github.com/apetweet-labs/swap_layer/internal/app"
	"github.com/apetweet-labs/swap_layer/internal/app/httpapi"
	"github.com/apetweet-labs/swap_layer/internal/app/metrics"
	"github.com/apetweet-labs/swap_layer/internal/app/services/swaps"
	"github.com/apetweet-labs/swap_layer/internal/app/services/tweets"
	"github.com/apetweet-labs/swap_layer/internal/app/storage"
	"github.com/apetweet-labs/swap_layer/internal/app/storage/postgres"
	"github.com/apetweet-labs/swap_layer/internal/chain"
	"github.com/apetweet-labs/swap_layer/internal/config"
	"github.com/apetweet-labs/swap_layer/internal/custody"
	"github.com/apetweet-labs/swap_layer/internal/middleware"
	"github.com/apetweet-labs/swap_layer/internal/platform/migrations"
	"github.com/apetweet-labs/swap_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "listen address override (host:port)")
	auditPath := flag.String("audit-log", "", "optional JSONL file for the swap audit trail")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}).WithField("component", "server")

	if err := run(cfg, *addr, *auditPath, log); err != nil {
		log.WithError(err).Errorf("server exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, addrOverride, auditPath string, log *logger.Logger) error {
	walletStore, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	backend, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("dial chain rpc: %w", err)
	}
	defer backend.Close()

	chainClient := chain.NewClient(backend, chain.Config{
		Factory:        common.HexToAddress(cfg.Chain.FactoryAddress),
		Quoter:         common.HexToAddress(cfg.Chain.QuoterAddress),
		Router:         common.HexToAddress(cfg.Chain.RouterAddress),
		WETH:           common.HexToAddress(cfg.Chain.WETHAddress),
		PollInterval:   cfg.Chain.ReceiptPollInterval,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout,
	}, log)

	custodyClient := custody.New(custody.Config{
		BaseURL:   cfg.Custody.BaseURL,
		AppID:     cfg.Custody.AppID,
		AppSecret: cfg.Custody.AppSecret,
		Timeout:   cfg.Custody.Timeout,
	})

	verifier, err := custody.NewTokenVerifier(cfg.Custody.VerificationKey, cfg.Custody.AppID)
	if err != nil {
		return fmt.Errorf("custody token verifier: %w", err)
	}

	var extractor tweets.Extractor
	switch cfg.Extractor.Mode {
	case "model":
		extractor = tweets.NewModelExtractor(cfg.Extractor.Endpoint, cfg.Extractor.APIKey, cfg.Extractor.Model, log)
	default:
		extractor = tweets.StubExtractor{Address: cfg.Extractor.StubAddress}
	}

	application, err := app.New(app.Stores{Wallets: walletStore}, app.Dependencies{
		WalletProvider: custodyClient,
		Chain:          chainClient,
		TxSender:       custodyClient,
		Extractor:      extractor,
		SwapOptions: swaps.Options{
			ChainID:           cfg.Chain.ChainID,
			SlippageBps:       cfg.Swap.SlippageToleranceBps,
			ExecutionDeadline: cfg.Swap.ExecutionDeadline,
		},
		DemoAmountWei: cfg.Extractor.DemoAmountWei,
	}, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	api, err := httpapi.NewHandlerWithOptions(application, httpapi.Options{AuditLogPath: auditPath})
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	auth := middleware.NewAuthMiddleware(verifier, log, []string{"/parse-tweet", "/healthz", "/metrics"})
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	limiter.StartCleanup(5 * time.Minute)
	cors := middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins)
	tracing := middleware.NewTracingMiddleware(log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", api)

	// auth wraps the limiter so authenticated callers are limited per user,
	// not per source address
	var handler http.Handler = mux
	handler = limiter.Handler(handler)
	handler = auth.Handler(handler)
	handler = cors.Handler(handler)
	handler = tracing.Handler(handler)
	handler = metrics.InstrumentHandler(handler)

	addr := addrOverride
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", addr, err)
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Infof("server stopped")
	return nil
}

// openStore connects to Postgres when a DSN is configured, applying pending
// migrations, and falls back to the in-memory store otherwise.
func openStore(cfg *config.Config, log *logger.Logger) (storage.WalletStore, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warnf("no database configured, wallet records are in-memory only")
		return nil, nil, nil
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Database.Migrate {
		if err := migrations.Apply(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	log.Infof("connected to postgres")
	return postgres.New(db), func() { db.Close() }, nil
}
