package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auctionhub/coin-auction/internal/account"
	"github.com/auctionhub/coin-auction/internal/api"
	"github.com/auctionhub/coin-auction/internal/auction"
	"github.com/auctionhub/coin-auction/internal/balance"
	"github.com/auctionhub/coin-auction/internal/bidcache"
	"github.com/auctionhub/coin-auction/internal/clock"
	"github.com/auctionhub/coin-auction/internal/config"
	"github.com/auctionhub/coin-auction/internal/feed"
	"github.com/auctionhub/coin-auction/internal/health"
	"github.com/auctionhub/coin-auction/internal/leader"
	"github.com/auctionhub/coin-auction/internal/ledger"
	"github.com/auctionhub/coin-auction/internal/store"
	"github.com/auctionhub/coin-auction/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/auctionhub/coin-auction/internal/store/memstore"
	_ "github.com/auctionhub/coin-auction/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (postgres or memory).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to store", slog.String("driver", cfg.Database.Driver))

	// Optional ledger feed.
	var ledgerFeed ledger.Feed
	if cfg.Feed.Enabled {
		pub, feedErr := feed.Connect(ctx, cfg.Feed, logger)
		if feedErr != nil {
			return fmt.Errorf("connecting ledger feed: %w", feedErr)
		}
		defer func() {
			if closeErr := pub.Close(); closeErr != nil {
				logger.Error("ledger feed shutdown error", slog.Any("error", closeErr))
			}
		}()
		ledgerFeed = pub
	}

	// Optional current-bid cache.
	var cache *bidcache.Cache
	if cfg.Cache.Enabled {
		cache, err = bidcache.Connect(ctx, cfg.Cache)
		if err != nil {
			return fmt.Errorf("connecting bid cache: %w", err)
		}
		defer func() {
			if closeErr := cache.Close(); closeErr != nil {
				logger.Error("bid cache shutdown error", slog.Any("error", closeErr))
			}
		}()
	}

	// Wire the engine. Bids and settlements share one lock table so a
	// settlement never interleaves with a bid on the same auction.
	auth := balance.NewAuthority(repos.Users, logger, tp.TracerProvider)
	lw := ledger.NewWriter(repos.Transactions, ledgerFeed, logger, tp.TracerProvider)
	locks := auction.NewLockTable()
	engine := auction.NewEngine(repos.Auctions, repos.Users, auth, lw, locks,
		cfg.Engine.LockTimeout, cfg.Engine.BidRetries, logger, tp.TracerProvider, clk)
	sweeper := auction.NewSweeper(repos.Auctions, auth, lw, locks,
		cfg.Engine.SweepInterval, cfg.Engine.LockTimeout, logger, tp.TracerProvider, clk)
	accounts := account.NewManager(repos.Users, auth, lw, cfg.Account.WelcomeBonus, logger, tp.TracerProvider)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// Start the API server (runs on all replicas).
	srv := api.NewServer(engine, sweeper, accounts, lw, cache, healthHandler, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting api server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "api server error", slog.Any("error", listenErr))
		}
	}()

	healthHandler.SetReady(true)

	// startSweeper is the periodic settlement loop; with leader
	// election enabled only one replica runs it.
	startSweeper := func(ctx context.Context) {
		logger.InfoContext(ctx, "auctiond sweeping (leader)", slog.String("version", version))
		sweeper.Run(ctx)
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, startSweeper, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		go startSweeper(ctx)
		logger.InfoContext(ctx, "auctiond is running", slog.String("version", version))

		// Wait for shutdown signal.
		<-ctx.Done()
		logger.Info("shutting down...")
	}

	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
