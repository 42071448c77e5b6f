// Package main is the entry point for the tradedesk dashboard daemon. It
// owns the local session record, keeps quote and wallet caches fresh by
// polling the upstream exchange API, and serves dashboard state plus a live
// event stream to the browser UI.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/tradedesk/internal/clientdata"
	"github.com/aristath/tradedesk/internal/clients/exchange"
	"github.com/aristath/tradedesk/internal/config"
	"github.com/aristath/tradedesk/internal/database"
	"github.com/aristath/tradedesk/internal/events"
	"github.com/aristath/tradedesk/internal/market"
	"github.com/aristath/tradedesk/internal/refresh"
	"github.com/aristath/tradedesk/internal/server"
	"github.com/aristath/tradedesk/internal/session"
	"github.com/aristath/tradedesk/internal/trading"
	"github.com/aristath/tradedesk/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting tradedesk")

	// session.db holds the single durable session record; cache.db holds
	// re-fetchable upstream responses and can be lost without harm.
	sessionDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "session.db"),
		Profile: database.ProfileSession,
		Name:    "session",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session database")
	}
	defer sessionDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	store := session.NewStore(sessionDB.Conn(), log)
	if err := store.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session schema")
	}

	cacheRepo := clientdata.NewRepository(cacheDB.Conn())
	if err := cacheRepo.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache schema")
	}

	bus := events.NewBus(log)
	navigator := server.NewBusNavigator(bus, log)
	guard := session.NewGuard(store, navigator, bus, log)

	client := exchange.NewClient(cfg.ExchangeAPIURL, cacheRepo, log)

	quotes := market.NewQuoteCache(client, cfg.StableSymbol, bus, log)
	wallet := market.NewWalletCache(client, bus, log)
	validator := trading.NewValidator(quotes, wallet, cfg.StableSymbol)
	tradingService := trading.NewService(client, validator, wallet, bus, log)

	scheduler := refresh.NewScheduler(log)

	// Periodic sweep of expired cache rows; the schedule lives for the
	// whole process, unlike the per-view ones the SSE stream manages.
	scheduler.Start("cache_cleanup", time.Hour, func(ctx context.Context) {
		deleted, err := cacheRepo.DeleteAllExpired()
		if err != nil {
			log.Warn().Err(err).Msg("Cache cleanup failed")
			return
		}
		for table, n := range deleted {
			if n > 0 {
				log.Debug().Str("table", table).Int64("deleted", n).Msg("Expired cache rows removed")
			}
		}
	})

	srv := server.New(server.Config{
		Log:       log,
		Cfg:       cfg,
		Guard:     guard,
		Client:    client,
		Quotes:    quotes,
		Wallet:    wallet,
		Trading:   tradingService,
		Scheduler: scheduler,
		Bus:       bus,
		SessionDB: sessionDB,
		CacheDB:   cacheDB,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	log.Info().
		Int("port", cfg.Port).
		Str("exchange_api", cfg.ExchangeAPIURL).
		Strs("symbols", cfg.QuoteSymbols).
		Dur("poll_interval", cfg.PollInterval).
		Msg("tradedesk ready")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	scheduler.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
