// Tradecore - event-driven execution core
//
// The runtime wires the message bus, execution cache, execution engine and
// account ledgers around a simulated venue driven by an external quote feed.
//
// Flow:
//   Feed → SimVenue (matching cores) → Engine → Cache / Accounts → Bus topics
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/tradecore/internal/account"
	"github.com/web3guy0/tradecore/internal/bus"
	"github.com/web3guy0/tradecore/internal/cache"
	"github.com/web3guy0/tradecore/internal/clock"
	"github.com/web3guy0/tradecore/internal/config"
	"github.com/web3guy0/tradecore/internal/engine"
	"github.com/web3guy0/tradecore/internal/feed"
	"github.com/web3guy0/tradecore/internal/metrics"
	"github.com/web3guy0/tradecore/internal/notify"
	"github.com/web3guy0/tradecore/internal/store"
	"github.com/web3guy0/tradecore/internal/venue"
)

const version = "1.2.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("trader", string(cfg.TraderID)).
		Str("venue", string(cfg.Venue)).
		Str("oms", string(cfg.OmsType)).
		Msg("🚀 Tradecore starting...")

	clk := clock.NewRealtime()

	// Durable store (optional).
	var db store.Database
	if cfg.DatabaseDSN != "" {
		gormDB, err := store.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open execution database")
		}
		db = gormDB
		defer gormDB.Close()
	}

	// Cache, loaded from the store, indexes rebuilt, then proven.
	execCache := cache.New(db)
	if db != nil {
		for _, load := range []func() error{
			execCache.CacheAccounts, execCache.CacheOrders, execCache.CachePositions,
		} {
			if err := load(); err != nil {
				log.Fatal().Err(err).Msg("Failed to load execution state")
			}
		}
		execCache.BuildIndex()
		if !execCache.CheckIntegrity() {
			log.Fatal().Msg("Cache integrity check failed after load")
		}
	}

	// Bootstrap the account ledger when the store had none.
	if _, ok := execCache.AccountForID(cfg.AccountID); !ok {
		acct, err := account.New(cfg.InitialAccountState(clk.NowNS()))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build account")
		}
		if m, isMargin := acct.(*account.MarginAccount); isMargin {
			m.SetDefaultLeverage(cfg.DefaultLeverage)
		}
		if err := execCache.AddAccount(acct); err != nil {
			log.Fatal().Err(err).Msg("Failed to cache account")
		}
	}

	reg := prometheus.NewRegistry()
	mx := metrics.New(reg)

	msgBus := bus.New()
	eng := engine.New(engine.Config{
		TraderID: cfg.TraderID,
		OmsType:  cfg.OmsType,
	}, msgBus, execCache, clk, mx)

	sim := venue.NewSim("SIM-EXEC", cfg.Venue, cfg.AccountID, clk, eng.Enqueue)
	if err := sim.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sim venue")
	}
	if err := eng.RegisterClient(sim); err != nil {
		log.Fatal().Err(err).Msg("Failed to register execution client")
	}
	if err := eng.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start engine")
	}
	eng.ReconcileState()

	// Quote feed drives the venue's matching cores.
	var quoteFeed *feed.WSFeed
	if cfg.FeedWSURL != "" {
		quoteFeed = feed.NewWSFeed(cfg.FeedWSURL, func(q feed.Quote) {
			sim.OnQuote(q.InstrumentID, q.Bid, q.Ask, q.Last)
		})
		quoteFeed.Start()
	}

	// Telegram notifier observes position/account topics.
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		notifier, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram notifier disabled")
		} else {
			notifier.Attach(msgBus)
		}
	}

	// Metrics endpoint.
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	// Block until shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("Shutting down...")

	if quoteFeed != nil {
		quoteFeed.Stop()
	}
	if err := eng.Stop(); err != nil {
		log.Error().Err(err).Msg("engine stop failed")
	}
	_ = sim.Stop()
	eng.Dispose()
	log.Info().Msg("👋 Tradecore stopped")
}
