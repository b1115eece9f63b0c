package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"pmgate/internal/alerting"
	"pmgate/internal/api"
	"pmgate/internal/audit"
	"pmgate/internal/config"
	"pmgate/internal/database"
	"pmgate/internal/drawdown"
	"pmgate/internal/engine"
	"pmgate/internal/execution"
	"pmgate/internal/forecast"
	"pmgate/internal/logging"
	"pmgate/internal/market"
	"pmgate/internal/monitoring"
	"pmgate/internal/portfolio"
	"pmgate/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		live       = flag.Bool("live", false, "enable live order placement")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	mainLog := logging.Component(logger, "main")
	mainLog.WithFields(logrus.Fields{
		"env":  cfg.App.Env,
		"live": *live,
	}).Info("starting pmgate")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	alerts := alerting.NewManager(&alerting.Config{
		WebhookURL:    cfg.Alerting.WebhookURL,
		Timeout:       cfg.Alerting.Timeout,
		RetryCount:    cfg.Alerting.RetryCount,
		RetryInterval: cfg.Alerting.RetryInterval,
	}, logging.Component(logger, "alerting"), registry)
	alerts.Start()
	defer alerts.Stop()

	// State store: Redis when configured, in-memory otherwise. Paper runs
	// without Redis lose state across restarts, which the drawdown
	// controller treats as a fresh start.
	var st store.Store
	var redisStore *store.RedisStore
	if cfg.Redis.Enabled {
		redisStore, err = store.NewRedisStore(&store.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			mainLog.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisStore.Close()
		st = redisStore
	} else {
		mainLog.Warn("redis disabled, state will not survive restarts")
		st = store.NewMemoryStore()
	}

	// Audit storage: Postgres when configured, in-memory otherwise.
	var storage audit.Storage
	if cfg.Database.Enabled {
		db, err := database.NewConnection(&cfg.Database)
		if err != nil {
			mainLog.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()
		if err := database.Migrate(db, "migrations"); err != nil {
			mainLog.WithError(err).Fatal("failed to run migrations")
		}
		storage = audit.NewPostgresStorage(db.DB)
	} else {
		mainLog.Warn("database disabled, audit records held in memory only")
		storage = audit.NewMemoryStorage()
	}

	trail := audit.NewTrail(storage, logging.Component(logger, "audit"), registry)
	trail.Start()
	defer trail.Stop()

	pf := portfolio.NewManager(cfg.Engine.InitialBankrollUSD, st, logging.Component(logger, "portfolio"))
	pfRestoreErr := pf.Restore(ctx)

	dd := drawdown.NewController(&cfg.Drawdown, pf.Snapshot().EquityUSD(), st, alerts,
		logging.Component(logger, "drawdown"))
	if err := dd.Restore(ctx); err != nil {
		mainLog.WithError(err).Error("drawdown restore failed, conservative posture engaged")
	}
	if pfRestoreErr != nil {
		mainLog.WithError(pfRestoreErr).Error("portfolio restore failed, conservative posture engaged")
		dd.EngageConservative(ctx, "portfolio state restore failed")
	}

	// Forecast source: the Redis queue when available, otherwise an empty
	// static source so a local run starts cleanly.
	var source forecast.Source
	if redisStore != nil {
		source = forecast.NewRedisQueue(redisStore.Client(), cfg.Engine.ForecastQueue)
	} else {
		source = forecast.NewStaticSource()
	}

	// Order book source: live feed when configured; without one the engine
	// falls back to books synthesized from forecast quotes.
	var books market.BookSource = market.StaticBooks{}
	if cfg.Engine.FeedURL != "" {
		feed := market.NewFeed(cfg.Engine.FeedURL, logging.Component(logger, "feed"))
		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				mainLog.WithError(err).Error("market feed stopped")
			}
		}()
		books = feed
	}

	// Only the paper placer ships today; a venue adapter slots in here.
	placer := execution.NewPaperPlacer(books)
	if *live {
		mainLog.Warn("live flag set but no venue adapter configured, orders stay on paper")
	}

	mgr := config.NewManager(*configPath, cfg, 10*time.Second, logging.Component(logger, "config"))
	go func() {
		if err := mgr.Watch(ctx); err != nil && ctx.Err() == nil {
			mainLog.WithError(err).Error("config watcher stopped")
		}
	}()

	eng := engine.New(engine.Options{
		Config:    mgr,
		LiveFlag:  *live,
		Portfolio: pf,
		Drawdown:  dd,
		Source:    source,
		Books:     books,
		Placer:    placer,
		Trail:     trail,
		Notifier:  alerts,
		Metrics:   metrics,
		Logger:    logging.Component(logger, "engine"),
	})
	if err := eng.Start(); err != nil {
		mainLog.WithError(err).Fatal("failed to start engine")
	}

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(&cfg.API, eng, dd, pf, storage, registry,
			logging.Component(logger, "api"))
		go func() {
			if err := server.Start(); err != nil {
				mainLog.WithError(err).Error("api server stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	mainLog.WithField("signal", sig.String()).Info("shutting down")

	cancel()
	eng.Stop()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			mainLog.WithError(err).Error("api shutdown failed")
		}
	}
	mainLog.Info("shutdown complete")
}
