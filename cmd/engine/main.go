package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/config"
	"github.com/hiiliketocode/polycopy-sub018/internal/engine"
	"github.com/hiiliketocode/polycopy-sub018/internal/feed"
	"github.com/hiiliketocode/polycopy-sub018/internal/market"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/logger"
	"github.com/hiiliketocode/polycopy-sub018/internal/repository"
	"github.com/hiiliketocode/polycopy-sub018/internal/scheduler"
	"github.com/hiiliketocode/polycopy-sub018/internal/scorer"
	"github.com/hiiliketocode/polycopy-sub018/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)

	// Persistence. Postgres is the durable home for strategies,
	// positions, risk states and the ledger; without a DSN the engine
	// runs in paper mode on in-memory stores (with a Redis ledger when
	// one is configured, so dedup survives restarts).
	var (
		strategyStore engine.StrategyStore
		positionStore engine.PositionStore
		riskStore     engine.RiskStore
		ledger        engine.Ledger
		pgLedger      *repository.PostgresLedger
	)
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to db: %v", err)
		}
		logger.Info("connected to PostgreSQL")
		strategyStore = repository.NewPostgresStrategyStore(db)
		positionStore = repository.NewPostgresPositionStore(db)
		riskStore = repository.NewPostgresRiskStore(db)
		pgLedger = repository.NewPostgresLedger(db)
		ledger = pgLedger
	} else {
		logger.Warn("no database DSN configured, running paper mode on in-memory stores")
		strategyStore = repository.NewMemStrategyStore()
		positionStore = repository.NewMemPositionStore()
		riskStore = repository.NewMemRiskStore()
		ledger = repository.NewMemLedger()
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err != nil {
			logger.Error("failed to connect to Redis, keeping current ledger", "error", err)
		} else if cfg.Database.DSN == "" {
			logger.Info("connected to Redis, using redis ledger")
			ledger = repository.NewRedisLedger(redisClient, time.Duration(cfg.Redis.LedgerTTLSeconds)*time.Second)
		}
	}

	// External collaborators.
	signalFeed := feed.NewHTTPFeed(cfg.Feed)
	resolver := market.NewHTTPResolver(cfg.Markets)
	mlScorer := scorer.NewHTTPScorer(cfg.Scorer)

	var priceStream *market.PriceStream
	if cfg.Markets.StreamURL != "" {
		priceStream = market.NewPriceStream(cfg.Markets.StreamURL)
		priceStream.Start()
	}

	eng := engine.New(engine.Options{
		Strategies: strategyStore,
		Positions:  positionStore,
		Risk:       riskStore,
		Ledger:     ledger,
		Feed:       signalFeed,
		Resolver:   resolver,
		Scorer:     mlScorer,
		Stream:     priceStream,
		Lookback:   cfg.SignalLookbackDuration(),
		BatchSize:  cfg.Feed.BatchSize,

		DefaultSlippage: cfg.Engine.DefaultSlippage,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(ctx, eng)
	if err := sched.Register(cfg.Engine.EvalCron, cfg.Engine.ResolveCron); err != nil {
		log.Fatalf("Failed to register passes: %v", err)
	}
	if pgLedger != nil {
		// Ledger retention matches the Redis TTL so both flavors forget
		// a signal at the same age.
		retention := time.Duration(cfg.Redis.LedgerTTLSeconds) * time.Second
		err := sched.AddJob("0 0 4 * * *", "ledger cleanup", func() {
			if err := pgLedger.Cleanup(ctx, retention); err != nil {
				logger.LogError(ctx, err, "ledger cleanup failed")
			}
		})
		if err != nil {
			log.Fatalf("Failed to register ledger cleanup: %v", err)
		}
	}
	sched.Start()
	if cfg.Engine.RunOnStart {
		go sched.RunEvaluationNow()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.New(cfg, eng),
	}
	go func() {
		logger.Info("admin server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	sched.Stop()
	if priceStream != nil {
		priceStream.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
