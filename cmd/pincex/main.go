package main

import (
	"context"
	stderrors "errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/pincex_spot/api"
	"github.com/Aidin1998/pincex_spot/internal/bookkeeper"
	"github.com/Aidin1998/pincex_spot/internal/cache"
	"github.com/Aidin1998/pincex_spot/internal/config"
	"github.com/Aidin1998/pincex_spot/internal/database"
	"github.com/Aidin1998/pincex_spot/internal/identities"
	"github.com/Aidin1998/pincex_spot/internal/telemetry"
	"github.com/Aidin1998/pincex_spot/internal/trading/coordination"
	"github.com/Aidin1998/pincex_spot/internal/trading/engine"
	"github.com/Aidin1998/pincex_spot/internal/trading/events"
	"github.com/Aidin1998/pincex_spot/internal/trading/lifecycle"
	"github.com/Aidin1998/pincex_spot/internal/trading/messaging"
	"github.com/Aidin1998/pincex_spot/internal/trading/orderqueue"
	"github.com/Aidin1998/pincex_spot/internal/trading/repository"
	"github.com/Aidin1998/pincex_spot/internal/trading/settlement"
	"github.com/Aidin1998/pincex_spot/internal/trading/trigger"
	"github.com/Aidin1998/pincex_spot/pkg/logger"
)

func main() {
	var paths []string
	if p := os.Getenv("PINCEX_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zapLogger); err != nil {
		zapLogger.Fatal("Server exited with error", zap.Error(err))
	}
	zapLogger.Info("Server exited properly")
}

func run(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.Setup(ctx, telemetry.Config{ServiceName: cfg.Tracing.ServiceName})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				zapLogger.Warn("Telemetry shutdown failed", zap.Error(err))
			}
		}()
	}

	symbols, err := cfg.Market.SymbolList()
	if err != nil {
		return err
	}
	commission, err := cfg.Market.Commission()
	if err != nil {
		return err
	}
	signup, err := cfg.Market.Signup()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database, zapLogger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	bus := events.NewInMemoryEventBus(zapLogger)

	var profiles cache.ProfileCache = cache.NopProfileCache{}
	if cfg.Redis.Enabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		redisCache := cache.NewRedisProfileCache(client, cfg.Redis.TTL, zapLogger)
		cache.NewInvalidator(redisCache, zapLogger).Attach(bus)
		profiles = redisCache
		zapLogger.Info("Profile cache enabled", zap.String("address", cfg.Redis.Address))
	}

	if cfg.Kafka.Enabled {
		kcfg := messaging.DefaultKafkaClientConfig()
		kcfg.Compression = cfg.Kafka.Compression
		kafkaClient := messaging.NewKafkaClient(zapLogger, cfg.Kafka.Brokers, cfg.Kafka.Topic, kcfg)
		defer kafkaClient.Close()
		if err := kafkaClient.IsHealthy(ctx); err != nil {
			zapLogger.Warn("Kafka not reachable, events will be retried by the writer", zap.Error(err))
		}
		events.NewKafkaSink(zapLogger, kafkaClient).Attach(bus)
		zapLogger.Info("Kafka event export enabled", zap.String("topic", kafkaClient.Topic()))
	}

	var queue orderqueue.Queue
	switch cfg.Queue.Driver {
	case "badger":
		bq, err := orderqueue.NewBadgerQueue(cfg.Queue.Path, zapLogger)
		if err != nil {
			return err
		}
		queue = bq
	default:
		queue = orderqueue.NewInMemoryQueue()
	}
	defer func() {
		if err := queue.Shutdown(context.Background()); err != nil {
			zapLogger.Warn("Match queue shutdown failed", zap.Error(err))
		}
	}()

	ledger := bookkeeper.NewService(zapLogger, db)
	orders := repository.NewGormOrderRepository(db, zapLogger)
	trades := repository.NewGormTradeRepository(db, zapLogger)
	locks := coordination.NewSymbolLocks()

	identitiesSvc := identities.NewService(zapLogger, db, ledger, bus, profiles, symbols, signup)
	lifecycleSvc := lifecycle.NewService(db, zapLogger, ledger, orders, bus, locks,
		lifecycle.NewBasicOrderValidator(symbols), lifecycle.PrecisionValidator{})
	settlementSvc := settlement.NewService(zapLogger, ledger, trades, commission)
	matcher := engine.NewMatchingEngine(db, zapLogger, orders, lifecycleSvc, settlementSvc, bus, locks)

	dispatcher := trigger.NewDispatcher(zapLogger, queue, orders, matcher)
	dispatcher.Attach(bus)
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}

	apiServer := api.NewServer(zapLogger, identitiesSvc, lifecycleSvc, orders, trades, api.Options{
		ServiceName:    cfg.Tracing.ServiceName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		zapLogger.Info("Shutting down server...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP shutdown failed", zap.Error(err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Dispatcher shutdown failed", zap.Error(err))
	}
	return nil
}
