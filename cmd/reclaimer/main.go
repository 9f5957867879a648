package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/checkout-engine/internal/config"
	"github.com/example/checkout-engine/internal/domain/checkout"
	"github.com/example/checkout-engine/internal/domain/pricing"
	"github.com/example/checkout-engine/internal/domain/reservation"
	"github.com/example/checkout-engine/internal/infrastructure/collab"
	"github.com/example/checkout-engine/internal/infrastructure/kafka"
	"github.com/example/checkout-engine/internal/infrastructure/redis"
	"github.com/example/checkout-engine/internal/infrastructure/store"
	"github.com/example/checkout-engine/internal/reclaim"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "checkout-reclaimer").Logger()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()
	logger.Info().Msg("connected to PostgreSQL")

	pgStore := store.NewPostgresStore(db, logger)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	coordinator := pricing.NewCoordinator(pricing.NewRateTableTax(), pricing.NewTieredShipping(nil), logger)
	manager := checkout.NewManager(checkout.ManagerConfig{
		Store:     pgStore,
		Carts:     collab.NewPostgresCartReader(db),
		Addresses: collab.NewPostgresAddressResolver(db),
		Pricing:   coordinator,
		Ledger:    reservation.NewLedger(logger, nil),
		Publisher: producer,
		TTL:       cfg.Checkout.SessionTTL.Std(),
	}, logger)

	var scheduler reclaim.Scheduler
	switch cfg.Reclaim.Scheduler {
	case "kafka":
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.SweepTopic, "checkout-reclaimer", logger)
		defer consumer.Close()
		scheduler = &reclaim.KafkaScheduler{Consumer: consumer}
		logger.Info().Str("topic", cfg.Kafka.SweepTopic).Msg("sweep triggered by Kafka")
	default:
		scheduler = &reclaim.TickerScheduler{Interval: cfg.Reclaim.Interval.Std()}
		logger.Info().Dur("interval", cfg.Reclaim.Interval.Std()).Msg("sweep on fixed interval")
	}

	var lock reclaim.Locker
	if cfg.Reclaim.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Reclaim.RedisAddr})
		defer client.Close()
		lock = redis.NewLock(client, cfg.Reclaim.LockKey, cfg.Reclaim.LockTTL.Std())
		logger.Info().Str("key", cfg.Reclaim.LockKey).Msg("sweep leader lock enabled")
	}

	worker := reclaim.NewWorker(reclaim.WorkerConfig{
		Sessions:  pgStore.Sessions(),
		Releaser:  manager,
		Scheduler: scheduler,
		Lock:      lock,
		Batch:     cfg.Reclaim.Batch,
		Parallel:  cfg.Reclaim.Parallel,
	}, logger)

	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("reclaim worker stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down...")
	cancel()
}
