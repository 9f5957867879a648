package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/checkout-engine/internal/api"
	"github.com/example/checkout-engine/internal/auth"
	"github.com/example/checkout-engine/internal/config"
	"github.com/example/checkout-engine/internal/domain/checkout"
	"github.com/example/checkout-engine/internal/domain/pricing"
	"github.com/example/checkout-engine/internal/domain/reservation"
	"github.com/example/checkout-engine/internal/infrastructure/collab"
	"github.com/example/checkout-engine/internal/infrastructure/kafka"
	"github.com/example/checkout-engine/internal/infrastructure/store"
	"github.com/example/checkout-engine/internal/reclaim"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "checkout-api").Logger()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		logger.Fatal().Msg("JWT_SECRET must be at least 32 characters long")
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
	if err := pgStore.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	if cfg.Dynamo.LedgerTable != "" {
		sink, err := store.NewDynamoLedgerSink(ctx, cfg.Dynamo.LedgerTable)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize dynamo ledger sink")
		}
		pgStore.SetLedgerSink(sink)
		logger.Info().Str("table", cfg.Dynamo.LedgerTable).Msg("inventory ledger mirrored to DynamoDB")
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	coordinator := pricing.NewCoordinator(pricing.NewRateTableTax(), pricing.NewTieredShipping(nil), logger)
	ledger := reservation.NewLedger(logger, nil)

	manager := checkout.NewManager(checkout.ManagerConfig{
		Store:     pgStore,
		Carts:     collab.NewPostgresCartReader(db),
		Addresses: collab.NewPostgresAddressResolver(db),
		Pricing:   coordinator,
		Ledger:    ledger,
		Publisher: producer,
		TTL:       cfg.Checkout.SessionTTL.Std(),
	}, logger)

	jwtService := auth.NewJWTService(cfg.JWTSecret, 15*time.Minute)
	router := api.NewRouter(api.RouterConfig{
		Handlers:   api.NewHandlers(manager, logger),
		JWTService: jwtService,
		Logger:     logger,
	})

	// In-process sweep. Disable and run cmd/reclaimer instead when multiple
	// API instances share the database without the Redis lock.
	if cfg.Reclaim.Enabled {
		worker := reclaim.NewWorker(reclaim.WorkerConfig{
			Sessions:  pgStore.Sessions(),
			Releaser:  manager,
			Scheduler: &reclaim.TickerScheduler{Interval: cfg.Reclaim.Interval.Std()},
			Batch:     cfg.Reclaim.Batch,
			Parallel:  cfg.Reclaim.Parallel,
		}, logger)
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("reclaim worker stopped")
			}
		}()
	}

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("server started")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
