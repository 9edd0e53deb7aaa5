package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/analytics/analytics_api"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/config"
	"ms-storefront/internal/database"
	"ms-storefront/internal/database/migrations"
	"ms-storefront/internal/events"
	eventsdb "ms-storefront/internal/events/db"
	"ms-storefront/internal/events/events_api"
	"ms-storefront/internal/idempotency"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/order"
	orderdb "ms-storefront/internal/order/db"
	"ms-storefront/internal/order/order_api"
	"ms-storefront/internal/registration"
	registrationdb "ms-storefront/internal/registration/db"
	"ms-storefront/internal/registration/pass"
	"ms-storefront/internal/registration/registration_api"
	"ms-storefront/internal/server"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

func main() {
	log := logger.NewLogger("storefront")
	defer log.Close()

	log.Info("APP", "Starting storefront service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()
	prepareSchema(ctx, bunDB, cfg.Database, log)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer redisClient.Close()
	var idemStore idempotency.Store
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s, Idempotency-Key replay disabled: %v", cfg.Redis.Addr, err))
	} else {
		idemStore = idempotency.NewRedisStore(redisClient)
		log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))
	}

	var (
		orderPublisher order.EventPublisher
		regPublisher   registration.EventPublisher
	)
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		orderPublisher, regPublisher = producer, producer
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))
	} else {
		log.Warn("KAFKA", "Kafka disabled, domain events will not be published")
	}

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	orderService := order.NewOrderService(order.Deps{
		DB:        &orderdb.DB{Bun: bunDB, MaxTxAttempts: cfg.Database.MaxTxAttempts},
		Publisher: orderPublisher,
		Topics:    order.Topics{Status: cfg.Kafka.Topics.OrderStatus, Totals: cfg.Kafka.Topics.OrderTotals},
		Logger:    log,
	})
	registrationService := registration.NewRegistrationService(registration.Deps{
		DB:        &registrationdb.DB{Bun: bunDB, MaxTxAttempts: cfg.Database.MaxTxAttempts},
		Publisher: regPublisher,
		Topics:    registration.Topics{Status: cfg.Kafka.Topics.RegistrationStatus, Seats: cfg.Kafka.Topics.EventSeats},
		Passes:    pass.NewGenerator(cfg.QRSecret),
		Logger:    log,
	})
	eventService := events.NewEventService(&eventsdb.DB{Bun: bunDB, MaxTxAttempts: cfg.Database.MaxTxAttempts}, log, nil, nil)

	router := server.NewRouter(server.Handlers{
		Orders:        order_api.NewHandler(orderService, log),
		Registrations: registration_api.NewHandler(registrationService, log),
		Events:        events_api.NewHandler(eventService, log),
		Analytics:     analytics_api.NewHandler(analytics.NewService(bunDB), log),
	}, server.Options{
		Verifier:       verifier,
		AdminRole:      cfg.Auth.AdminRole,
		Idempotency:    idemStore,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
		RateLimit:      cfg.RateLimit,
		Health:         bunDB.PingContext,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Storefront service running on %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Storefront service shutdown complete")
	}
}

// prepareSchema runs SQL migrations on postgres and creates tables directly on sqlite.
func prepareSchema(ctx context.Context, db *bun.DB, cfg config.DatabaseConfig, log *logger.Logger) {
	if !cfg.AutoMigrate {
		log.Info("MIGRATE", "Auto-migrate disabled")
		return
	}
	if cfg.Driver == "sqlite" {
		if err := database.CreateSchema(ctx, db); err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("Create schema failed: %v", err))
		}
		return
	}

	// The runner closes its handle, so it gets a connection of its own.
	migrationDB, err := database.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	runner := migrations.NewRunner(migrationDB, migrations.Options{Dir: cfg.MigrationsDir}, log)
	defer func() {
		if err := runner.Close(); err != nil {
			log.Warn("MIGRATE", fmt.Sprintf("Closing migrator: %v", err))
		}
	}()
	if err := runner.Up(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Migration failed: %v", err))
	}
	log.Info("MIGRATE", "Schema is up to date")
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	switch {
	case cfg.OIDCIssuer != "":
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	case cfg.DevJWTSecret != "":
		return auth.NewHS256Verifier(cfg.DevJWTSecret), nil
	default:
		return nil, errors.New("set OIDC_ISSUER or DEV_JWT_SECRET")
	}
}
