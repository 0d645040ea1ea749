package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-engine/internal/api"
	"github.com/akylbek/payment-system/booking-engine/internal/clock"
	"github.com/akylbek/payment-system/booking-engine/internal/config"
	"github.com/akylbek/payment-system/booking-engine/internal/events"
	"github.com/akylbek/payment-system/booking-engine/internal/handlers"
	"github.com/akylbek/payment-system/booking-engine/internal/interfaces"
	"github.com/akylbek/payment-system/booking-engine/internal/lock"
	"github.com/akylbek/payment-system/booking-engine/internal/processor"
	"github.com/akylbek/payment-system/booking-engine/internal/repository"
	"github.com/akylbek/payment-system/booking-engine/internal/service"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

type stores struct {
	rooms        interfaces.RoomRepository
	reservations interfaces.ReservationRepository
	payments     interfaces.PaymentRepository
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, func(), error) {
	if cfg.StorageDriver == "memory" {
		telemetry.Logger.Warn("Using in-memory storage, data is lost on restart")
		return &stores{
			rooms:        repository.NewMemoryRoomRepository(),
			reservations: repository.NewMemoryReservationRepository(),
			payments:     repository.NewMemoryPaymentRepository(),
		}, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repository.InitDB(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	return &stores{
		rooms:        repository.NewRoomRepository(db),
		reservations: repository.NewReservationRepository(db),
		payments:     repository.NewPaymentRepository(db),
	}, func() { db.Close() }, nil
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("booking-engine", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Booking Engine", zap.String("storage", cfg.StorageDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		telemetry.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer closeStores()

	// Confirmation guard: Redis when configured, in-process otherwise
	var guard interfaces.Guard = lock.NewLocalGuard()
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			telemetry.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		guard = lock.NewRedisGuard(redisClient, "booking")
	}

	// State change events
	var sinks events.Fanout
	if cfg.KafkaBrokers != "" {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		sinks = append(sinks, kafkaPublisher)
	}
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()
		sinks = append(sinks, events.NewNatsPublisher(nc, cfg.NatsSubject))
	}
	var publisher interfaces.EventPublisher = events.NopPublisher{}
	if len(sinks) > 0 {
		publisher = sinks
	}

	if cfg.StripeAPIKey == "" {
		telemetry.Logger.Fatal("STRIPE_API_KEY is required")
	}
	stripe := processor.NewStripe(cfg.StripeAPIKey, cfg.StripeWebhookSecret)

	// Engines
	clk := clock.System{}
	locks := lock.NewKeyedMutex()
	catalog := service.NewCatalogService(st.rooms, st.reservations, locks, clk)
	oracle := service.NewAvailabilityOracle(st.rooms, st.reservations)
	reservations := service.NewReservationService(st.reservations, st.rooms, st.payments, oracle, locks, clk, publisher)
	payments := service.NewPaymentService(st.payments, st.reservations, stripe, guard, locks, clk, publisher, service.PaymentConfig{
		Currency:         cfg.PaymentCurrency,
		ProcessorTimeout: cfg.ProcessorTimeout,
		ConfirmLockTTL:   cfg.ConfirmLockTTL,
	})
	service.NewOrchestrator(reservations, payments, publisher)

	if cfg.KafkaBrokers != "" && cfg.KafkaSettlement != "" {
		consumer := events.NewSettlementConsumer(cfg.KafkaBrokers, cfg.KafkaSettlement, cfg.KafkaGroupID, payments)
		defer consumer.Close()
		go consumer.Run(ctx)
	}

	var webhooks handlers.WebhookParser
	if cfg.StripeWebhookSecret != "" {
		webhooks = stripe
	}

	// Setup HTTP server
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Services{
			Catalog:      catalog,
			Availability: oracle,
			Reservations: reservations,
			Payments:     payments,
			Webhooks:     webhooks,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Booking Engine starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	telemetry.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
	_ = telemetry.Logger.Sync()
}
