package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-bookings/internal/auth"
	"ms-bookings/internal/booking"
	booking_api "ms-bookings/internal/booking/api"
	booking_db "ms-bookings/internal/booking/db"
	booking_kafka "ms-bookings/internal/booking/kafka"
	"ms-bookings/internal/config"
	"ms-bookings/internal/database/migrations"
	"ms-bookings/internal/escrow"
	"ms-bookings/internal/idempotency"
	"ms-bookings/internal/kafka"
	"ms-bookings/internal/logger"
	"ms-bookings/internal/reputation"
	reputation_api "ms-bookings/internal/reputation/api"
	reputation_db "ms-bookings/internal/reputation/db"
	reputation_kafka "ms-bookings/internal/reputation/kafka"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func buildEscrowGateway(cfg config.EscrowConfig, log *logger.Logger) booking.EscrowGateway {
	if cfg.Provider == "stripe" {
		escrow.InitStripe()
		log.Info("ESCROW", "Using Stripe manual-capture escrow gateway")
		return escrow.NewStripeGateway(cfg.Currency)
	}
	log.Info("ESCROW", fmt.Sprintf("Using HTTP escrow gateway at %s", cfg.BaseURL))
	return escrow.NewHTTPGateway(cfg.BaseURL, cfg.Timeout)
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Booking Core initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	redisClient, err := idempotency.InitializeCache(cfg.Redis.Addr, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()

	var bookingEvents booking.EventPublisher
	var reputationEvents reputation.EventPublisher
	if cfg.Kafka.Enabled {
		requiredTopics := []string{cfg.Kafka.Topics.BookingStatus, cfg.Kafka.Topics.ReputationEvents}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}

		bookingPublisher := booking_kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingStatus)
		defer bookingPublisher.Close()
		reputationPublisher := reputation_kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topics.ReputationEvents)
		defer reputationPublisher.Close()

		bookingEvents = bookingPublisher
		reputationEvents = reputationPublisher
		log.Info("KAFKA", "Kafka publishers initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, status and reputation events will not be published")
	}

	reputationService := reputation.NewService(&reputation_db.DB{Bun: bunDB}, reputationEvents, log)

	bookingService := booking.NewService(
		&booking_db.DB{Bun: bunDB},
		buildEscrowGateway(cfg.Escrow, log),
		reputationService,
		bookingEvents,
		cfg.Booking.NoShowGrace,
		log,
	)

	bookingHandler := &booking_api.Handler{BookingService: bookingService}
	idemStore := idempotency.NewStore(redisClient, idempotency.DefaultWindow)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// The scheduler endpoint authenticates with its own service token, so it
	// stays outside the user auth group.
	r.Post("/internal/v1/bookings/{bookingId}/auto-confirm", bookingHandler.AutoConfirm)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Use(idempotency.Middleware(idemStore, log))
		log.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Route("/api/v1/bookings", func(r chi.Router) {
			r.Post("/", bookingHandler.CreateBooking)
			r.Get("/{bookingId}", bookingHandler.GetBooking)
			r.Get("/{bookingId}/history", bookingHandler.GetHistory)
			r.Post("/{bookingId}/transitions", bookingHandler.ApplyTransition)
		})
		log.Info("ROUTER", "Booking routes registered under /api/v1/bookings")
	})

	bookingServer := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	reputationHandler := reputation_api.NewHandler(reputationService, log)
	reputationHandler.RegisterRoutes(engine)

	reputationPort := os.Getenv("REPUTATION_PORT")
	if reputationPort == "" {
		reputationPort = ":8081"
	}
	reputationServer := &http.Server{
		Addr:         reputationPort,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", "🚀 Booking API running on "+cfg.Server.Port)
		if err := bookingServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	go func() {
		log.Info("HTTP", "🚀 Reputation API running on "+reputationPort)
		if err := reputationServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := bookingServer.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Booking server shutdown failed: %v", err))
	}
	if err := reputationServer.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Reputation server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Booking Core shutdown complete")
	}
}
