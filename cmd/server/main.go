package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/finbridge/ledger-service/internal/config"
	"github.com/finbridge/ledger-service/internal/db"
	"github.com/finbridge/ledger-service/internal/domain"
	"github.com/finbridge/ledger-service/internal/httpapi"
	"github.com/finbridge/ledger-service/internal/notify"
	"github.com/finbridge/ledger-service/internal/oracle"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to create database pool", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("database connection pool initialized")

	users := db.NewUserRepository(pool.Pool)
	portfolios := db.NewPortfolioRepository(pool.Pool)
	deposits := db.NewDepositRepository(pool.Pool)
	transfers := db.NewTransferRepository(pool.Pool)
	notifications := db.NewNotificationRepository(pool.Pool)
	txManager := db.NewTransactionManager(pool.Pool, logger)

	var rates domain.RateProvider = oracle.NewFrankfurterClient(cfg.Oracle.FrankfurterURL)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		rates = oracle.NewCachedRateProvider(rates, redisClient, cfg.Oracle.RatesCacheTTL, logger)
		logger.Info("rate cache enabled", zap.String("addr", cfg.Redis.Addr))
	}
	prices := oracle.NewBinanceClient(cfg.Oracle.BinanceURL)

	var dispatcher domain.Dispatcher
	if cfg.RabbitMQ.URL != "" {
		amqpDispatcher, err := notify.NewAMQPDispatcher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Fatal("failed to connect notification broker", zap.Error(err))
		}
		defer amqpDispatcher.Close()
		dispatcher = amqpDispatcher
	} else {
		dispatcher = notify.NewNoopDispatcher(logger)
		logger.Warn("RABBITMQ_URL not set, notifications will not be delivered")
	}

	fees := config.NetworkFees()
	names := config.CryptoNames()

	depositService := domain.NewDepositService(
		users, portfolios, deposits, notifications, txManager,
		rates, fees, names, dispatcher, logger,
	)
	transferService := domain.NewTransferService(
		users, portfolios, transfers, notifications, txManager,
		rates, prices, fees, names, dispatcher, logger,
	)
	logger.Info("domain services initialized")

	handler := httpapi.NewHandler(depositService, transferService)
	auth := httpapi.NewAuthenticator(cfg.JWTSecret)
	router := httpapi.NewRouter(handler, auth, logger)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("ledger-service HTTP server starting", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	logger.Info("HTTP server stopped")
}
