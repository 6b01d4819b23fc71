package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chat-router/internal/common/logging"
	"chat-router/internal/config"
	"chat-router/internal/fanout"
	"chat-router/internal/handlers"
	"chat-router/internal/metrics"
	"chat-router/internal/redis"
	"chat-router/internal/router"
	"chat-router/internal/routing"
	"chat-router/internal/server"
	"chat-router/internal/signature"
	"chat-router/internal/storage/postgres"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.NewZapLogger(logging.LogConfig{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Prefix: "chat-router",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	redisClient, err := redis.NewClient(&redis.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		logger.Error("failed to connect to Redis", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := postgres.NewAdapter(startCtx, cfg.DatabaseURL, redisClient, logger)
	cancelStart()
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", err)
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.New()
	registry := routing.NewRegistry(store, cfg.DestinationAllowlist, cfg.DestinationCacheTTL, logger)
	dispatcher := fanout.NewDispatcher(cfg.FanoutTimeout, logger, m)
	service := router.New(store, registry, dispatcher, router.Options{
		RateLimitWindowSeconds: cfg.RateLimitWindowSeconds,
		RateLimitMaxMessages:   cfg.RateLimitMaxMessages,
	}, logger, m)

	verifier := signature.NewVerifier(cfg.AppSecret, logger)
	h := handlers.New(verifier, service, store, cfg, logger, m)

	srv := server.New(h.Routes(), cfg.Port)

	errCh := make(chan error, 1)
	srv.Start(errCh)
	logger.Info("server started",
		logging.String("port", cfg.Port),
		logging.Bool("routerEnabled", cfg.RouterEnabled),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server failed", err)
		os.Exit(1)
	case sig := <-quit:
		logger.Info("shutting down", logging.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", err)
	}

	// Let in-flight fanout deliveries settle before the process exits.
	if err := service.Drain(ctx); err != nil {
		logger.Warn("fanout drain incomplete", logging.String("error", err.Error()))
	}

	logger.Info("server exited")
}
