package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kelontongpos/internal/cache"
	"kelontongpos/internal/catalog"
	"kelontongpos/internal/config"
	"kelontongpos/internal/httpapi"
	"kelontongpos/internal/inventory"
	"kelontongpos/internal/logger"
	"kelontongpos/internal/payment"
	"kelontongpos/internal/sales"
	"kelontongpos/internal/store"
	"kelontongpos/internal/store/memory"
	"kelontongpos/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting POS engine",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("terminal", cfg.POS.TerminalID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo store.Repository
	if cfg.Database.URL != "" {
		pg, err := postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal("Failed to connect to postgres", zap.Error(err))
		}
		defer func() { _ = pg.Close() }()
		if err := pg.Migrate(); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}
		log.Info("Database migrations completed")
		repo = pg
	} else {
		log.Info("No DATABASE_URL configured, using seeded in-memory store")
		repo = memory.NewSeeded()
	}

	var productCache cache.ProductCache = cache.NoopProductCache{}
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisProductCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("Redis unreachable, product cache disabled", zap.Error(err))
		} else {
			defer func() { _ = redisCache.Close() }()
			productCache = redisCache
		}
	}

	cat := catalog.New(repo, productCache, cfg.POS.CacheTTL(), log)
	inv := inventory.New(repo, log)
	payments := payment.NewProcessor(
		payment.NewSimulatedGateway("card"),
		payment.NewSimulatedGateway("mobile"),
		cfg.POS.ChargeTimeout(),
		log,
	)
	engine := sales.NewEngine(repo, inv, payments, log)

	api := httpapi.New(cat, inv, engine, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan bool, 1)
	go func() {
		<-ctx.Done()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
		done <- true
	}()

	log.Info("Server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	<-done
	log.Info("Graceful shutdown complete")
}
