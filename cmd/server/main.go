package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"warehouse/internal/config"
	"warehouse/internal/db"
	"warehouse/internal/domain"
	httpapi "warehouse/internal/http"
	"warehouse/internal/logger"
	"warehouse/internal/memstore"
	"warehouse/internal/metrics"
	"warehouse/internal/repository"
	"warehouse/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		_, _ = os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	m := metrics.New()

	var store service.Store
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on restart")
		store = memstore.New()
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			log.Fatal("database error", zap.Error(err))
		}
		defer pool.Close()
		if err := db.RunMigrations(ctx, pool, log); err != nil {
			log.Fatal("migration error", zap.Error(err))
		}
		store = repository.New(pool)
	}

	svc := service.New(store, log, m)
	if err := svc.EnsureDefaultCenters(ctx, centerSeeds(cfg.DefaultCenters)); err != nil {
		log.Fatal("default center init error", zap.Error(err))
	}
	router := httpapi.NewRouter(httpapi.NewHandler(svc), log, m)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("warehouse ledger listening",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Store),
			zap.String("env", cfg.AppEnv),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			log.Error("force close failed", zap.Error(closeErr))
		}
	}
}

func centerSeeds(seeds []config.CenterSeed) []domain.CenterInput {
	out := make([]domain.CenterInput, 0, len(seeds))
	for _, seed := range seeds {
		out = append(out, domain.CenterInput{
			Name:              seed.Name,
			CommissionPercent: seed.CommissionPercent,
			ShippingPolicy:    domain.ShippingManual,
		})
	}
	return out
}
