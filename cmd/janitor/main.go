package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/trainload/internal/config"
	"example.com/trainload/internal/ingest"
	persistence "example.com/trainload/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := persistence.NewPool(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	repos := persistence.NewRepositories(pool)

	janitor := ingest.NewJanitor(repos.Jobs, ingest.JanitorConfig{
		Interval:           cfg.JanitorInterval,
		CompletedRetention: cfg.CompletedRetention,
		CompletedKeep:      cfg.CompletedKeep,
		FailedRetention:    cfg.FailedRetention,
		FailedKeep:         cfg.FailedKeep,
		StuckClaimAfter:    cfg.StuckClaimAfter,
	}, logger)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		logger.Info("janitor metrics listening", zap.String("address", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server error", zap.Error(err))
		}
	}()

	go janitor.Start(ctx)
	logger.Info("janitor started", zap.Duration("interval", cfg.JanitorInterval))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("janitor shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}

	janitor.Wait()
}
