package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"example.com/trainload/internal/config"
	"example.com/trainload/internal/domain"
	"example.com/trainload/internal/goals"
	"example.com/trainload/internal/ingest"
	"example.com/trainload/internal/lease"
	persistence "example.com/trainload/internal/persistence/postgres"
	"example.com/trainload/internal/strava"
	syncsvc "example.com/trainload/internal/sync"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = redisClient.Close() }()
	locker := lease.NewLocker(redisClient, 2*time.Minute)

	oauthCfg := strava.OAuthConfig{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		TokenURL:     cfg.StravaTokenURL,
	}
	sourceFactory := func(_ context.Context, profile *domain.AthleteProfile) (syncsvc.Source, error) {
		ts := strava.TokenSource(oauthCfg, profile, func(accessToken, refreshToken string, expiry time.Time) error {
			persistCtx, persistCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer persistCancel()
			return repos.Athletes.UpdateCredential(persistCtx, profile.ExternalID, accessToken, refreshToken, expiry)
		})
		return strava.NewClient(ts, strava.WithBaseURL(cfg.StravaBaseURL)), nil
	}

	syncer := syncsvc.NewService(repos.Activities, repos.Summaries, sourceFactory, locker, logger)
	tracker := goals.NewTracker(repos.Goals, repos.Activities, logger)
	handler := ingest.NewJobHandler(repos.Athletes, syncer, tracker, logger)

	policy := ingest.RetryPolicy{
		MaxAttempts:    cfg.JobMaxAttempts,
		BaseDelay:      cfg.JobRetryBaseDelay,
		AttemptTimeout: cfg.JobAttemptTimeout,
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		logger.Info("worker metrics listening", zap.String("address", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server error", zap.Error(err))
		}
	}()

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Each processor owns its reader; the shared group id spreads partitions
	// across them, so one slow athlete cannot stall the others.
	for i := 0; i < cfg.WorkerCount; i++ {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           cfg.IngestTopic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		proc := ingest.NewProcessor(reader, handler, repos.Jobs, policy, logger)

		wg.Add(1)
		go func(worker int, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			logger.Info("worker started",
				zap.Int("worker", worker),
				zap.String("topic", cfg.IngestTopic),
				zap.String("group", cfg.ConsumerGroupID))
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker stopped with error", zap.Int("worker", worker), zap.Error(err))
			}
		}(i, reader)
	}

	<-stop
	logger.Info("worker shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}

	wg.Wait()
}
