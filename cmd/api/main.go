package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"example.com/trainload/internal/api"
	"example.com/trainload/internal/auth"
	"example.com/trainload/internal/config"
	"example.com/trainload/internal/domain"
	"example.com/trainload/internal/goals"
	"example.com/trainload/internal/ingest"
	"example.com/trainload/internal/lease"
	"example.com/trainload/internal/load"
	persistence "example.com/trainload/internal/persistence/postgres"
	"example.com/trainload/internal/recovery"
	"example.com/trainload/internal/strava"
	syncsvc "example.com/trainload/internal/sync"
	httptransport "example.com/trainload/internal/transport/http"
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

	if err := persistence.RunMigrations(cfg.PostgresURL); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

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

	syncer := syncsvc.NewService(repos.Activities, repos.Summaries, sourceFactory, locker, logger,
		syncsvc.WithPageSize(cfg.SyncPageSize))

	producer := ingest.NewProducer(cfg.KafkaBrokers, cfg.IngestTopic)
	defer func() { _ = producer.Close() }()

	dispatcher := ingest.NewDispatcher(repos.Jobs, producer, cfg.DispatchInterval, cfg.DispatchBatchSize, logger)
	go dispatcher.Start(ctx)

	handler := api.NewHandler(api.Config{
		Athletes:           repos.Athletes,
		Sync:               syncer,
		Load:               load.NewAggregator(repos.Activities, repos.Summaries, logger),
		Recovery:           recovery.NewAdvisor(repos.Activities, logger),
		Goals:              goals.NewTracker(repos.Goals, repos.Activities, logger),
		Queue:              ingest.NewQueue(repos.Jobs, logger),
		WebhookVerifyToken: cfg.WebhookVerifyToken,
		MaxSyncDays:        cfg.SyncMaxDays,
		Logger:             logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	requestLogger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		auth.DefaultSkipper,
	)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:           cfg.HTTPAddress,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, authMiddleware.Wrap(requestLogger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("api listening", zap.String("address", cfg.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	logger.Info("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	dispatcher.Wait()
}
