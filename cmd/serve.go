package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/config"
	"github.com/jmehdipour/journal-gateway/internal/db"
	httpSrv "github.com/jmehdipour/journal-gateway/internal/http"
	"github.com/jmehdipour/journal-gateway/internal/kafka"
	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/ratelimit"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/service/usage"
	"github.com/jmehdipour/journal-gateway/internal/webhook"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		defer logger.Sync()

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		chDB, err := db.NewClickHouseConnection(db.ClickHouseOptsFrom(cfg.ClickHouse))
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() {
			_ = chDB.Close()
		}()

		// redis is only needed by the shared limiter backends
		var redisClient *redis.Client
		if cfg.RateLimit.Backend == ratelimit.BackendRedis || cfg.RateLimit.Backend == ratelimit.BackendRedisGCRA {
			redisClient, err = db.NewRedisClient(db.RedisOptsFrom(cfg.Redis))
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = redisClient.Close() }()
		}

		limiter, err := ratelimit.New(ratelimit.Options{
			Backend:         cfg.RateLimit.Backend,
			KeyPrefix:       cfg.RateLimit.KeyPrefix,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		}, redisClient)
		if err != nil {
			return err
		}
		if ml, ok := limiter.(*ratelimit.MemoryLimiter); ok {
			defer ml.Stop()
		}

		// repos (MySQL)
		teamsRepo := repository.NewTeamsRepository(mysqlDB)
		subsRepo := repository.NewSubscriptionsRepository(mysqlDB)
		queueRepo := repository.NewWebhookQueueRepository(mysqlDB)
		journalRepo := repository.NewJournalEntriesRepository(mysqlDB)

		// repos (ClickHouse)
		requestLogsRepo := repository.NewCHRequestLogRepository(chDB)

		// services
		tracker := usage.New(
			repository.NewTxRunner(mysqlDB),
			subsRepo,
			teamsRepo,
			webhook.NewEnqueuer(queueRepo, cfg.Webhook.MaxAttempts),
			nil,
			cfg.Webhook.AlertThreshold,
		)
		if cfg.Kafka.Enabled {
			producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.DispatchTopic)
			defer func() { _ = producer.Close() }()
			tracker.Notifier = producer
		}
		dispatcher := webhook.NewDispatcherFromConfig(cfg.Webhook, cfg.Dispatcher, queueRepo)

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Teams:          teamsRepo,
			Subscriptions:  subsRepo,
			JournalEntries: journalRepo,
			RequestLogs:    requestLogsRepo,
			Limiter:        limiter,
			Usage:          tracker,
			Webhooks:       dispatcher,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil {
				logger.Log.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
