package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/config"
	"github.com/jmehdipour/journal-gateway/internal/db"
	"github.com/jmehdipour/journal-gateway/internal/kafka"
	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/metrics"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultInterval = 30 * time.Second

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the webhook dispatcher loop",
	RunE:  runDispatcher,
}

type batchProcessor interface {
	ProcessQueue(ctx context.Context) (webhook.Result, error)
}

func runDispatcher(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connection (MySQL)
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOptsFrom(cfg.MySQL))
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// 3) dispatcher
	d := webhook.NewDispatcherFromConfig(cfg.Webhook, cfg.Dispatcher, repository.NewWebhookQueueRepository(dbx))

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5) optional kafka wake-ups on top of the ticker
	wake := make(chan struct{}, 1)
	if cfg.Kafka.Enabled {
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "jgw-dispatcher"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.DispatchTopic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()
		go consumeTriggers(ctx, consumer, wake)
	}

	interval := cfg.Dispatcher.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	logger.Log.Info("dispatcher started",
		zap.Duration("interval", interval),
		zap.Int("batch_size", d.BatchSize),
		zap.Bool("kafka", cfg.Kafka.Enabled),
	)

	runLoop(ctx, d, interval, wake)
	return nil
}

// runLoop runs a batch immediately, then on every tick or wake-up until ctx is done.
func runLoop(ctx context.Context, p batchProcessor, interval time.Duration, wake <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		if _, err := p.ProcessQueue(ctx); err != nil && ctx.Err() == nil {
			logger.Log.Error("dispatcher batch", zap.Error(err))
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		case <-wake:
			run()
		}
	}
}

type triggerSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// consumeTriggers turns dispatch messages into non-blocking wake-ups. Triggers carry
// no state the queue does not already have, so a dropped wake-up only delays delivery
// until the next tick.
func consumeTriggers(ctx context.Context, src triggerSource, wake chan<- struct{}) {
	for {
		m, err := src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Warn("fetch dispatch trigger", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if t, err := kafka.DecodeDispatchTrigger(m); err != nil {
			logger.Log.Warn("decode dispatch trigger", zap.Error(err))
		} else {
			logger.Log.Debug("dispatch trigger", zap.String("id", t.EntryID))
		}

		select {
		case wake <- struct{}{}:
		default:
		}

		if err := src.Commit(ctx, m); err != nil && ctx.Err() == nil {
			logger.Log.Warn("commit dispatch trigger", zap.Error(err))
		}
	}
}
