package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jmehdipour/journal-gateway/internal/config"
	"github.com/jmehdipour/journal-gateway/internal/db"
	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/webhook"
	"github.com/spf13/cobra"
)

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Webhook queue operations",
}

var webhooksProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one dispatcher batch and print the result (for cron)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		defer logger.Sync()

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		d := webhook.NewDispatcherFromConfig(cfg.Webhook, cfg.Dispatcher, repository.NewWebhookQueueRepository(sqlDB))
		res, err := d.ProcessQueue(cmd.Context())
		if err != nil {
			return err
		}

		b, _ := json.Marshal(res)
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	webhooksCmd.AddCommand(webhooksProcessCmd)
}
