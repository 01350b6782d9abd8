package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jmehdipour/journal-gateway/internal/config"
	"github.com/jmehdipour/journal-gateway/internal/db"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <team|subscription|webhook_call> <id>",
	Short: "Print one stored entity as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := repository.ParseKind(args[0])
		if err != nil {
			return err
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		reg := repository.Registry{
			Teams:         repository.NewTeamsRepository(sqlDB),
			Subscriptions: repository.NewSubscriptionsRepository(sqlDB),
			WebhookQueue:  repository.NewWebhookQueueRepository(sqlDB),
		}
		v, err := reg.Get(cmd.Context(), kind, args[1])
		if err != nil {
			return fmt.Errorf("get %s %s: %w", kind, args[1], err)
		}
		if v == nil {
			return fmt.Errorf("%s %s: %w", kind, args[1], repository.ErrNotFound)
		}

		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}
