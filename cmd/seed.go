package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmehdipour/journal-gateway/internal/auth"
	"github.com/jmehdipour/journal-gateway/internal/config"
	"github.com/jmehdipour/journal-gateway/internal/db"
	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type seedOptions struct {
	TeamName    string
	Reference   string
	SKU         string
	MaxRequests int64
	ValidFor    time.Duration
	RateLimit   int
	WebhookURL  string
	Domains     []string
	IPs         []string
}

var seedOpts seedOptions

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a demo team and subscription",
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

		if seedOpts.SKU == "" {
			seedOpts.SKU = cfg.Gateway.Products.SaveJournalEntry
		}

		team, secret, err := buildSeedTeam(seedOpts)
		if err != nil {
			return err
		}
		sub := buildSeedSubscription(seedOpts, team.ID, time.Now().UTC())

		ctx := cmd.Context()
		if err := repository.NewTeamsRepository(sqlDB).Upsert(ctx, team); err != nil {
			return fmt.Errorf("upsert team: %w", err)
		}
		if err := repository.NewSubscriptionsRepository(sqlDB).Insert(ctx, sub); err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}

		logger.Log.Info("seed completed",
			zap.String("team_id", team.ID),
			zap.String("subscription_id", sub.ID),
		)
		// the secret is never stored in plaintext; this is the only time it is shown
		fmt.Fprintf(cmd.OutOrStdout(), "x-team-id: %s\nx-api-key: %s\nteamUserReferenceId: %s\nsku: %s\n",
			team.ID, secret, sub.TeamUserReferenceID, sub.APIProductSKU)
		return nil
	},
}

func init() {
	f := seedCmd.Flags()
	f.StringVar(&seedOpts.TeamName, "team-name", "Demo Team", "team display name")
	f.StringVar(&seedOpts.Reference, "reference", "demo-user", "teamUserReferenceId of the subscription holder")
	f.StringVar(&seedOpts.SKU, "sku", "", "api product sku (default: gateway.products.save_journal_entry)")
	f.Int64Var(&seedOpts.MaxRequests, "max-requests", 1000, "subscription request quota")
	f.DurationVar(&seedOpts.ValidFor, "valid-for", 30*24*time.Hour, "subscription lifetime")
	f.IntVar(&seedOpts.RateLimit, "rate-limit", 60, "requests per minute; 0 = unmetered")
	f.StringVar(&seedOpts.WebhookURL, "webhook-url", "", "usage alert webhook url")
	f.StringSliceVar(&seedOpts.Domains, "domains", nil, "allowed browser origins")
	f.StringSliceVar(&seedOpts.IPs, "ips", nil, "allowed caller IPs or CIDRs")
}

func buildSeedTeam(o seedOptions) (model.Team, string, error) {
	secret, hash, err := auth.GenerateAPISecret()
	if err != nil {
		return model.Team{}, "", err
	}

	t := model.Team{
		ID:             uuid.NewString(),
		Name:           o.TeamName,
		APISecretHash:  hash,
		AllowedDomains: model.StringList(o.Domains),
		AllowedIPs:     model.StringList(o.IPs),
	}
	if o.RateLimit > 0 {
		rl := o.RateLimit
		t.RateLimitPerMinute = &rl
	}
	if o.WebhookURL != "" {
		u := o.WebhookURL
		t.SubscriptionAlertWebhookURL = &u
	}
	return t, secret, nil
}

func buildSeedSubscription(o seedOptions, teamID string, now time.Time) model.Subscription {
	return model.Subscription{
		ID:                  util.NewAt(now),
		TeamID:              teamID,
		TeamUserReferenceID: o.Reference,
		APIProductSKU:       o.SKU,
		ExpiresAt:           now.Add(o.ValidFor),
		MaxRequests:         o.MaxRequests,
		CreatedAt:           now,
	}
}
